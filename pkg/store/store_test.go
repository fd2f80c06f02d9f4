package store

import (
	"context"
	"testing"
	"time"

	"github.com/tfomics/tfomics/pkg/errors"
)

func TestNewRun(t *testing.T) {
	run := NewRun(KindASB, "CTCF", map[string]any{"fdr": 0.05}, []byte(`{}`))

	if run.ID == "" {
		t.Error("NewRun() assigned no ID")
	}
	if run.Kind != KindASB {
		t.Errorf("Kind = %q, want %q", run.Kind, KindASB)
	}
	if run.CreatedAt.IsZero() {
		t.Error("NewRun() assigned no timestamp")
	}

	other := NewRun(KindASB, "CTCF", nil, nil)
	if run.ID == other.ID {
		t.Error("NewRun() reused an ID")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		s := NewMemoryStore()
		run := NewRun(KindMR, "", nil, []byte(`{"causal":2.0}`))

		if err := s.Save(ctx, run); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := s.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Kind != KindMR {
			t.Errorf("Kind = %q, want %q", got.Kind, KindMR)
		}
		if string(got.Result) != `{"causal":2.0}` {
			t.Errorf("Result = %s", got.Result)
		}
	})

	t.Run("get unknown run", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.Get(ctx, "missing")
		if !errors.Is(err, errors.ErrCodeRunNotFound) {
			t.Errorf("Get() error = %v, want RUN_NOT_FOUND", err)
		}
	})

	t.Run("list newest first with kind filter", func(t *testing.T) {
		s := NewMemoryStore()

		older := NewRun(KindASB, "CTCF", nil, nil)
		older.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		newer := NewRun(KindASB, "POLR2A", nil, nil)
		newer.CreatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		mr := NewRun(KindMR, "", nil, nil)

		for _, run := range []*Run{older, newer, mr} {
			if err := s.Save(ctx, run); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
		}

		runs, err := s.List(ctx, KindASB, 0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("List() returned %d runs, want 2", len(runs))
		}
		if runs[0].ID != newer.ID {
			t.Error("List() did not sort newest first")
		}

		limited, err := s.List(ctx, "", 1)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("List() with limit returned %d runs, want 1", len(limited))
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := NewMemoryStore()
		run := NewRun(KindShuffle, "", nil, nil)
		if err := s.Save(ctx, run); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		if err := s.Delete(ctx, run.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Get(ctx, run.ID); !errors.Is(err, errors.ErrCodeRunNotFound) {
			t.Errorf("Get() after delete error = %v, want RUN_NOT_FOUND", err)
		}

		// Deleting again is fine.
		if err := s.Delete(ctx, run.ID); err != nil {
			t.Errorf("Delete() on missing run error = %v", err)
		}
	})

	t.Run("stored runs are isolated from callers", func(t *testing.T) {
		s := NewMemoryStore()
		run := NewRun(KindASB, "CTCF", nil, nil)
		if err := s.Save(ctx, run); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		run.Dataset = "mutated"

		got, err := s.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Dataset != "CTCF" {
			t.Errorf("Dataset = %q, caller mutation leaked into store", got.Dataset)
		}
	})
}

func TestMongoConfigDefaults(t *testing.T) {
	cfg := MongoConfig{URI: "mongodb://localhost:27017"}
	cfg.SetDefaults()

	if cfg.Database != "tfomics" {
		t.Errorf("Database = %q, want tfomics", cfg.Database)
	}
	if cfg.Collection != "runs" {
		t.Errorf("Collection = %q, want runs", cfg.Collection)
	}
}
