// Package store persists analysis runs so results can be fetched again
// without re-running the statistics.
//
// Two backends are provided: a MongoDB store for the HTTP server and an
// in-memory store for CLI usage and tests.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tfomics/tfomics/pkg/errors"
)

// Kind identifies the type of analysis a run holds.
type Kind string

const (
	// KindASB is an allele-specific binding run.
	KindASB Kind = "asb"

	// KindMR is a Mendelian randomisation run.
	KindMR Kind = "mr"

	// KindShuffle is a dinucleotide shuffle run.
	KindShuffle Kind = "shuffle"
)

// Run is a stored analysis run.
type Run struct {
	// ID is the unique run identifier, assigned on save.
	ID string `bson:"_id" json:"id"`

	// Kind is the analysis type.
	Kind Kind `bson:"kind" json:"kind"`

	// Dataset names the input dataset the run was computed from.
	Dataset string `bson:"dataset,omitempty" json:"dataset,omitempty"`

	// Options holds the analysis options as submitted, for provenance.
	Options map[string]any `bson:"options,omitempty" json:"options,omitempty"`

	// Result is the JSON-encoded analysis output.
	Result []byte `bson:"result" json:"result"`

	// CreatedAt is when the run was saved.
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// NewRun creates a run with a fresh ID and timestamp.
func NewRun(kind Kind, dataset string, options map[string]any, result []byte) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Dataset:   dataset,
		Options:   options,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}
}

// Store persists and retrieves runs.
type Store interface {
	// Save persists a run.
	Save(ctx context.Context, run *Run) error

	// Get retrieves a run by ID. Returns a RUN_NOT_FOUND error when
	// the ID is unknown.
	Get(ctx context.Context, id string) (*Run, error)

	// List returns runs of the given kind, newest first. An empty kind
	// lists all runs. Limit caps the result; zero means no cap.
	List(ctx context.Context, kind Kind, limit int) ([]*Run, error)

	// Delete removes a run. Deleting a missing run is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// notFound builds the standard missing-run error.
func notFound(id string) error {
	return errors.New(errors.ErrCodeRunNotFound, "run %q not found", id)
}
