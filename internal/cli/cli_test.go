package cli

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tfomics/tfomics/pkg/alleleseq"
	"github.com/tfomics/tfomics/pkg/errors"
	"github.com/tfomics/tfomics/pkg/mendel"
	"github.com/tfomics/tfomics/pkg/pipeline"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	c := New(os.Stderr, LogInfo)
	root := c.RootCommand()

	want := []string{"shuffle", "asb", "mr", "extract", "browse", "serve", "cache", "completion"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("RootCommand is missing the %s command", name)
		}
	}
}

func TestParseRegion(t *testing.T) {
	tests := []struct {
		input   string
		name    string
		start   int
		end     int
		wantErr bool
	}{
		{input: "chr1:100-200", name: "chr1", start: 100, end: 200},
		{input: "chrX:0-1000000", name: "chrX", start: 0, end: 1000000},
		{input: "chr1", wantErr: true},
		{input: "chr1:100", wantErr: true},
		{input: "chr1:abc-200", wantErr: true},
		{input: "chr1:100-xyz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			name, start, end, err := parseRegion(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseRegion(%q) expected error, got %s:%d-%d", tt.input, name, start, end)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRegion(%q) unexpected error: %v", tt.input, err)
			}
			if name != tt.name || start != tt.start || end != tt.end {
				t.Errorf("parseRegion(%q) = %s:%d-%d, want %s:%d-%d",
					tt.input, name, start, end, tt.name, tt.start, tt.end)
			}
		})
	}
}

func TestReadExposures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exposures.tsv")
	content := "snp\tref\talt\teffect\tstderr\n" +
		"rs1\tA\tG\t0.5\t0.1\n" +
		"\n" +
		"rs2\tC\tT\t-0.2\t0.05\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	exposures, err := readExposures(path)
	if err != nil {
		t.Fatalf("readExposures: %v", err)
	}
	if len(exposures) != 2 {
		t.Fatalf("expected 2 exposures, got %d", len(exposures))
	}
	if exposures[0].SNP != "rs1" || exposures[0].Effect != 0.5 || exposures[0].EffectStderr != 0.1 {
		t.Errorf("unexpected first exposure: %+v", exposures[0])
	}
	if exposures[1].Ref != "C" || exposures[1].Alt != "T" || exposures[1].Effect != -0.2 {
		t.Errorf("unexpected second exposure: %+v", exposures[1])
	}
}

func TestReadExposuresMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tsv")
	if err := os.WriteFile(path, []byte("snp\tref\talt\teffect\nrs1\tA\tG\t0.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := readExposures(path)
	if err == nil {
		t.Fatal("expected error for missing stderr column")
	}
	if errors.GetCode(err) != errors.ErrCodeInvalidColumn {
		t.Errorf("expected INVALID_COLUMN, got %s", errors.GetCode(err))
	}
}

func TestReadExposuresFileNotFound(t *testing.T) {
	_, err := readExposures(filepath.Join(t.TempDir(), "absent.tsv"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.GetCode(err) != errors.ErrCodeFileNotFound {
		t.Errorf("expected FILE_NOT_FOUND, got %s", errors.GetCode(err))
	}
}

func TestReadGWAS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwas.tsv")
	content := "rsid\ttrait\tallele\tbeta\tstderr\tmaf\thwe\tiscore\n" +
		"rs1\theight\tG\t1.0\t0.2\t0.3\t0.5\t0.95\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := readGWAS(path)
	if err != nil {
		t.Fatalf("readGWAS: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.RSID != "rs1" || rec.Trait != "height" || rec.Allele != "G" {
		t.Errorf("unexpected record identifiers: %+v", rec)
	}
	if rec.Beta != 1.0 || rec.Stderr != 0.2 || rec.MAF != 0.3 || rec.HWE != 0.5 || rec.IScore != 0.95 {
		t.Errorf("unexpected record values: %+v", rec)
	}
}

func TestReadGWASDropsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwas.tsv")
	content := "rsid\ttrait\tallele\tbeta\tstderr\tmaf\thwe\tiscore\n" +
		"rs1\theight\tG\t1.0\t0.2\t0.3\t0.5\t0.95\n" +
		"rs2\theight\tA\t0.8\t0.1\t\t0.5\t0.95\n" + // no maf
		"rs3\t\tC\t0.4\t0.1\t0.2\t0.5\t0.95\n" + // no trait
		"rs4\tbmi\tT\t0.6\t0.3\t0.1\t0.4\t0.9\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := readGWAS(path)
	if err != nil {
		t.Fatalf("readGWAS: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 complete records, got %d", len(records))
	}
	if records[0].RSID != "rs1" || records[1].RSID != "rs4" {
		t.Errorf("unexpected surviving records: %q, %q", records[0].RSID, records[1].RSID)
	}
}

func TestReadGWASInvalidValue(t *testing.T) {
	// Unlike an empty cell, which drops the record, a malformed value
	// means the file itself is broken.
	path := filepath.Join(t.TempDir(), "gwas.tsv")
	content := "rsid\ttrait\tallele\tbeta\tstderr\tmaf\thwe\tiscore\n" +
		"rs1\theight\tG\tnot-a-number\t0.2\t0.3\t0.5\t0.95\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := readGWAS(path)
	if err == nil {
		t.Fatal("expected error for non-numeric beta")
	}
	if errors.GetCode(err) != errors.ErrCodeInvalidFile {
		t.Errorf("expected INVALID_FILE, got %s", errors.GetCode(err))
	}
}

// countingCache records hits and writes for cache assertions.
type countingCache struct {
	entries map[string][]byte
	hits    int
	sets    int
}

func (c *countingCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return data, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	c.entries[key] = data
	c.sets++
	return nil
}

func (c *countingCache) Delete(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *countingCache) Close() error { return nil }

func TestReadGWASCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwas.tsv")
	content := "rsid\ttrait\tallele\tbeta\tstderr\tmaf\thwe\tiscore\n" +
		"rs1\theight\tG\t1.0\t0.2\t0.3\t0.5\t0.95\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cch := &countingCache{entries: map[string][]byte{}}
	runner := pipeline.NewRunner(cch, nil, nil)

	first, err := readGWASCached(context.Background(), runner, path)
	if err != nil {
		t.Fatalf("readGWASCached: %v", err)
	}
	if len(first) != 1 || first[0].RSID != "rs1" {
		t.Fatalf("unexpected records: %+v", first)
	}
	if cch.sets != 1 || cch.hits != 0 {
		t.Errorf("first read: sets = %d, hits = %d, want 1 set and 0 hits", cch.sets, cch.hits)
	}

	second, err := readGWASCached(context.Background(), runner, path)
	if err != nil {
		t.Fatalf("readGWASCached (cached): %v", err)
	}
	if cch.hits != 1 {
		t.Errorf("second read: hits = %d, want 1", cch.hits)
	}
	if len(second) != 1 || second[0] != first[0] {
		t.Errorf("cached records differ: %+v vs %+v", second, first)
	}
}

func TestBrowseModelNavigation(t *testing.T) {
	candidates := make([]alleleseq.SNP, 5)
	for i := range candidates {
		candidates[i] = alleleseq.SNP{
			Chromosome: "chr1",
			Position:   100 + i,
			Maternal:   "A",
			Paternal:   "G",
			Winning:    "M",
			PValue:     0.001,
		}
	}

	m := newBrowseModel("test", candidates)

	key := func(s string) tea.KeyMsg {
		if len(s) == 1 {
			return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
		}
		switch s {
		case "down":
			return tea.KeyMsg{Type: tea.KeyDown}
		case "up":
			return tea.KeyMsg{Type: tea.KeyUp}
		case "enter":
			return tea.KeyMsg{Type: tea.KeyEnter}
		}
		t.Fatalf("unknown key %q", s)
		return tea.KeyMsg{}
	}

	step := func(msg tea.Msg) {
		updated, _ := m.Update(msg)
		m = updated.(browseModel)
	}

	step(key("down"))
	step(key("j"))
	if m.cursor != 2 {
		t.Errorf("expected cursor 2, got %d", m.cursor)
	}

	step(key("up"))
	if m.cursor != 1 {
		t.Errorf("expected cursor 1, got %d", m.cursor)
	}

	step(key("G"))
	if m.cursor != 4 {
		t.Errorf("expected cursor at last row, got %d", m.cursor)
	}
	step(key("g"))
	if m.cursor != 0 {
		t.Errorf("expected cursor at first row, got %d", m.cursor)
	}

	// Cursor never moves past the ends
	step(key("up"))
	if m.cursor != 0 {
		t.Errorf("cursor moved above the first row: %d", m.cursor)
	}

	step(key("enter"))
	if !m.selected {
		t.Error("enter should mark the model selected")
	}
}

func TestBrowseModelScrolling(t *testing.T) {
	candidates := make([]alleleseq.SNP, 30)
	for i := range candidates {
		candidates[i] = alleleseq.SNP{Chromosome: "chr1", Position: i, PValue: 0.001}
	}

	m := newBrowseModel("test", candidates)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 18})
	m = updated.(browseModel)
	if m.height != 10 {
		t.Fatalf("expected visible height 10, got %d", m.height)
	}

	for i := 0; i < 15; i++ {
		u, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
		m = u.(browseModel)
	}
	if m.cursor != 15 {
		t.Fatalf("expected cursor 15, got %d", m.cursor)
	}
	if m.offset != 6 {
		t.Errorf("expected offset 6 to keep the cursor visible, got %d", m.offset)
	}

	view := m.View()
	if view == "" {
		t.Error("expected a non-empty view")
	}
}

func TestBrowseModelQuit(t *testing.T) {
	m := newBrowseModel("test", []alleleseq.SNP{{Chromosome: "chr1", Position: 1}})
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = updated.(browseModel)
	if !m.quitting {
		t.Error("q should quit")
	}
	if cmd == nil {
		t.Error("expected a quit command")
	}
	if m.View() != "" {
		t.Error("quitting model should render nothing")
	}
}

func TestCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir: %v", err)
	}
	if filepath.Base(dir) != appName {
		t.Errorf("expected cache dir named %s, got %s", appName, dir)
	}
}

func TestPrintMRTableFormatsNaN(t *testing.T) {
	// Rendering NaN estimates must not panic.
	printMRTable([]mendel.Result{
		{SNP: "rs1", Trait: "height", EffectAllele: "G", Causal: 2.0, Stderr: 0.5, P: 0.01, Q: 0.02},
		{SNP: "rs2", Trait: "height", EffectAllele: "?", Causal: math.NaN(), Stderr: math.NaN(), P: math.NaN(), Q: math.NaN()},
	})
}
