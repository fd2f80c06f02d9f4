package alleleseq

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/tfomics/tfomics/pkg/errors"
)

const countFixture = `chrm	snppos	ref	mat_all	pat_all	winning	cA	cC	cG	cT	SymPval
chr1	42	C	C	A	P	10	2	0	0	0.001
chr1	42	C	A	C	M	10	2	0	0	0.002
chr2	55	G	G	C	M	0	5	10	0	0.004
chr2	55	G	G	C	M	0	5	10	0	0.2
chr2	150	T	T	G	?	0	0	12	8	0.003
`

const fdrFixture = `# simulated FDR estimates
pval	FDR
0.01	0.25
0.005	0.1
0.001	0.01
0.0005	0.005
target 0.05
before 0.3 0.2 0.1
after 0.05 0.04 0.03
`

func writeDataset(t *testing.T) *Dataset {
	t.Helper()
	dir := t.TempDir()

	countPath := filepath.Join(dir, "counts.txt")
	if err := os.WriteFile(countPath, []byte(countFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	fdrPath := filepath.Join(dir, "fdr.txt")
	if err := os.WriteFile(fdrPath, []byte(fdrFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	ds, err := Open("GM12878", countPath, fdrPath)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	return ds
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestOpen(t *testing.T) {
	ds := writeDataset(t)

	if len(ds.SNPs) != 5 {
		t.Errorf("got %d SNPs, want 5", len(ds.SNPs))
	}
	if len(ds.FDR) != 4 {
		t.Errorf("got %d FDR entries, want 4", len(ds.FDR))
	}
	if ds.Target != "0.05" {
		t.Errorf("target = %q, want 0.05", ds.Target)
	}
	if len(ds.BeforeFDRs) != 3 || len(ds.AfterFDRs) != 3 {
		t.Errorf("footer rows not parsed: before=%v after=%v", ds.BeforeFDRs, ds.AfterFDRs)
	}

	snp, ok := ds.Lookup("chr1", 42)
	if !ok {
		t.Fatal("chr1:42 not found")
	}
	if snp.Reference != "C" || snp.Count("A") != 10 || snp.Count("C") != 2 {
		t.Errorf("chr1:42 = %+v", snp)
	}
}

func TestOpenMissingColumn(t *testing.T) {
	dir := t.TempDir()
	countPath := filepath.Join(dir, "counts.txt")
	if err := os.WriteFile(countPath, []byte("foo\tbar\n1\t2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fdrPath := filepath.Join(dir, "fdr.txt")
	if err := os.WriteFile(fdrPath, []byte(fdrFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open("bad", countPath, fdrPath)
	if err == nil {
		t.Fatal("count file without required columns should fail")
	}
	if !errors.Is(err, errors.ErrCodeInvalidColumn) {
		t.Errorf("error code = %v, want INVALID_COLUMN", errors.GetCode(err))
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("missing", "does-not-exist.txt", "also-missing.txt")
	if err == nil {
		t.Fatal("missing file should fail")
	}
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("error code = %v, want FILE_NOT_FOUND", errors.GetCode(err))
	}
}

func TestPValueAt(t *testing.T) {
	ds := writeDataset(t)

	tests := []struct {
		fdr  float64
		want float64
	}{
		{0.25, 0.01},  // highest cutoff within bound
		{0.1, 0.005},  // exact match
		{0.02, 0.001}, // between table entries
		{0.001, 0},    // stricter than every entry
	}
	for _, tt := range tests {
		if got := ds.PValueAt(tt.fdr); got != tt.want {
			t.Errorf("PValueAt(%v) = %v, want %v", tt.fdr, got, tt.want)
		}
	}
}

func TestPValueAtWarnsWhenUnachievable(t *testing.T) {
	ds := writeDataset(t)

	var buf bytes.Buffer
	ds.Logger = log.New(&buf)

	if got := ds.PValueAt(0.001); got != 0 {
		t.Fatalf("PValueAt = %v, want 0", got)
	}
	if !strings.Contains(buf.String(), "no p-value cutoff") {
		t.Errorf("expected a warning, log output: %q", buf.String())
	}

	// An achievable bound stays quiet.
	buf.Reset()
	if got := ds.PValueAt(0.1); got != 0.005 {
		t.Fatalf("PValueAt = %v, want 0.005", got)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}

func TestCandidates(t *testing.T) {
	ds := writeDataset(t)

	// FDR 0.1 -> cutoff 0.005. chr2:150 has a small p-value but winning
	// "?" and is dropped; the second chr2:55 row is above the cutoff.
	got := ds.Candidates(0.1)
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3: %+v", len(got), got)
	}
	for _, s := range got {
		if s.Winning == "?" {
			t.Errorf("candidate with winning=?: %+v", s)
		}
		if s.PValue > 0.005 {
			t.Errorf("candidate above cutoff: %+v", s)
		}
	}

	// An unachievable FDR yields no candidates.
	if got := ds.Candidates(0.0001); len(got) != 0 {
		t.Errorf("got %d candidates at impossible FDR, want 0", len(got))
	}
}

func TestWinningAllele(t *testing.T) {
	ds := writeDataset(t)

	snp, _ := ds.Lookup("chr1", 42)
	if got := snp.WinningAllele(); got != "A" {
		t.Errorf("winning allele = %q, want A (paternal)", got)
	}

	snp, _ = ds.Lookup("chr2", 150)
	if got := snp.WinningAllele(); got != "" {
		t.Errorf("winning allele for ? row = %q, want empty", got)
	}
}

func TestHetSNP(t *testing.T) {
	ds := writeDataset(t)

	got, err := ds.HetSNP("chr1", 42, "C")
	if err != nil {
		t.Fatalf("HetSNP error: %v", err)
	}
	if got != "A" {
		t.Errorf("HetSNP = %q, want A", got)
	}

	if _, err := ds.HetSNP("chr1", 42, "G"); !errors.Is(err, errors.ErrCodeGenomeMismatch) {
		t.Errorf("mismatched reference should fail with GENOME_MISMATCH, got %v", err)
	}
	if _, err := ds.HetSNP("chr9", 1, ""); !errors.Is(err, errors.ErrCodeSNPNotFound) {
		t.Errorf("unknown SNP should fail with SNP_NOT_FOUND, got %v", err)
	}
}

func TestPooledWinner(t *testing.T) {
	ds := writeDataset(t)

	// chr2:55 twice: maternal allele G has 10 reads per row, paternal C
	// has 5, so the maternal allele wins the pool.
	rows := ds.PooledWinner("chr2", []int{55, 55}, false)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if r.Winning != "M" {
			t.Errorf("pooled winner = %q, want M", r.Winning)
		}
	}

	// pickMin flips the choice.
	rows = ds.PooledWinner("chr2", []int{55}, true)
	if rows[0].Winning != "P" {
		t.Errorf("pooled winner with pickMin = %q, want P", rows[0].Winning)
	}

	// Missing position yields nil.
	if rows := ds.PooledWinner("chr2", []int{55, 9999}, false); rows != nil {
		t.Errorf("pool with missing position = %v, want nil", rows)
	}
}

func TestEffectSizes(t *testing.T) {
	ds := writeDataset(t)

	effects, err := EffectSizes(ds.SNPs)
	if err != nil {
		t.Fatalf("EffectSizes error: %v", err)
	}
	if len(effects) != 3 {
		t.Fatalf("got %d effects, want 3", len(effects))
	}

	// Values match the original analysis fixtures: chr1:42 pools two
	// replicates of ref C (2 reads) vs alt A (10 reads).
	want := []struct {
		chromosome string
		position   int
		es, stderr float64
		samples    int
	}{
		{"chr1", 42, 0.6667, 0.1521, 2},
		{"chr2", 55, -0.3333, 0.1721, 2},
		{"chr2", 150, 0.2, 0.2191, 1},
	}

	for i, w := range want {
		got := effects[i]
		if got.Chromosome != w.chromosome || got.Position != w.position {
			t.Errorf("effects[%d] at %s:%d, want %s:%d", i, got.Chromosome, got.Position, w.chromosome, w.position)
		}
		if !almostEqual(got.EffectSize, w.es, 1e-4) {
			t.Errorf("effects[%d].EffectSize = %v, want %v", i, got.EffectSize, w.es)
		}
		if !almostEqual(got.Stderr, w.stderr, 1e-4) {
			t.Errorf("effects[%d].Stderr = %v, want %v", i, got.Stderr, w.stderr)
		}
		if got.Samples != w.samples {
			t.Errorf("effects[%d].Samples = %d, want %d", i, got.Samples, w.samples)
		}
	}
}
