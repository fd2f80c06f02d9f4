// Package alleleseq reads the output of the AlleleSeq pipeline: per-SNP
// allele read counts for a cell line together with the pipeline's FDR
// estimates.
//
// A count file is a tab-separated table with one row per heterozygous
// SNP. An FDR file pairs candidate p-value cutoffs with the false
// discovery rate achieved at that cutoff, followed by a short summary
// footer. Together they let callers select allele-specifically bound
// SNPs at a chosen FDR and estimate binding effect sizes for them.
package alleleseq

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/tfomics/tfomics/pkg/errors"
	"github.com/tfomics/tfomics/pkg/stats"
)

// Column names required in AlleleSeq count files.
const (
	ColChromosome = "chrm"
	ColPosition   = "snppos"
	ColReference  = "ref"
	ColMaternal   = "mat_all"
	ColPaternal   = "pat_all"
	ColWinning    = "winning"
	ColPValue     = "SymPval"
)

// requiredCountColumns are validated when parsing a count file.
var requiredCountColumns = []string{
	ColChromosome, ColPosition, ColReference, ColMaternal, ColPaternal,
	ColWinning, ColPValue, "cA", "cC", "cG", "cT",
}

// SNP is one row of an AlleleSeq count file.
type SNP struct {
	Chromosome string
	Position   int
	Reference  string // reference genome base
	Maternal   string // maternal allele
	Paternal   string // paternal allele
	Winning    string // "M", "P", "S" or "?"
	Counts     map[string]int
	PValue     float64 // symmetry p-value
}

// Count returns the read count for a nucleotide ("A", "C", "G", "T").
func (s SNP) Count(base string) int {
	return s.Counts[base]
}

// WinningAllele returns the nucleotide the transcription factor bound
// preferentially, or "" when neither allele won.
func (s SNP) WinningAllele() string {
	switch s.Winning {
	case "P":
		return s.Paternal
	case "M":
		return s.Maternal
	}
	return ""
}

// FDREntry pairs a candidate p-value cutoff with the false discovery
// rate achieved at that cutoff.
type FDREntry struct {
	PValue float64
	FDR    float64
}

// Dataset holds the parsed output of one AlleleSeq run: the per-SNP
// counts, the FDR table, and the run's summary footer.
type Dataset struct {
	Name string
	SNPs []SNP
	FDR  []FDREntry

	// Summary footer of the FDR file.
	Target     string
	BeforeFDRs []string
	AfterFDRs  []string

	// Logger receives parsing and threshold warnings. Defaults to the
	// package-level default logger.
	Logger *log.Logger

	index map[string]map[int]int // chromosome -> position -> SNPs offset
}

// Open parses an AlleleSeq count file and its matching FDR file.
func Open(name, countPath, fdrPath string) (*Dataset, error) {
	ds := &Dataset{Name: name}

	if err := ds.readCounts(countPath); err != nil {
		return nil, err
	}
	if err := ds.readFDR(fdrPath); err != nil {
		return nil, err
	}

	ds.index = make(map[string]map[int]int, 32)
	for i, s := range ds.SNPs {
		byPos := ds.index[s.Chromosome]
		if byPos == nil {
			byPos = make(map[int]int)
			ds.index[s.Chromosome] = byPos
		}
		byPos[s.Position] = i
	}
	return ds, nil
}

// PValueAt returns the largest p-value cutoff in the FDR table whose
// false discovery rate stays at or below the requested bound. It
// returns 0 when no cutoff qualifies; entries selected at 0 are empty,
// which keeps downstream selection safe for over-strict bounds.
func (d *Dataset) PValueAt(fdr float64) float64 {
	best := 0.0
	found := false
	for _, e := range d.FDR {
		if e.FDR <= fdr && e.PValue > best {
			best = e.PValue
			found = true
		}
	}
	if !found {
		d.logger().Warn("no p-value cutoff achieves the requested FDR",
			"dataset", d.Name, "fdr", fdr)
		return 0
	}
	return best
}

func (d *Dataset) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// Candidates selects the SNPs whose symmetry p-value achieves the
// requested FDR and where one allele won. Rows marked "?" have reads
// matching neither inherited allele and are dropped.
func (d *Dataset) Candidates(fdr float64) []SNP {
	cutoff := d.PValueAt(fdr)

	var out []SNP
	for _, s := range d.SNPs {
		if s.PValue <= cutoff && s.Winning != "?" {
			out = append(out, s)
		}
	}
	return out
}

// Lookup returns the SNP at chromosome:position, if present.
func (d *Dataset) Lookup(chromosome string, position int) (SNP, bool) {
	byPos, ok := d.index[chromosome]
	if !ok {
		return SNP{}, false
	}
	i, ok := byPos[position]
	if !ok {
		return SNP{}, false
	}
	return d.SNPs[i], true
}

// HetSNP looks up a SNP and returns the nucleotide of the
// preferentially bound allele. When expectedReference is non-empty the
// reference base recorded by AlleleSeq must match it.
func (d *Dataset) HetSNP(chromosome string, position int, expectedReference string) (string, error) {
	snp, ok := d.Lookup(chromosome, position)
	if !ok {
		return "", errors.New(errors.ErrCodeSNPNotFound, "no SNP at %s:%d", chromosome, position)
	}
	if expectedReference != "" && snp.Reference != expectedReference {
		return "", errors.New(errors.ErrCodeGenomeMismatch,
			"reference SNP mismatch at %s:%d: expected %s, found %s",
			chromosome, position, snp.Reference, expectedReference)
	}
	return snp.WinningAllele(), nil
}

// PooledWinner pools the read counts at several positions on a
// chromosome and returns the SNPs with the inherited allele that won
// overall. With pickMin the losing allele is reported instead. It
// returns nil when any position is missing from the dataset.
func (d *Dataset) PooledWinner(chromosome string, positions []int, pickMin bool) []SNP {
	rows := make([]SNP, 0, len(positions))
	var maternal, paternal int
	for _, pos := range positions {
		snp, ok := d.Lookup(chromosome, pos)
		if !ok {
			return nil
		}
		maternal += snp.Count(snp.Maternal)
		paternal += snp.Count(snp.Paternal)
		rows = append(rows, snp)
	}

	if (maternal > paternal) != pickMin {
		for i := range rows {
			rows[i].Winning = "M"
		}
	} else {
		for i := range rows {
			rows[i].Winning = "P"
		}
	}
	return rows
}

// Effect is the pooled binding effect size at one genomic site.
type Effect struct {
	Chromosome string  `json:"chromosome"`
	Position   int     `json:"position"`
	EffectSize float64 `json:"effect_size"`
	Stderr     float64 `json:"stderr"`
	Samples    int     `json:"samples"`
}

// EffectSizes estimates a binding effect size for every distinct site
// in the given SNPs, pooling replicate rows of the same site. Per row,
// the reference-allele reads are compared against the reads of the
// inherited allele that differs from the reference; a positive effect
// size means the alternate allele bound more. Results are sorted by
// chromosome and position.
func EffectSizes(snps []SNP) ([]Effect, error) {
	type site struct {
		chromosome string
		position   int
	}

	order := []site{}
	grouped := map[site][]SNP{}
	for _, s := range snps {
		k := site{s.Chromosome, s.Position}
		if _, ok := grouped[k]; !ok {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], s)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].chromosome != order[j].chromosome {
			return order[i].chromosome < order[j].chromosome
		}
		return order[i].position < order[j].position
	})

	out := make([]Effect, 0, len(order))
	for _, k := range order {
		rows := grouped[k]
		effects := make([]float64, 0, len(rows))
		stderrs := make([]float64, 0, len(rows))
		for _, row := range rows {
			alt := row.Maternal
			if alt == row.Reference {
				alt = row.Paternal
			}
			ratio, se, err := stats.Ratio(row.Count(row.Reference), row.Count(alt))
			if err != nil {
				return nil, errors.Wrap(errors.GetCode(err), err,
					"site %s:%d", k.chromosome, k.position)
			}
			es, esSE := stats.EffectSize(ratio, se)
			effects = append(effects, es)
			stderrs = append(stderrs, esSE)
		}

		mean, pooled := stats.Group(effects, stderrs)
		out = append(out, Effect{
			Chromosome: k.chromosome,
			Position:   k.position,
			EffectSize: mean,
			Stderr:     pooled,
			Samples:    len(rows),
		})
	}
	return out, nil
}

// readCounts parses the tab-separated count table.
func (d *Dataset) readCounts(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err, "open count file")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		return errors.New(errors.ErrCodeInvalidFile, "count file %s is empty", path)
	}
	header := splitRow(scanner.Text())

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range requiredCountColumns {
		if _, ok := cols[name]; !ok {
			return errors.New(errors.ErrCodeInvalidColumn,
				"count file missing %s column, did you import the right file?", name)
		}
	}

	line := 1
	for scanner.Scan() {
		line++
		fields := splitRow(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < len(header) {
			return errors.New(errors.ErrCodeInvalidFile,
				"count file line %d has %d fields, want %d", line, len(fields), len(header))
		}

		snp := SNP{
			Chromosome: fields[cols[ColChromosome]],
			Reference:  fields[cols[ColReference]],
			Maternal:   fields[cols[ColMaternal]],
			Paternal:   fields[cols[ColPaternal]],
			Winning:    fields[cols[ColWinning]],
			Counts:     make(map[string]int, 4),
		}

		snp.Position, err = strconv.Atoi(fields[cols[ColPosition]])
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidFile, err, "count file line %d: snppos", line)
		}
		snp.PValue, err = strconv.ParseFloat(fields[cols[ColPValue]], 64)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidFile, err, "count file line %d: SymPval", line)
		}
		for _, base := range []string{"A", "C", "G", "T"} {
			n, err := strconv.Atoi(fields[cols["c"+base]])
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidFile, err, "count file line %d: c%s", line, base)
			}
			snp.Counts[base] = n
		}

		d.SNPs = append(d.SNPs, snp)
	}
	return scanner.Err()
}

// readFDR parses the FDR estimate file: a header comment line, the
// pval/FDR table, and a summary footer with target/before/after rows.
func (d *Dataset) readFDR(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err, "open FDR file")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(lines) < 2 {
		return errors.New(errors.ErrCodeInvalidFile, "FDR file %s is too short", path)
	}

	// The first line is a comment, the footer starts at the first
	// target/before/after row.
	body := lines[1:]
	footerAt := len(body)
	for i, line := range body {
		first, _, _ := strings.Cut(strings.TrimSpace(line), " ")
		if first == "target" || first == "before" || first == "after" {
			footerAt = i
			break
		}
	}

	table := body[:footerAt]
	if len(table) == 0 {
		return errors.New(errors.ErrCodeInvalidFile, "FDR file %s has no table", path)
	}

	header := splitRow(table[0])
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range []string{"pval", "FDR"} {
		if _, ok := cols[name]; !ok {
			return errors.New(errors.ErrCodeInvalidColumn,
				"FDR file missing %s column, did you import the right file?", name)
		}
	}

	for i, row := range table[1:] {
		fields := splitRow(row)
		if len(fields) == 0 {
			continue
		}
		var entry FDREntry
		entry.PValue, err = strconv.ParseFloat(fields[cols["pval"]], 64)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidFile, err, "FDR file row %d: pval", i+1)
		}
		entry.FDR, err = strconv.ParseFloat(fields[cols["FDR"]], 64)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidFile, err, "FDR file row %d: FDR", i+1)
		}
		d.FDR = append(d.FDR, entry)
	}

	for _, line := range body[footerAt:] {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "target":
			d.Target = fields[1]
		case "before":
			d.BeforeFDRs = fields[1:]
		case "after":
			d.AfterFDRs = fields[1:]
		}
	}

	return nil
}

// splitRow splits a table row on tabs, trimming stray whitespace around
// each field (AlleleSeq emits "value \t" padding in places).
func splitRow(line string) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	fields := strings.Split(line, "\t")
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.TrimSpace(f))
	}
	return out
}

// String summarizes the dataset for logs.
func (d *Dataset) String() string {
	return fmt.Sprintf("%s: %d SNPs, %d FDR entries", d.Name, len(d.SNPs), len(d.FDR))
}
