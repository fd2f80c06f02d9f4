// Package pipeline provides the core allele-specific binding analysis
// pipeline for tfomics.
//
// This package implements the complete load → estimate → extract
// pipeline that can be used by CLI and API components. By centralizing
// this logic, we ensure consistent behavior across all entry points and
// avoid code duplication.
//
// # Architecture
//
// The pipeline consists of three stages:
//
//  1. Load: Parse the AlleleSeq count and FDR files and select
//     candidate SNPs at the requested false discovery rate
//  2. Estimate: Pool replicate rows per site and compute binding
//     effect sizes
//  3. Extract: Fetch the reference sequence around each candidate
//     site, optionally substituting the winning allele and generating
//     dinucleotide-shuffled backgrounds
//
// The extract stage only runs when a reference genome is configured.
//
// # Usage
//
// Create a Runner and execute the pipeline:
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.Options{
//	    Dataset:   "CTCF",
//	    CountFile: "counts.txt",
//	    FDRFile:   "fdr.txt",
//	    FDR:       0.05,
//	}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range result.Effects {
//	    fmt.Println(e.Chromosome, e.Position, e.EffectSize)
//	}
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tfomics/tfomics/pkg/alleleseq"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultFDR is the false discovery rate used to select candidate
	// SNPs when none is given.
	DefaultFDR = 0.05

	// DefaultSeed is the default random seed for reproducible
	// dinucleotide shuffles.
	DefaultSeed = int64(42)

	// MaxShuffles bounds the number of shuffled backgrounds per
	// sequence. API users cannot request more.
	MaxShuffles = 1000
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for the analysis pipeline.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Load options
	Dataset   string  `json:"dataset"`
	CountFile string  `json:"count_file"`
	FDRFile   string  `json:"fdr_file"`
	FDR       float64 `json:"fdr,omitempty"`

	// Extract options
	GenomePath string `json:"genome_path,omitempty"`
	GenomeName string `json:"genome_name,omitempty"` // Cache key namespace, defaults to the file name
	ApplySNPs  bool   `json:"apply_snps,omitempty"`  // Substitute the winning allele into each sequence
	Shuffles   int    `json:"shuffles,omitempty"`    // Dinucleotide-shuffled backgrounds per sequence
	Seed       int64  `json:"seed,omitempty"`

	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// PeakSequence is the reference sequence around one candidate site.
type PeakSequence struct {
	Chromosome string   `json:"chromosome"`
	Position   int      `json:"position"`
	Sequence   string   `json:"sequence"`
	Shuffled   []string `json:"shuffled,omitempty"`
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Dataset is the parsed AlleleSeq run.
	Dataset *alleleseq.Dataset

	// Candidates are the SNPs selected at the requested FDR.
	Candidates []alleleseq.SNP

	// Effects are the pooled per-site binding effect sizes.
	Effects []alleleseq.Effect

	// Sequences holds the extracted peak regions, one per site.
	// Empty when no genome was configured.
	Sequences []PeakSequence

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks cache usage during extraction.
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	SNPCount       int
	CandidateCount int
	SiteCount      int
	LoadTime       time.Duration
	EstimateTime   time.Duration
	ExtractTime    time.Duration
}

// CacheInfo tracks cache usage for the extract stage.
type CacheInfo struct {
	RegionHits   int
	RegionMisses int
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same
// effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := o.ValidateForLoad(); err != nil {
		return err
	}
	if err := o.ValidateForExtract(); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// ValidateForLoad checks required fields for the load stage.
func (o *Options) ValidateForLoad() error {
	if o.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	if o.CountFile == "" {
		return fmt.Errorf("count_file is required")
	}
	if o.FDRFile == "" {
		return fmt.Errorf("fdr_file is required")
	}
	if o.FDR < 0 || o.FDR > 1 {
		return fmt.Errorf("fdr must be in [0, 1], got %g", o.FDR)
	}
	if o.FDR == 0 {
		o.FDR = DefaultFDR
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// ValidateForExtract checks fields for the extract stage and applies
// defaults. Extraction is skipped entirely when GenomePath is empty.
func (o *Options) ValidateForExtract() error {
	if o.Shuffles < 0 {
		return fmt.Errorf("shuffles must be non-negative, got %d", o.Shuffles)
	}
	if o.Shuffles > MaxShuffles {
		return fmt.Errorf("shuffles must be at most %d, got %d", MaxShuffles, o.Shuffles)
	}
	if o.Shuffles > 0 && o.GenomePath == "" {
		return fmt.Errorf("shuffles require a genome_path")
	}
	if o.ApplySNPs && o.GenomePath == "" {
		return fmt.Errorf("apply_snps requires a genome_path")
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// WantsExtract reports whether the extract stage should run.
func (o *Options) WantsExtract() bool {
	return o.GenomePath != ""
}
