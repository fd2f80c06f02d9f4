// Package pkg provides the core libraries for tfomics allele-specific
// binding analysis.
//
// # Overview
//
// tfomics reads the output of the AlleleSeq pipeline, estimates
// allele-specific transcription factor binding effect sizes, relates
// them to GWAS summary statistics through Mendelian randomisation, and
// prepares reference sequences for downstream sequence models. The pkg
// directory is organized into these areas:
//
//  1. [alleleseq] - AlleleSeq count and FDR parsing, effect size estimation
//  2. [genome] - Indexed FASTA reference genome access
//  3. [shuffle] - Dinucleotide-preserving sequence shuffling
//  4. [mendel] - Mendelian randomisation of binding effects
//  5. [stats] - Shared statistics (pooling, multiple-testing correction)
//  6. [pipeline] - Orchestration (load → estimate → extract)
//  7. [cache], [store] - Region/result caching and completed-run storage
//
// # Architecture
//
// The typical data flow through tfomics:
//
//	AlleleSeq counts + FDR tables
//	         ↓
//	    [alleleseq] package (candidate sites, effect sizes)
//	         ↓
//	    [genome] package (peak sequence extraction)
//	         ↓
//	    [shuffle] / [mendel] packages (controls, causal estimates)
//	         ↓
//	    JSON output, HTTP API, stored runs
//
// # Quick Start
//
// Estimate effect sizes and extract peak sequences:
//
//	import (
//	    "context"
//	    "github.com/tfomics/tfomics/pkg/pipeline"
//	)
//
//	runner := pipeline.NewRunner(nil, nil, nil)
//	defer runner.Close()
//
//	result, err := runner.Execute(context.Background(), pipeline.Options{
//	    Dataset:    "CTCF",
//	    CountFile:  "counts.txt",
//	    FDRFile:    "fdr.txt",
//	    GenomePath: "hg19.fa",
//	})
package pkg
