package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tfomics/tfomics/pkg/alleleseq"
	"github.com/tfomics/tfomics/pkg/cache"
	"github.com/tfomics/tfomics/pkg/genome"
	"github.com/tfomics/tfomics/pkg/mendel"
	"github.com/tfomics/tfomics/pkg/observability"
	"github.com/tfomics/tfomics/pkg/shuffle"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API can use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete load → estimate → extract pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	result := &Result{}

	// Stage 1: Load
	loadStart := time.Now()
	ds, candidates, err := r.Load(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	result.Dataset = ds
	result.Candidates = candidates
	result.Stats.LoadTime = time.Since(loadStart)
	result.Stats.SNPCount = len(ds.SNPs)
	result.Stats.CandidateCount = len(candidates)

	r.Logger.Info("loaded dataset",
		"dataset", opts.Dataset,
		"snps", len(ds.SNPs),
		"candidates", len(candidates),
		"fdr", opts.FDR,
		"duration", result.Stats.LoadTime)

	// Stage 2: Estimate
	estimateStart := time.Now()
	effects, err := r.Estimate(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("estimate: %w", err)
	}
	result.Effects = effects
	result.Stats.EstimateTime = time.Since(estimateStart)
	result.Stats.SiteCount = len(effects)

	r.Logger.Info("estimated effect sizes",
		"sites", len(effects),
		"duration", result.Stats.EstimateTime)

	// Stage 3: Extract (optional)
	if opts.WantsExtract() {
		extractStart := time.Now()
		sequences, info, err := r.Extract(ctx, ds, effects, opts)
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		result.Sequences = sequences
		result.CacheInfo = info
		result.Stats.ExtractTime = time.Since(extractStart)

		r.Logger.Info("extracted sequences",
			"regions", len(sequences),
			"cache_hits", info.RegionHits,
			"duration", result.Stats.ExtractTime)
	}

	return result, nil
}

// Load parses the AlleleSeq files and selects candidates at the
// requested FDR.
func (r *Runner) Load(ctx context.Context, opts Options) (*alleleseq.Dataset, []alleleseq.SNP, error) {
	if err := opts.ValidateForLoad(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	observability.Analysis().OnLoadStart(ctx, "alleleseq", opts.Dataset)

	ds, err := alleleseq.Open(opts.Dataset, opts.CountFile, opts.FDRFile)
	observability.Analysis().OnLoadComplete(ctx, "alleleseq", opts.Dataset, snpCount(ds), time.Since(start), err)
	if err != nil {
		return nil, nil, err
	}
	ds.Logger = r.Logger

	return ds, ds.Candidates(opts.FDR), nil
}

// Estimate computes pooled effect sizes for the candidate SNPs.
func (r *Runner) Estimate(ctx context.Context, candidates []alleleseq.SNP) ([]alleleseq.Effect, error) {
	start := time.Now()
	observability.Analysis().OnEstimateStart(ctx, "asb", len(candidates))

	effects, err := alleleseq.EffectSizes(candidates)
	observability.Analysis().OnEstimateComplete(ctx, "asb", time.Since(start), err)
	return effects, err
}

// Extract fetches the reference sequence around each site, consulting
// the cache per region. The winning allele is substituted when
// requested, and shuffled backgrounds are generated from one seeded
// source so runs are reproducible.
func (r *Runner) Extract(ctx context.Context, ds *alleleseq.Dataset, effects []alleleseq.Effect, opts Options) ([]PeakSequence, CacheInfo, error) {
	if err := opts.ValidateForExtract(); err != nil {
		return nil, CacheInfo{}, err
	}

	genomeName := opts.GenomeName
	if genomeName == "" {
		genomeName = filepath.Base(opts.GenomePath)
	}

	start := time.Now()
	observability.Analysis().OnExtractStart(ctx, genomeName, len(effects))

	gen, err := genome.Open(opts.GenomePath)
	if err != nil {
		observability.Analysis().OnExtractComplete(ctx, genomeName, time.Since(start), err)
		return nil, CacheInfo{}, err
	}
	defer gen.Close()

	rng := rand.New(rand.NewSource(opts.Seed))

	var info CacheInfo
	sequences := make([]PeakSequence, 0, len(effects))
	for _, e := range effects {
		sequence, hit, err := r.fetchPeak(ctx, gen, ds, genomeName, e, opts.Refresh)
		if err != nil {
			observability.Analysis().OnExtractComplete(ctx, genomeName, time.Since(start), err)
			return nil, info, err
		}
		if hit {
			info.RegionHits++
		} else {
			info.RegionMisses++
		}

		if opts.ApplySNPs {
			if snp, ok := ds.Lookup(e.Chromosome, e.Position); ok {
				if allele := snp.WinningAllele(); allele != "" {
					sequence = genome.ApplySNP(sequence, allele[0])
				}
			}
		}

		peak := PeakSequence{
			Chromosome: e.Chromosome,
			Position:   e.Position,
			Sequence:   sequence,
		}
		for i := 0; i < opts.Shuffles; i++ {
			shuffled, err := shuffle.Shuffle(sequence, rng)
			if err != nil {
				observability.Analysis().OnExtractComplete(ctx, genomeName, time.Since(start), err)
				return nil, info, err
			}
			peak.Shuffled = append(peak.Shuffled, shuffled)
		}
		sequences = append(sequences, peak)
	}

	observability.Analysis().OnExtractComplete(ctx, genomeName, time.Since(start), nil)
	return sequences, info, nil
}

// fetchPeak returns the raw peak region for a site, from cache when
// possible. The reference base check only runs on a real fetch; cached
// regions were already checked when stored.
func (r *Runner) fetchPeak(ctx context.Context, gen *genome.Genome, ds *alleleseq.Dataset, genomeName string, e alleleseq.Effect, refresh bool) (string, bool, error) {
	regionStart, regionEnd := genome.PeakCoords(e.Position)
	key := r.Keyer.RegionKey(genomeName, e.Chromosome, regionStart, regionEnd)

	if !refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			observability.Cache().OnCacheHit(ctx, "region")
			return string(data), true, nil
		}
		observability.Cache().OnCacheMiss(ctx, "region")
	}

	var expected byte
	if snp, ok := ds.Lookup(e.Chromosome, e.Position); ok && len(snp.Reference) == 1 {
		expected = snp.Reference[0]
	}

	sequence, err := gen.Peak(e.Chromosome, e.Position, expected)
	if err != nil {
		return "", false, err
	}

	if err := r.Cache.Set(ctx, key, []byte(sequence), cache.TTLRegion); err == nil {
		observability.Cache().OnCacheSet(ctx, "region", len(sequence))
	}
	return sequence, false, nil
}

// MR runs a Mendelian randomisation analysis with result caching. The
// boolean reports whether the result came from cache.
func (r *Runner) MR(ctx context.Context, exposures []mendel.Exposure, gwas []mendel.GWASRecord, opts mendel.Options, refresh bool) ([]mendel.Result, bool, error) {
	opts.SetDefaults()

	inputs, err := json.Marshal(struct {
		Exposures []mendel.Exposure
		GWAS      []mendel.GWASRecord
	}{exposures, gwas})
	if err != nil {
		return nil, false, fmt.Errorf("serialize inputs for cache key: %w", err)
	}
	key := r.Keyer.ResultKey("mr", struct {
		InputsHash string
		Options    mendel.Options
	}{cache.Hash(inputs), opts})

	if !refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			var cached []mendel.Result
			if err := json.Unmarshal(data, &cached); err == nil {
				observability.Cache().OnCacheHit(ctx, "result")
				return cached, true, nil
			}
		}
		observability.Cache().OnCacheMiss(ctx, "result")
	}

	start := time.Now()
	observability.Analysis().OnEstimateStart(ctx, "mr", len(exposures))
	results, err := mendel.Analyse(exposures, gwas, opts)
	observability.Analysis().OnEstimateComplete(ctx, "mr", time.Since(start), err)
	if err != nil {
		return nil, false, err
	}

	if data, err := json.Marshal(results); err == nil {
		_ = r.Cache.Set(ctx, key, data, cache.TTLResult)
	}
	return results, false, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// snpCount tolerates a nil dataset for hook reporting.
func snpCount(ds *alleleseq.Dataset) int {
	if ds == nil {
		return 0
	}
	return len(ds.SNPs)
}
