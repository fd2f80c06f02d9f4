// Package mendel performs naive Mendelian randomisation of
// allele-specific binding variants against GWAS summary statistics.
//
// Each exposure SNP carries an effect size on transcription factor
// binding (see pkg/stats). GWAS summary records provide the estimated
// effect of the same SNP on a phenotypic trait. The ratio of the two,
// with a delta-method standard error, is the total causal effect of
// binding on the trait. P-values across all tested SNP/trait pairs are
// corrected with the Benjamini-Hochberg procedure.
package mendel

import (
	"math"
	"math/rand"
	"sort"

	"github.com/tfomics/tfomics/pkg/errors"
	"github.com/tfomics/tfomics/pkg/stats"
)

// Exposure is a variant used as an exposure variable, with its
// estimated effect on transcription factor binding.
type Exposure struct {
	SNP          string  // rsid of the variant
	Ref          string  // reference allele
	Alt          string  // alternate allele
	Effect       float64 // binding effect size
	EffectStderr float64 // standard error of the binding effect
}

// GWASRecord is one row of GWAS summary statistics.
type GWASRecord struct {
	RSID   string  // rsid of the variant
	Trait  string  // phenotypic trait
	Allele string  // effect allele the beta refers to
	Beta   float64 // estimated effect on the trait
	Stderr float64 // standard error of beta
	MAF    float64 // minor allele frequency
	HWE    float64 // Hardy-Weinberg equilibrium p-value
	IScore float64 // imputation quality score
}

// Result is the causal-effect estimate for one exposure/GWAS pair.
type Result struct {
	SNP          string
	Trait        string
	EffectAllele string  // "ref" or "alt"
	Causal       float64 // total causal effect on the trait
	Stderr       float64
	Z            float64
	P            float64
	Q            float64 // Benjamini-Hochberg adjusted p-value
}

// Options configures an MR analysis.
type Options struct {
	// Filtering thresholds for GWAS records.
	MinMAF    float64
	MinHWE    float64
	MinIScore float64

	// Traits restricts the analysis to the listed traits. Empty means
	// all traits.
	Traits []string

	// Permute shuffles the GWAS rsids before joining, for a
	// permutation test of the whole analysis.
	Permute bool
	Seed    int64
}

// Default filtering thresholds.
const (
	DefaultMinMAF    = 1.0e-3
	DefaultMinHWE    = 1.0e-50
	DefaultMinIScore = 0.9
)

// SetDefaults fills in zero-valued thresholds.
func (o *Options) SetDefaults() {
	if o.MinMAF == 0 {
		o.MinMAF = DefaultMinMAF
	}
	if o.MinHWE == 0 {
		o.MinHWE = DefaultMinHWE
	}
	if o.MinIScore == 0 {
		o.MinIScore = DefaultMinIScore
	}
}

// CausalEffect estimates the total causal effect of the exposure on the
// trait as the ratio of the GWAS beta to the exposure effect, with a
// delta-method standard error.
//
// A zero exposure effect makes the ratio singular and is an error.
func CausalEffect(exposureEffect, exposureStderr, gwasEffect, gwasStderr float64) (float64, float64, error) {
	if exposureEffect == 0 {
		return 0, 0, errors.New(errors.ErrCodeZeroExposure, "exposure effect is zero")
	}

	causal := gwasEffect / exposureEffect

	errorsSquared := gwasStderr * gwasStderr / (exposureEffect * exposureEffect)
	errorsSquared += gwasEffect * gwasEffect * exposureStderr * exposureStderr /
		math.Pow(exposureEffect, 4)

	return causal, math.Sqrt(errorsSquared), nil
}

// Filter drops GWAS records below the MAF, HWE, and imputation-score
// thresholds, and outside the trait allow-list when one is set.
func Filter(records []GWASRecord, opts Options) []GWASRecord {
	allowed := make(map[string]bool, len(opts.Traits))
	for _, t := range opts.Traits {
		allowed[t] = true
	}

	out := make([]GWASRecord, 0, len(records))
	for _, r := range records {
		if r.MAF < opts.MinMAF || r.HWE < opts.MinHWE || r.IScore < opts.MinIScore {
			continue
		}
		if len(allowed) > 0 && !allowed[r.Trait] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Analyse runs the MR analysis of a set of exposure SNPs against GWAS
// summary statistics. GWAS records are filtered first, then joined to
// the exposures by rsid; each join computes a causal effect, z score
// and two-sided p-value. Q-values across all results are
// Benjamini-Hochberg corrected.
//
// Pairs where the GWAS effect allele matches neither the ref nor the
// alt allele of the exposure produce a Result with NaN statistics, so
// the caller can see which joins were skipped.
func Analyse(exposures []Exposure, gwas []GWASRecord, opts Options) ([]Result, error) {
	opts.SetDefaults()
	gwas = Filter(gwas, opts)

	if opts.Permute {
		gwas = permuteRSIDs(gwas, opts.Seed)
	}

	byRSID := make(map[string][]GWASRecord, len(gwas))
	for _, r := range gwas {
		byRSID[r.RSID] = append(byRSID[r.RSID], r)
	}

	var results []Result
	for _, exp := range exposures {
		for _, rec := range byRSID[exp.SNP] {
			res, err := fitPair(exp, rec)
			if err != nil {
				return nil, err
			}
			results = append(results, res)
		}
	}

	pvalues := make([]float64, len(results))
	for i := range results {
		pvalues[i] = results[i].P
	}
	qvalues := stats.BenjaminiHochberg(pvalues)
	for i := range results {
		results[i].Q = qvalues[i]
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].SNP != results[j].SNP {
			return results[i].SNP < results[j].SNP
		}
		return results[i].Trait < results[j].Trait
	})
	return results, nil
}

// fitPair estimates the causal effect for one exposure/GWAS pair. The
// GWAS beta refers to a specific effect allele: when it matches the
// exposure's alt allele the binding effect keeps its sign, when it
// matches the ref allele the sign flips. Any other allele yields NaN
// statistics.
func fitPair(exp Exposure, rec GWASRecord) (Result, error) {
	res := Result{SNP: exp.SNP, Trait: rec.Trait}

	var sign float64
	switch rec.Allele {
	case exp.Alt:
		sign = 1
		res.EffectAllele = "alt"
	case exp.Ref:
		sign = -1
		res.EffectAllele = "ref"
	default:
		res.Causal = math.NaN()
		res.Stderr = math.NaN()
		res.Z = math.NaN()
		res.P = math.NaN()
		return res, nil
	}

	causal, stderr, err := CausalEffect(sign*exp.Effect, exp.EffectStderr, rec.Beta, rec.Stderr)
	if err != nil {
		return Result{}, err
	}

	res.Causal = causal
	res.Stderr = stderr
	res.Z = causal / stderr
	res.P = stats.PValue(res.Z)
	return res, nil
}

// permuteRSIDs returns a copy of the records with the rsid column
// randomly permuted. The permutation is deterministic for a given seed.
func permuteRSIDs(records []GWASRecord, seed int64) []GWASRecord {
	rng := rand.New(rand.NewSource(seed))
	rsids := make([]string, len(records))
	for i, r := range records {
		rsids[i] = r.RSID
	}
	rng.Shuffle(len(rsids), func(i, j int) { rsids[i], rsids[j] = rsids[j], rsids[i] })

	out := make([]GWASRecord, len(records))
	copy(out, records)
	for i := range out {
		out[i].RSID = rsids[i]
	}
	return out
}
