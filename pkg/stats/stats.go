// Package stats estimates effect sizes at potential allele-specific
// binding sites.
//
// Read counts for the two alleles of a heterozygous SNP are treated as
// outcomes of a binomial experiment. The allelic ratio and its standard
// error are rescaled to an effect size in [-1, 1], where 0 means the
// transcription factor bound both alleles equally. Several samples of
// the same site can be combined with a weighted least-squares fit, and
// per-site results can be pooled across replicates.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tfomics/tfomics/pkg/errors"
)

// Ratio estimates the binomial probability of drawing a positive read
// and its standard error, treating positives vs. negatives as the two
// outcomes of a binomial experiment.
//
// A zero in either column is replaced by a single pseudocount before
// estimating, so a site that only ever produced reads for one allele
// still yields a finite standard error. A site with no reads at all is
// an error.
func Ratio(positives, negatives int) (float64, float64, error) {
	if positives+negatives == 0 {
		return 0, 0, errors.New(errors.ErrCodeNoReads, "encountered SNP with 0 reads")
	}
	if positives == 0 {
		positives = 1
	}
	if negatives == 0 {
		negatives = 1
	}

	total := float64(positives + negatives)
	p := float64(positives) / total
	se := math.Sqrt(p * (1 - p) / total)
	return p, se, nil
}

// EffectSize rescales an allelic ratio and its standard error to an
// effect size in [-1, 1]. A ratio of 0.5 maps to 0; a site where every
// read supported the negative allele maps to 1.
func EffectSize(ratio, stderr float64) (float64, float64) {
	return 1 - 2*ratio, 2 * stderr
}

// FitSamples estimates a single effect size from one or more samples of
// the same binding site. refCounts[i] and altCounts[i] are the read
// counts of sample i.
//
// With a single sample this reduces to Ratio followed by EffectSize.
// With several samples, each sample contributes the points (0, r_i) and
// (1, 1-r_i) where r_i is its reference-allele ratio, and a weighted
// least-squares line is fit through them with per-point sigma equal to
// the binomial standard error. The slope of that line is the combined
// effect size; its standard error is the square root of the slope's
// covariance.
func FitSamples(refCounts, altCounts []int) (float64, float64, error) {
	if len(refCounts) != len(altCounts) {
		return 0, 0, errors.New(errors.ErrCodeInvalidInput,
			"mismatched sample counts: %d ref vs %d alt", len(refCounts), len(altCounts))
	}
	if len(refCounts) == 0 {
		return 0, 0, errors.New(errors.ErrCodeInvalidInput, "no samples")
	}

	if len(refCounts) == 1 {
		r, se, err := Ratio(refCounts[0], altCounts[0])
		if err != nil {
			return 0, 0, err
		}
		es, esSE := EffectSize(r, se)
		return es, esSE, nil
	}

	xs := make([]float64, 0, 2*len(refCounts))
	ys := make([]float64, 0, 2*len(refCounts))
	sigmas := make([]float64, 0, 2*len(refCounts))
	for i := range refCounts {
		r, se, err := Ratio(refCounts[i], altCounts[i])
		if err != nil {
			return 0, 0, err
		}
		xs = append(xs, 0, 1)
		ys = append(ys, r, 1-r)
		sigmas = append(sigmas, se, se)
	}

	return fitLine(xs, ys, sigmas)
}

// fitLine performs a weighted least-squares fit of y = a*x + b and
// returns the slope a and the square root of its covariance. Weights
// are 1/sigma^2 (absolute sigma, matching a chi-square fit).
func fitLine(xs, ys, sigmas []float64) (float64, float64, error) {
	var a00, a01, a11, b0, b1 float64
	for i := range xs {
		w := 1 / (sigmas[i] * sigmas[i])
		a00 += w * xs[i] * xs[i]
		a01 += w * xs[i]
		a11 += w
		b0 += w * xs[i] * ys[i]
		b1 += w * ys[i]
	}

	normal := mat.NewDense(2, 2, []float64{a00, a01, a01, a11})
	var cov mat.Dense
	if err := cov.Inverse(normal); err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeSingularFit, err, "least-squares fit is singular")
	}

	var params mat.VecDense
	params.MulVec(&cov, mat.NewVecDense(2, []float64{b0, b1}))

	return params.AtVec(0), math.Sqrt(cov.At(0, 0)), nil
}

// Group pools a set of estimates of the same quantity: the mean of the
// values and the pooled standard error sqrt(sum(se_i^2))/n.
func Group(values, stderrs []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}

	var sumSq float64
	for _, se := range stderrs {
		sumSq += se * se
	}
	return stat.Mean(values, nil), math.Sqrt(sumSq) / float64(len(values))
}

// PValue returns the two-sided normal p-value for a z score.
func PValue(z float64) float64 {
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}

// BenjaminiHochberg applies the Benjamini-Hochberg step-up procedure to
// a set of p-values and returns the adjusted q-values in the original
// order. NaN p-values stay NaN and do not count towards the number of
// tests.
func BenjaminiHochberg(pvalues []float64) []float64 {
	type ranked struct {
		p   float64
		idx int
	}

	valid := make([]ranked, 0, len(pvalues))
	for i, p := range pvalues {
		if !math.IsNaN(p) {
			valid = append(valid, ranked{p: p, idx: i})
		}
	}

	out := make([]float64, len(pvalues))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(valid) == 0 {
		return out
	}

	n := float64(len(valid))
	sort.Slice(valid, func(i, j int) bool { return valid[i].p < valid[j].p })

	// Step up from the largest p-value, enforcing monotonicity.
	prev := 1.0
	for i := len(valid) - 1; i >= 0; i-- {
		q := valid[i].p * n / float64(i+1)
		if q > prev {
			q = prev
		}
		prev = q
		out[valid[i].idx] = q
	}
	return out
}
