package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/tfomics/tfomics/pkg/errors"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name       string
		pos, neg   int
		wantP      float64
		wantStderr float64
	}{
		{"one in ten", 1, 9, 0.1, 0.09487},
		{"nine in ten", 9, 1, 0.9, 0.09487},
		{"even", 15, 15, 0.5, 0.09129},
		{"skewed", 12, 33, 0.26667, 0.06592},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, se, err := Ratio(tt.pos, tt.neg)
			if err != nil {
				t.Fatalf("Ratio(%d, %d) error: %v", tt.pos, tt.neg, err)
			}
			if !almostEqual(p, tt.wantP, 1e-5) {
				t.Errorf("probability = %v, want %v", p, tt.wantP)
			}
			if !almostEqual(se, tt.wantStderr, 1e-5) {
				t.Errorf("stderr = %v, want %v", se, tt.wantStderr)
			}
		})
	}
}

func TestRatioPseudocount(t *testing.T) {
	// A zero in either column is replaced by one read before estimating.
	p0, se0, err := Ratio(0, 9)
	if err != nil {
		t.Fatalf("Ratio error: %v", err)
	}
	p1, se1, err := Ratio(1, 9)
	if err != nil {
		t.Fatalf("Ratio error: %v", err)
	}
	if p0 != p1 || se0 != se1 {
		t.Errorf("Ratio(0,9) = (%v, %v), want same as Ratio(1,9) = (%v, %v)", p0, se0, p1, se1)
	}

	p, se, err := Ratio(9, 0)
	if err != nil {
		t.Fatalf("Ratio error: %v", err)
	}
	if !almostEqual(p, 0.9, 1e-5) || !almostEqual(se, 0.09487, 1e-5) {
		t.Errorf("Ratio(9,0) = (%v, %v), want (0.9, 0.09487)", p, se)
	}
}

func TestRatioNoReads(t *testing.T) {
	_, _, err := Ratio(0, 0)
	if err == nil {
		t.Fatal("Ratio(0, 0) should fail")
	}
	if !errors.Is(err, errors.ErrCodeNoReads) {
		t.Errorf("error code = %v, want NO_READS", errors.GetCode(err))
	}
}

func TestRatioSwapSymmetry(t *testing.T) {
	// Swapping success for failure maps p -> 1-p and keeps the stderr.
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		a, b := rng.Intn(100), rng.Intn(100)
		if a == 0 && b == 0 {
			continue
		}
		pa, sa, err := Ratio(a, b)
		if err != nil {
			t.Fatalf("Ratio error: %v", err)
		}
		pb, sb, err := Ratio(b, a)
		if err != nil {
			t.Fatalf("Ratio error: %v", err)
		}
		if !almostEqual(pa, 1-pb, 1e-12) {
			t.Fatalf("Ratio(%d,%d) p = %v, want 1 - %v", a, b, pa, pb)
		}
		if !almostEqual(sa, sb, 1e-12) {
			t.Fatalf("Ratio(%d,%d) stderr = %v, want %v", a, b, sa, sb)
		}
	}
}

func TestEffectSize(t *testing.T) {
	tests := []struct {
		ratio, stderr float64
		wantES        float64
		wantStderr    float64
	}{
		{0.1, 0.09487, 0.8, 0.1897},
		{0.9, 0.09487, -0.8, 0.1897},
		{0.5, 0.09129, 0.0, 0.1826},
		{0.26667, 0.06592, 0.4667, 0.1318},
	}

	for _, tt := range tests {
		es, se := EffectSize(tt.ratio, tt.stderr)
		if !almostEqual(es, tt.wantES, 1e-4) {
			t.Errorf("EffectSize(%v) = %v, want %v", tt.ratio, es, tt.wantES)
		}
		if !almostEqual(se, tt.wantStderr, 1e-4) {
			t.Errorf("EffectSize stderr(%v) = %v, want %v", tt.stderr, se, tt.wantStderr)
		}
	}
}

func TestFitSamplesSingle(t *testing.T) {
	// One sample reduces to Ratio + EffectSize.
	es, se, err := FitSamples([]int{2}, []int{10})
	if err != nil {
		t.Fatalf("FitSamples error: %v", err)
	}
	if !almostEqual(es, 0.6667, 1e-4) {
		t.Errorf("effect size = %v, want 0.6667", es)
	}
	if !almostEqual(se, 0.2152, 1e-4) {
		t.Errorf("stderr = %v, want 0.2152", se)
	}
}

func TestFitSamplesIdenticalReplicates(t *testing.T) {
	// Identical replicates agree on the slope, and the combined stderr
	// shrinks relative to a single sample.
	esOne, seOne, err := FitSamples([]int{2}, []int{10})
	if err != nil {
		t.Fatalf("FitSamples error: %v", err)
	}
	es, se, err := FitSamples([]int{2, 2, 2}, []int{10, 10, 10})
	if err != nil {
		t.Fatalf("FitSamples error: %v", err)
	}
	if !almostEqual(es, esOne, 1e-9) {
		t.Errorf("effect size = %v, want %v", es, esOne)
	}
	if se >= seOne {
		t.Errorf("combined stderr %v should be below single-sample stderr %v", se, seOne)
	}
}

func TestFitSamplesMismatched(t *testing.T) {
	if _, _, err := FitSamples([]int{1, 2}, []int{3}); err == nil {
		t.Error("mismatched sample slices should fail")
	}
	if _, _, err := FitSamples(nil, nil); err == nil {
		t.Error("empty samples should fail")
	}
}

func TestGroup(t *testing.T) {
	mean, pooled := Group([]float64{1, 0}, []float64{1, 1})
	if !almostEqual(mean, 0.5, 1e-4) {
		t.Errorf("mean = %v, want 0.5", mean)
	}
	if !almostEqual(pooled, 0.7071, 1e-4) {
		t.Errorf("pooled stderr = %v, want 0.7071", pooled)
	}

	mean, pooled = Group([]float64{1, 1, 0}, []float64{1, 1, 1})
	if !almostEqual(mean, 0.6667, 1e-4) {
		t.Errorf("mean = %v, want 0.6667", mean)
	}
	if !almostEqual(pooled, 0.5774, 1e-4) {
		t.Errorf("pooled stderr = %v, want 0.5774", pooled)
	}
}

func TestGroupEmpty(t *testing.T) {
	mean, pooled := Group(nil, nil)
	if !math.IsNaN(mean) || !math.IsNaN(pooled) {
		t.Errorf("Group(nil) = (%v, %v), want NaN", mean, pooled)
	}
}

func TestPValue(t *testing.T) {
	tests := []struct {
		z    float64
		want float64
	}{
		{0, 1},
		{1.959964, 0.05},
		{-1.959964, 0.05},
		{2.575829, 0.01},
	}
	for _, tt := range tests {
		if got := PValue(tt.z); !almostEqual(got, tt.want, 1e-4) {
			t.Errorf("PValue(%v) = %v, want %v", tt.z, got, tt.want)
		}
	}
}

func TestBenjaminiHochberg(t *testing.T) {
	p := []float64{0.01, 0.04, 0.03, 0.005}
	q := BenjaminiHochberg(p)

	// Ranked: 0.005, 0.01, 0.03, 0.04 -> raw 0.02, 0.02, 0.04, 0.04.
	want := []float64{0.02, 0.04, 0.04, 0.02}
	for i := range want {
		if !almostEqual(q[i], want[i], 1e-9) {
			t.Errorf("q[%d] = %v, want %v", i, q[i], want[i])
		}
	}
}

func TestBenjaminiHochbergNaN(t *testing.T) {
	q := BenjaminiHochberg([]float64{0.05, math.NaN(), 0.05})
	if !math.IsNaN(q[1]) {
		t.Errorf("q for NaN p-value should stay NaN, got %v", q[1])
	}
	// NaN entries do not count towards the number of tests.
	if !almostEqual(q[0], 0.05*2/2, 1e-9) {
		t.Errorf("q[0] = %v, want 0.05", q[0])
	}
}
