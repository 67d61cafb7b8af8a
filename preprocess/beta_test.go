package preprocess

import (
	"math"
	"testing"
)

type betaExpectation struct {
	Methylated   float64
	Unmethylated float64
	Offset       float64
	Threshold    float64
	MinZero      bool

	Beta float64 // NaN means "expect NaN"
}

func TestBeta(t *testing.T) {
	for _, v := range []betaExpectation{
		{3, 1, 0, 0, true, 0.75},
		{0, 0, 0, 0, true, math.NaN()},
		{1, 0, 0, 0, true, 1},
		{0, 1, 0, 0, true, 0},
		{1, 1, 2, 0, true, 0.25},
		// Thresholding clips into [t, 1-t].
		{2, 98, 0, 0.1, true, 0.1},
		{98, 2, 0, 0.1, true, 0.9},
		{1, 1, 0, 0.1, true, 0.5},
		// minZero floors negative corrected intensities first.
		{-5, 10, 0, 0, true, 0},
		{10, -5, 0, 0, true, 1},
	} {
		betas, err := Beta([][]float64{{v.Methylated}}, [][]float64{{v.Unmethylated}}, v.Offset, v.Threshold, v.MinZero)
		if err != nil {
			t.Fatalf("input %+v: %v", v, err)
		}

		got := betas[0][0]
		if math.IsNaN(v.Beta) {
			if !math.IsNaN(got) {
				t.Fatalf("input %+v: beta = %v, expected NaN", v, got)
			}
			continue
		}
		if math.Abs(got-v.Beta) > 1e-12 {
			t.Fatalf("input %+v: beta = %v, expected %v", v, got, v.Beta)
		}
	}
}

func TestBetaPreconditions(t *testing.T) {
	meth := [][]float64{{1}}
	unmeth := [][]float64{{1}}

	if _, err := Beta(meth, unmeth, -1, 0, true); err == nil {
		t.Fatal("expected an error for a negative offset")
	}
	if _, err := Beta(meth, unmeth, 0, 0.6, true); err == nil {
		t.Fatal("expected an error for a threshold above 0.5")
	}
	if _, err := Beta(meth, unmeth, 0, -0.1, true); err == nil {
		t.Fatal("expected an error for a negative threshold")
	}
	if _, err := Beta(meth, [][]float64{{1, 2}}, 0, 0, true); err == nil {
		t.Fatal("expected an error for mismatched shapes")
	}
	if _, err := Beta(meth, [][]float64{}, 0, 0, true); err == nil {
		t.Fatal("expected an error for mismatched row counts")
	}
}

func TestBetaWithoutMinZero(t *testing.T) {
	// Negative intensities pass through when minZero is off; the ratio is
	// then computed on the raw values.
	betas, err := Beta([][]float64{{-2}}, [][]float64{{6}}, 0, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	if got := betas[0][0]; math.Abs(got-(-0.5)) > 1e-12 {
		t.Fatalf("beta = %v, expected -0.5", got)
	}
}
