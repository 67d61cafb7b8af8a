// Package preprocess implements the intensity normalization pipeline for
// methylation arrays: robust location/scale estimation, Normal+Exponential
// background deconvolution (NOOB), within-array subset-quantile bias
// correction (SWAN), and beta value computation.
package preprocess

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/montanaflynn/stats"
)

const (
	// DefaultHuberK winsorizes at 1.5 standard deviations.
	DefaultHuberK = 1.5

	// DefaultHuberTol is the convergence tolerance of the location
	// iteration, relative to the scale estimate.
	DefaultHuberTol = 1.0e-6

	// The fixed-point iteration converges in a handful of steps on real
	// data; the cap only guards against oscillation.
	maxHuberIterations = 100

	// madNormalConstant makes the MAD a consistent estimator of the
	// standard deviation under normality.
	madNormalConstant = 1.4826
)

// ErrZeroScale reports a sample whose median absolute deviation is zero.
// The winsorizing thresholds would collapse to a point, so no robust scale
// can be estimated for such a sample.
var ErrZeroScale = errors.New("cannot estimate scale: MAD is zero for this sample")

// Huber computes Huber's M-estimator of location with MAD scale. NaN values
// are discarded before estimation. k sets the winsorizing threshold in
// units of the scale estimate and tol the relative convergence tolerance;
// DefaultHuberK and DefaultHuberTol match the conventional choices.
//
// The scale is estimated once as 1.4826 times the median absolute
// deviation and is not refined during the iteration; only the location is.
// If the iteration cap is reached before convergence a warning is written
// to logger (log.Default() when nil) and the current estimate is returned.
//
// Reference: Huber, P. J. (1981). Robust Statistics. Wiley.
func Huber(y []float64, k, tol float64, logger *log.Logger) (location, scale float64, err error) {
	if logger == nil {
		logger = log.Default()
	}

	clean := make([]float64, 0, len(y))
	for _, v := range y {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}

	if len(clean) == 0 {
		return 0, 0, fmt.Errorf("no non-NaN values among %d inputs", len(y))
	}
	if k <= 0 {
		return 0, 0, fmt.Errorf("winsorizing multiplier must be positive, got %v", k)
	}
	if tol <= 0 {
		return 0, 0, fmt.Errorf("convergence tolerance must be positive, got %v", tol)
	}

	mu, err := stats.Median(clean)
	if err != nil {
		return 0, 0, err
	}

	mad, err := stats.MedianAbsoluteDeviation(clean)
	if err != nil {
		return 0, 0, err
	}

	s := mad * madNormalConstant
	if s == 0 {
		return 0, 0, ErrZeroScale
	}

	clipped := make([]float64, len(clean))
	for iter := 0; ; iter++ {
		if iter >= maxHuberIterations {
			logger.Printf("huber: location did not converge within %d iterations (last estimate %v)", maxHuberIterations, mu)
			break
		}

		lo, hi := mu-k*s, mu+k*s
		for i, v := range clean {
			switch {
			case v < lo:
				clipped[i] = lo
			case v > hi:
				clipped[i] = hi
			default:
				clipped[i] = v
			}
		}

		mu1, err := stats.Mean(clipped)
		if err != nil {
			return 0, 0, err
		}

		if math.Abs(mu-mu1) < tol*s {
			break
		}
		mu = mu1
	}

	return mu, s, nil
}
