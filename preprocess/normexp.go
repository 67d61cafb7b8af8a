package preprocess

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DefaultNormExpOffset is added to every adjusted intensity so the
	// output stays strictly positive for downstream ratio computation.
	DefaultNormExpOffset = 50

	// The fitted exponential mean is bounded away from zero; a near-zero
	// signal rate makes the convolution model degenerate.
	minNormExpAlpha = 10

	// Floor applied when numerical accuracy limits push an adjusted
	// intensity below zero.
	normExpSignalFloor = 1e-6
)

// ErrNonPositiveParam reports a Normal+Exponential parameter set whose
// scale (sigma) or signal mean (alpha) is not strictly positive. The model
// is undefined for such parameters, so this is a model-degeneracy error
// rather than a numeric warning.
var ErrNonPositiveParam = errors.New("normexp: sigma and alpha must be positive")

// NormExpParams holds the fitted Normal+Exponential parameters of one
// probe: the background mean, and the logs of the background standard
// deviation and of the exponential signal mean. Sigma and alpha are stored
// on the log scale so a persisted table round-trips exactly what the model
// consumes.
type NormExpParams struct {
	Mu       float64 `csv:"mu"`
	LogSigma float64 `csv:"log_sigma"`
	LogAlpha float64 `csv:"log_alpha"`
}

// NormExpSignal returns the expected true signal given the observed
// foreground intensities x, under a Normal(mu, sigma^2) background
// convolved with an Exponential(1/alpha) signal prior. This is the
// closed-form posterior mean used by the NOOB background correction.
//
// For very low intensities or very high background the posterior mean can
// fall below zero purely through loss of floating-point precision; such
// values are floored at a small positive constant and a warning is written
// to logger (log.Default() when nil).
//
// References: Ritchie et al. (2007), Bioinformatics 23, 2700-2707;
// Silver, Ritchie and Smyth (2009), Biostatistics 10, 352-363.
func NormExpSignal(par NormExpParams, x []float64, logger *log.Logger) ([]float64, error) {
	if logger == nil {
		logger = log.Default()
	}

	sigma := math.Exp(par.LogSigma)
	alpha := math.Exp(par.LogAlpha)
	if !(alpha > 0) {
		return nil, fmt.Errorf("%w: alpha=%v", ErrNonPositiveParam, alpha)
	}
	if !(sigma > 0) {
		return nil, fmt.Errorf("%w: sigma=%v", ErrNonPositiveParam, sigma)
	}

	sigma2 := sigma * sigma

	signal := make([]float64, len(x))
	warned := false
	for i, xi := range x {
		muSF := xi - par.Mu - sigma2/alpha

		background := distuv.Normal{Mu: muSF, Sigma: sigma}
		logDnorm := background.LogProb(0)
		logPnorm := logSurvivalAtZero(background)

		s := muSF + sigma2*math.Exp(logDnorm-logPnorm)

		if !math.IsNaN(s) && s < 0 {
			if !warned {
				logger.Print("normexp: limit of numerical accuracy reached with very low intensity or very high background: setting adjusted intensities to small value")
				warned = true
			}
			s = math.Max(s, normExpSignalFloor)
		}

		signal[i] = s
	}

	return signal, nil
}

// logSurvivalAtZero returns log P(X > 0) for X ~ d. The direct survival
// value underflows once the mean is more than roughly 38 standard
// deviations below zero; past that point the standard upper-tail
// asymptotic of the normal distribution is used instead.
func logSurvivalAtZero(d distuv.Normal) float64 {
	if sf := d.Survival(0); sf > 0 {
		return math.Log(sf)
	}

	z := -d.Mu / d.Sigma
	return -0.5*z*z - math.Log(z) - 0.5*math.Log(2*math.Pi)
}

// NormExpResult is the outcome of a NOOB background correction: the
// adjusted intensities and the per-probe parameter table that produced
// them. The parameter table can be cached and passed back to NormExpGetXs
// to correct further observations without re-fitting.
type NormExpResult struct {
	Adjusted [][]float64
	Params   []NormExpParams
}

// NormExpGetXs fits (when params is nil) and applies the Normal+Exponential
// background model to observed, shaped [probes][samples]. In fitting mode,
// controls must hold one row of background/control intensities per probe;
// the background location and scale come from Huber's M-estimator on the
// control row, and the signal mean alpha from the excess of the observed
// row's robust location over the background location, bounded below at 10.
//
// Probe rows are independent and are processed by a bounded worker pool.
// ctx is consulted between rows only; a row in flight is finished.
func NormExpGetXs(ctx context.Context, observed, controls [][]float64, params []NormExpParams, offset float64, logger *log.Logger) (*NormExpResult, error) {
	if logger == nil {
		logger = log.Default()
	}

	nProbes := len(observed)
	if nProbes == 0 {
		return nil, fmt.Errorf("no probe rows to correct")
	}

	if params == nil {
		if controls == nil {
			return nil, fmt.Errorf("either controls or params must be given")
		}
		if len(controls) != nProbes {
			return nil, fmt.Errorf("controls has %d rows, observed has %d", len(controls), nProbes)
		}

		var err error
		params, err = fitNormExp(ctx, observed, controls, logger)
		if err != nil {
			return nil, err
		}
	} else if len(params) != nProbes {
		return nil, fmt.Errorf("params has %d rows, observed has %d", len(params), nProbes)
	}

	result := &NormExpResult{
		Adjusted: make([][]float64, nProbes),
		Params:   params,
	}

	err := forEachRow(ctx, nProbes, func(i int) error {
		adjusted, err := NormExpSignal(params[i], observed[i], logger)
		if err != nil {
			return fmt.Errorf("probe row %d: %w", i, err)
		}

		for j := range adjusted {
			adjusted[j] += offset
		}
		result.Adjusted[i] = adjusted

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// fitNormExp estimates the per-probe parameter triples.
func fitNormExp(ctx context.Context, observed, controls [][]float64, logger *log.Logger) ([]NormExpParams, error) {
	params := make([]NormExpParams, len(observed))

	err := forEachRow(ctx, len(observed), func(i int) error {
		mu, sigma, err := Huber(controls[i], DefaultHuberK, DefaultHuberTol, logger)
		if err != nil {
			return fmt.Errorf("probe row %d controls: %w", i, err)
		}

		observedMu, _, err := Huber(observed[i], DefaultHuberK, DefaultHuberTol, logger)
		if err != nil {
			return fmt.Errorf("probe row %d: %w", i, err)
		}

		alpha := math.Max(observedMu-mu, minNormExpAlpha)

		params[i] = NormExpParams{
			Mu:       mu,
			LogSigma: math.Log(sigma),
			LogAlpha: math.Log(alpha),
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return params, nil
}

// forEachRow runs fn(i) for i in [0, n) across a worker pool bounded by the
// CPU count, stopping early on the first error or on context cancellation.
// Rows already dispatched run to completion.
func forEachRow(ctx context.Context, n int, fn func(i int) error) error {
	concurrency := runtime.NumCPU()
	if concurrency > n {
		concurrency = n
	}

	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			break
		}

		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()
		if failed {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(i); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}

	return ctx.Err()
}
