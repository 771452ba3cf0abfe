package analytics

import (
	"math"

	"PairPulse/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

const (
	huberK         = 1.345
	huberMaxIter   = 50
	huberTolerance = 1e-10
	// madScale turns a MAD into a consistent estimate of a normal std.
	madScale = 0.6745
)

// fit is a fitted line a = Alpha + Beta*b.
type fit struct {
	Alpha float64
	Beta  float64
}

// estimateStatic fits one hedge ratio over the whole window. The Kalman
// estimator is stateful and handled by the engine.
func estimateStatic(est models.Estimator, a, b []float64, maxMedianWindow int) (fit, error) {
	if isFlat(b) {
		return fit{}, &models.SingularEstimationError{Estimator: est, Reason: "zero variance in the hedge leg"}
	}
	switch est {
	case models.EstimatorOLS:
		return ols(a, b)
	case models.EstimatorHuber:
		return huber(a, b)
	case models.EstimatorTheilSen:
		if maxMedianWindow > 1 && len(a) > maxMedianWindow {
			a, b = a[len(a)-maxMedianWindow:], b[len(b)-maxMedianWindow:]
		}
		return theilSen(a, b)
	}
	return fit{}, models.NewValidationError("estimator", "not a static estimator: "+string(est))
}

func ols(a, b []float64) (fit, error) {
	alpha, beta := stat.LinearRegression(b, a, nil, false)
	if !finite(alpha, beta) {
		return fit{}, &models.SingularEstimationError{Estimator: models.EstimatorOLS, Reason: "non-finite coefficients"}
	}
	return fit{Alpha: alpha, Beta: beta}, nil
}

// huber runs iteratively reweighted least squares with Huber weights. The
// cutoff is huberK times the MAD-based residual scale.
func huber(a, b []float64) (fit, error) {
	f, err := ols(a, b)
	if err != nil {
		return fit{}, &models.SingularEstimationError{Estimator: models.EstimatorHuber, Reason: "initial fit failed"}
	}

	resid := make([]float64, len(a))
	weights := make([]float64, len(a))
	for iter := 0; iter < huberMaxIter; iter++ {
		for i := range a {
			resid[i] = a[i] - f.Alpha - f.Beta*b[i]
		}
		scale := mad(resid) / madScale
		if scale <= flatTolerance {
			// residuals (almost) all equal: the current line is exact
			return f, nil
		}
		cutoff := huberK * scale
		for i, r := range resid {
			if ar := math.Abs(r); ar <= cutoff {
				weights[i] = 1
			} else {
				weights[i] = cutoff / ar
			}
		}

		alpha, beta := stat.LinearRegression(b, a, weights, false)
		if !finite(alpha, beta) {
			return fit{}, &models.SingularEstimationError{Estimator: models.EstimatorHuber, Reason: "weighted fit is degenerate"}
		}
		done := math.Abs(beta-f.Beta) <= huberTolerance*(1+math.Abs(f.Beta)) &&
			math.Abs(alpha-f.Alpha) <= huberTolerance*(1+math.Abs(f.Alpha))
		f = fit{Alpha: alpha, Beta: beta}
		if done {
			break
		}
	}
	return f, nil
}

// theilSen takes the median of all pairwise slopes; the intercept is the
// median of a - beta*b.
func theilSen(a, b []float64) (fit, error) {
	n := len(a)
	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if db := b[j] - b[i]; db != 0 {
				slopes = append(slopes, (a[j]-a[i])/db)
			}
		}
	}
	if len(slopes) == 0 {
		return fit{}, &models.SingularEstimationError{Estimator: models.EstimatorTheilSen, Reason: "no distinct hedge-leg prices"}
	}
	beta := median(slopes)

	intercepts := make([]float64, n)
	for i := range a {
		intercepts[i] = a[i] - beta*b[i]
	}
	return fit{Alpha: median(intercepts), Beta: beta}, nil
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
