package analytics

import (
	"math"

	"PairPulse/internal/domain/models"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MinStationarityPoints is the smallest sample the ADF test accepts.
const MinStationarityPoints = 20

// MacKinnon (1994) response-surface coefficients for the constant-only
// regression with one variable.
var (
	adfTauMax   = 2.74
	adfTauMin   = -18.83
	adfTauStar  = -1.61
	adfSmallP   = [3]float64{2.1659, 1.4412, 0.038269}
	adfLargeP   = [4]float64{1.7339, 0.93202, -0.12745, -0.010368}
	adfCritical = map[string][4]float64{
		"1%":  {-3.43035, -6.5393, -16.786, -79.433},
		"5%":  {-2.86154, -2.8903, -4.234, -40.040},
		"10%": {-2.56677, -1.5384, -2.809, 0},
	}
)

// ADF runs an augmented Dickey-Fuller test with a constant on y:
//
//	dy_t = c + g*y_{t-1} + sum_i d_i*dy_{t-i} + e_t
//
// The lag order is chosen by AIC up to 12*(n/100)^(1/4). The statistic is the
// t-ratio of g; the p-value uses MacKinnon's approximation.
func ADF(y []float64) (*models.StationarityResult, error) {
	n := len(y)
	if n < MinStationarityPoints {
		return nil, models.NewInsufficientDataError("stationarity test", MinStationarityPoints, n)
	}
	if isFlat(y) {
		return nil, &models.SingularEstimationError{Estimator: "adf", Reason: "constant series"}
	}

	dy := make([]float64, n-1)
	for i := 1; i < n; i++ {
		dy[i-1] = y[i] - y[i-1]
	}

	maxLag := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	maxLag = min(maxLag, n/2-2)
	if maxLag < 0 {
		maxLag = 0
	}

	// choose the lag on a common sample so AICs are comparable
	bestLag, bestAIC := 0, math.Inf(1)
	for p := 0; p <= maxLag; p++ {
		r, err := adfRegression(y, dy, p, maxLag)
		if err != nil {
			continue
		}
		if r.aic < bestAIC {
			bestLag, bestAIC = p, r.aic
		}
	}

	r, err := adfRegression(y, dy, bestLag, bestLag)
	if err != nil {
		return nil, err
	}

	nobs := float64(r.nobs)
	crit := make(map[string]float64, len(adfCritical))
	for level, c := range adfCritical {
		crit[level] = c[0] + c[1]/nobs + c[2]/(nobs*nobs) + c[3]/(nobs*nobs*nobs)
	}

	return &models.StationarityResult{
		Statistic:      r.tstat,
		PValue:         mackinnonP(r.tstat),
		Lags:           bestLag,
		NObs:           r.nobs,
		CriticalValues: crit,
	}, nil
}

type adfFit struct {
	tstat float64
	aic   float64
	nobs  int
}

// adfRegression fits the ADF regression with lags lagged differences, using
// rows from start+1 so different lag orders can share a sample.
func adfRegression(y, dy []float64, lags, start int) (adfFit, error) {
	rows := len(dy) - start
	cols := 2 + lags
	if rows <= cols {
		return adfFit{}, models.NewInsufficientDataError("stationarity regression", cols+1, rows)
	}

	x := mat.NewDense(rows, cols, nil)
	target := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := start + r // index into dy; dy[t] = y[t+1] - y[t]
		target.SetVec(r, dy[t])
		x.Set(r, 0, 1)
		x.Set(r, 1, y[t])
		for i := 1; i <= lags; i++ {
			x.Set(r, 1+i, dy[t-i])
		}
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return adfFit{}, &models.SingularEstimationError{Estimator: "adf", Reason: err.Error()}
	}

	var xty, coef, fitted mat.VecDense
	xty.MulVec(x.T(), target)
	coef.MulVec(&inv, &xty)
	fitted.MulVec(x, &coef)

	ssr := 0.0
	for r := 0; r < rows; r++ {
		e := target.AtVec(r) - fitted.AtVec(r)
		ssr += e * e
	}
	dof := float64(rows - cols)
	se := math.Sqrt(ssr / dof * inv.At(1, 1))
	if se == 0 || math.IsNaN(se) {
		return adfFit{}, &models.SingularEstimationError{Estimator: "adf", Reason: "zero residual variance"}
	}

	nf := float64(rows)
	llf := -nf / 2 * (math.Log(2*math.Pi) + math.Log(ssr/nf) + 1)
	return adfFit{
		tstat: coef.AtVec(1) / se,
		aic:   -2*llf + 2*float64(cols),
		nobs:  rows,
	}, nil
}

// mackinnonP approximates the asymptotic p-value of an ADF t-statistic.
func mackinnonP(stat float64) float64 {
	switch {
	case stat > adfTauMax:
		return 1
	case stat < adfTauMin:
		return 0
	}
	var z float64
	if stat <= adfTauStar {
		c := adfSmallP
		z = c[0] + c[1]*stat + c[2]*stat*stat
	} else {
		c := adfLargeP
		z = c[0] + c[1]*stat + c[2]*stat*stat + c[3]*stat*stat*stat
	}
	return distuv.UnitNormal.CDF(z)
}
