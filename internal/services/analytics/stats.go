package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// flatTolerance is the relative std below which a series counts as constant.
const flatTolerance = 1e-10

func isFlat(x []float64) bool {
	if len(x) < 2 {
		return true
	}
	mean, std := stat.PopMeanStdDev(x, nil)
	return std <= flatTolerance*math.Max(1, math.Abs(mean))
}

// rollingZScores scores each of the last n points of x against the mean and
// std of the trailing sub-window ending at that point. Early points use
// whatever history is available; a flat sub-window scores 0.
func rollingZScores(x []float64, n, sub int) []float64 {
	out := make([]float64, n)
	offset := len(x) - n
	for i := range out {
		end := offset + i + 1
		w := x[max(0, end-sub):end]
		if isFlat(w) {
			continue
		}
		mean, std := stat.PopMeanStdDev(w, nil)
		out[i] = (x[end-1] - mean) / std
	}
	return out
}

// pearson returns NaN when either side is flat or too short.
func pearson(x, y []float64) float64 {
	if len(x) < 2 || isFlat(x) || isFlat(y) {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// rollingCorr computes, for each of the last n points, the correlation over
// the trailing sub-window ending at that point. Early points use whatever
// history is available.
func rollingCorr(a, b []float64, n, sub int) []float64 {
	out := make([]float64, n)
	offset := len(a) - n
	for i := range out {
		end := offset + i + 1
		start := max(0, end-sub)
		out[i] = pearson(a[start:end], b[start:end])
	}
	return out
}

func median(x []float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	n := len(s)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// mad is the median absolute deviation around the median.
func mad(x []float64) float64 {
	m := median(x)
	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - m)
	}
	return median(dev)
}
