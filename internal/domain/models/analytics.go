package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Estimator selects how the hedge ratio is fitted.
type Estimator string

const (
	EstimatorOLS      Estimator = "ols"
	EstimatorHuber    Estimator = "huber"
	EstimatorTheilSen Estimator = "theil_sen"
	EstimatorKalman   Estimator = "kalman"
)

// ParseEstimator accepts the canonical names plus a few common spellings.
func ParseEstimator(s string) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ols":
		return EstimatorOLS, nil
	case "huber", "robust":
		return EstimatorHuber, nil
	case "theil_sen", "theil-sen", "theilsen", "median":
		return EstimatorTheilSen, nil
	case "kalman", "adaptive":
		return EstimatorKalman, nil
	}
	return "", NewValidationError("estimator", fmt.Sprintf("unknown estimator %q", s))
}

// Adaptive reports whether the estimator yields a ratio per observation.
func (e Estimator) Adaptive() bool { return e == EstimatorKalman }

// SeriesPoint is one value of a time series. NaN and Inf encode as null.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

func (p SeriesPoint) MarshalJSON() ([]byte, error) {
	var value interface{} = p.Value
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		value = nil
	}
	return json.Marshal(struct {
		Timestamp time.Time   `json:"timestamp"`
		Value     interface{} `json:"value"`
	}{p.Timestamp, value})
}

func (p *SeriesPoint) UnmarshalJSON(b []byte) error {
	var raw struct {
		Timestamp time.Time `json:"timestamp"`
		Value     *float64  `json:"value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.Timestamp = raw.Timestamp
	p.Value = math.NaN()
	if raw.Value != nil {
		p.Value = *raw.Value
	}
	return nil
}

// StationarityResult is the outcome of an augmented Dickey-Fuller test.
type StationarityResult struct {
	Statistic      float64            `json:"statistic"`
	PValue         float64            `json:"p_value"`
	Lags           int                `json:"lags"`
	NObs           int                `json:"nobs"`
	CriticalValues map[string]float64 `json:"critical_values"`
}

// Stationary reports whether the unit-root null is rejected at level alpha.
func (r *StationarityResult) Stationary(alpha float64) bool {
	return r != nil && r.PValue < alpha
}

// AnalyticsSnapshot is an immutable result of one pair computation. A newer
// computation replaces the snapshot; it is never edited in place.
type AnalyticsSnapshot struct {
	Pair         string              `json:"pair"`
	SymbolA      string              `json:"symbol_a"`
	SymbolB      string              `json:"symbol_b"`
	Timeframe    string              `json:"timeframe"`
	Window       int                 `json:"window"`
	Estimator    Estimator           `json:"estimator"`
	HedgeRatio   []SeriesPoint       `json:"hedge_ratio"`
	Spread       []SeriesPoint       `json:"spread"`
	ZScore       []SeriesPoint       `json:"zscore"`
	RollingCorr  []SeriesPoint       `json:"rolling_corr"`
	Stationarity *StationarityResult `json:"stationarity"`
	// StaleRatio is set when the hedge ratio was carried over from an earlier
	// computation because the current window was degenerate.
	StaleRatio bool      `json:"stale_ratio,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

// Latest returns the most recent value of metric, false when the series is
// empty or the metric is not carried by a snapshot.
func (s *AnalyticsSnapshot) Latest(metric AlertMetric) (float64, bool) {
	var series []SeriesPoint
	switch metric {
	case MetricSpread:
		series = s.Spread
	case MetricZScore:
		series = s.ZScore
	case MetricCorrelation:
		series = s.RollingCorr
	default:
		return 0, false
	}
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1].Value, true
}

// PairKey formats a pair the way it is addressed externally.
func PairKey(a, b string) string { return a + "-" + b }

// ParsePair splits "A-B" into two normalized symbols.
func ParsePair(pair string) (string, string, error) {
	parts := strings.Split(pair, "-")
	if len(parts) != 2 {
		return "", "", NewValidationError("pair", fmt.Sprintf("expected SYMBOL_A-SYMBOL_B, got %q", pair))
	}
	a, b := NormalizeSymbol(parts[0]), NormalizeSymbol(parts[1])
	if a == "" || b == "" {
		return "", "", NewValidationError("pair", "empty symbol")
	}
	if a == b {
		return "", "", NewValidationError("pair", "symbols must differ")
	}
	return a, b, nil
}
