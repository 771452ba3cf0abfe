package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type AlertMetric string

const (
	MetricSpread      AlertMetric = "spread"
	MetricZScore      AlertMetric = "zscore"
	MetricCorrelation AlertMetric = "correlation"
	// MetricPrice watches the latest tick price of a single symbol.
	MetricPrice AlertMetric = "price"
)

func ParseAlertMetric(s string) (AlertMetric, error) {
	switch m := AlertMetric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricSpread, MetricZScore, MetricCorrelation, MetricPrice:
		return m, nil
	case "z_score", "z-score":
		return MetricZScore, nil
	case "corr":
		return MetricCorrelation, nil
	}
	return "", NewValidationError("metric", fmt.Sprintf("unknown metric %q", s))
}

type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
)

const equalTolerance = 1e-6

func ParseOperator(s string) (Operator, error) {
	switch strings.TrimSpace(s) {
	case ">", "gt":
		return OpGreater, nil
	case "<", "lt":
		return OpLess, nil
	case ">=", "≥", "gte":
		return OpGreaterEqual, nil
	case "<=", "≤", "lte":
		return OpLessEqual, nil
	case "==", "=", "eq":
		return OpEqual, nil
	}
	return "", NewValidationError("operator", fmt.Sprintf("unknown operator %q", s))
}

// Compare applies the operator. NaN never satisfies a comparison.
func (op Operator) Compare(value, threshold float64) bool {
	if math.IsNaN(value) {
		return false
	}
	switch op {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return math.Abs(value-threshold) < equalTolerance
	}
	return false
}

// AlertRule is a user threshold on a pair metric. Timeframe, Window and
// Estimator select the analytics snapshot the rule reads.
type AlertRule struct {
	ID            string      `json:"id"`
	Metric        AlertMetric `json:"metric"`
	Pair          string      `json:"pair"`
	Operator      Operator    `json:"operator"`
	Threshold     float64     `json:"threshold"`
	Active        bool        `json:"active"`
	Timeframe     string      `json:"timeframe"`
	Window        int         `json:"window"`
	Estimator     Estimator   `json:"estimator"`
	CreatedAt     time.Time   `json:"created_at"`
	LastTriggered *time.Time  `json:"last_triggered,omitempty"`
	TriggerCount  int         `json:"trigger_count"`
}

// AlertEvent records one rule firing.
type AlertEvent struct {
	ID        string      `json:"id"`
	RuleID    string      `json:"rule_id"`
	Metric    AlertMetric `json:"metric"`
	Pair      string      `json:"pair"`
	Operator  Operator    `json:"operator"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
	Timestamp time.Time   `json:"timestamp"`
}

func (e AlertEvent) Message() string {
	return fmt.Sprintf("%s %s %.6g %s %.6g", e.Pair, e.Metric, e.Value, e.Operator, e.Threshold)
}
