package models

import (
	"math"
	"strings"
	"time"
)

// Tick is a single executed trade. Ticks are immutable once accepted.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizeSymbol upper-cases and trims an instrument id.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Validate checks the per-tick invariants. Ordering against the rest of the
// stream is checked by the buffer.
func (t Tick) Validate() error {
	switch {
	case t.Symbol == "":
		return NewValidationError("symbol", "empty")
	case math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0:
		return NewValidationError("price", "must be a positive number")
	case math.IsNaN(t.Quantity) || math.IsInf(t.Quantity, 0) || t.Quantity < 0:
		return NewValidationError("quantity", "must be non-negative")
	case t.Timestamp.IsZero():
		return NewValidationError("timestamp", "missing")
	}
	return nil
}

// TickStats describes one symbol's buffer.
type TickStats struct {
	Symbol      string     `json:"symbol"`
	Count       int        `json:"count"`
	Capacity    int        `json:"capacity"`
	Oldest      *time.Time `json:"oldest,omitempty"`
	Newest      *time.Time `json:"newest,omitempty"`
	LatestPrice float64    `json:"latest_price"`
	Accepted    uint64     `json:"accepted"`
	Rejected    uint64     `json:"rejected"`
	Evicted     uint64     `json:"evicted"`
}
