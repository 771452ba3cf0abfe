package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TickMessage is the broker encoding of a tick: {symbol, t (unix ms), p, q}.
type TickMessage struct {
	Symbol string  `json:"symbol"`
	T      int64   `json:"t"`
	P      float64 `json:"p"`
	Q      float64 `json:"q"`
}

func NewTickMessage(t Tick) TickMessage {
	return TickMessage{Symbol: t.Symbol, T: t.Timestamp.UnixMilli(), P: t.Price, Q: t.Quantity}
}

// Tick converts m back. Second-resolution timestamps are accepted.
func (m TickMessage) Tick() Tick {
	ts := m.T
	if ts > 0 && ts < 1e11 {
		ts *= 1000
	}
	return Tick{
		Symbol:    NormalizeSymbol(m.Symbol),
		Price:     m.P,
		Quantity:  m.Q,
		Timestamp: time.UnixMilli(ts).UTC(),
	}
}

// DecodeTickMessage parses a broker payload into a tick. The tick is not
// validated.
func DecodeTickMessage(b []byte) (Tick, error) {
	var m TickMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return Tick{}, fmt.Errorf("decode tick: %w", err)
	}
	if m.T <= 0 {
		return Tick{}, NewValidationError("t", "missing")
	}
	return m.Tick(), nil
}
