package models

import "time"

// Candle is an OHLCV bar for one symbol and timeframe. Bucket is the
// timeframe-aligned start of the interval.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Bucket    time.Time `json:"bucket"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Trades    int       `json:"trades"`
	Closed    bool      `json:"closed"`
}

// CandleStats reports resampler bookkeeping for one (symbol, timeframe).
type CandleStats struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Closed    int    `json:"closed"`
	Open      bool   `json:"open"`
	Late      uint64 `json:"late"`
	Evicted   uint64 `json:"evicted"`
}
