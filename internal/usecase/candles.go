package usecase

import (
	"fmt"
	"time"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/services/candles"
	"PairPulse/internal/services/features"
	"PairPulse/internal/services/ticks"
)

const (
	defaultReadLimit = 500
	maxReadLimit     = 10000
)

// MarketDataUseCase serves tick and candle reads from the in-memory stores.
type MarketDataUseCase struct {
	buffer    *ticks.Buffer
	resampler *candles.Resampler
}

func NewMarketDataUseCase(buf *ticks.Buffer, rs *candles.Resampler) *MarketDataUseCase {
	return &MarketDataUseCase{buffer: buf, resampler: rs}
}

type GetCandlesParams struct {
	Symbol     string
	Timeframe  string
	From       time.Time
	To         time.Time
	Limit      int
	ClosedOnly bool
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

func (uc *MarketDataUseCase) GetCandles(p GetCandlesParams) (*GetCandlesResult, error) {
	symbol := models.NormalizeSymbol(p.Symbol)
	if symbol == "" {
		return nil, models.NewValidationError("symbol", "required")
	}
	tf := domrepo.DefaultTimeframe()
	if p.Timeframe != "" {
		var err error
		if tf, err = domrepo.ParseTimeframe(p.Timeframe); err != nil {
			return nil, err
		}
	}
	if !uc.resampler.Supports(tf) {
		return nil, models.NewValidationError("timeframe", fmt.Sprintf("%s is not resampled", tf))
	}
	limit, err := clampLimit(p.Limit, p.From, p.To)
	if err != nil {
		return nil, err
	}

	// a candle is returned when its bucket overlaps [From, To]
	from, to := features.AlignFromTo(p.From, p.To, tf)
	cs := uc.resampler.Candles(symbol, tf, candles.Query{From: from, To: to, Limit: limit, ClosedOnly: p.ClosedOnly})
	if cs == nil {
		cs = []models.Candle{}
	}
	return &GetCandlesResult{Symbol: symbol, Timeframe: tf.String(), Count: len(cs), Candles: cs}, nil
}

type GetTicksParams struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
}

type GetTicksResult struct {
	Symbol string        `json:"symbol"`
	Count  int           `json:"count"`
	Ticks  []models.Tick `json:"ticks"`
}

func (uc *MarketDataUseCase) GetTicks(p GetTicksParams) (*GetTicksResult, error) {
	symbol := models.NormalizeSymbol(p.Symbol)
	if symbol == "" {
		return nil, models.NewValidationError("symbol", "required")
	}
	limit, err := clampLimit(p.Limit, p.From, p.To)
	if err != nil {
		return nil, err
	}
	ts := uc.buffer.Ticks(symbol, ticks.ReadQuery{From: p.From, To: p.To, Limit: limit})
	if ts == nil {
		ts = []models.Tick{}
	}
	return &GetTicksResult{Symbol: symbol, Count: len(ts), Ticks: ts}, nil
}

// SymbolStats combines buffer and resampler bookkeeping for one symbol.
type SymbolStats struct {
	Ticks   models.TickStats     `json:"ticks"`
	Candles []models.CandleStats `json:"candles"`
}

func (uc *MarketDataUseCase) Stats(symbol string) (*SymbolStats, error) {
	symbol = models.NormalizeSymbol(symbol)
	st, ok := uc.buffer.Stats(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSymbolNotFound, symbol)
	}
	out := &SymbolStats{Ticks: st, Candles: []models.CandleStats{}}
	for _, tf := range uc.resampler.Timeframes() {
		if cs, ok := uc.resampler.Stats(symbol, tf); ok {
			out.Candles = append(out.Candles, cs)
		}
	}
	return out, nil
}

// AllStats reports every buffered symbol.
func (uc *MarketDataUseCase) AllStats() []SymbolStats {
	syms := uc.buffer.Symbols()
	out := make([]SymbolStats, 0, len(syms))
	for _, s := range syms {
		if st, err := uc.Stats(s); err == nil {
			out = append(out, *st)
		}
	}
	return out
}

func (uc *MarketDataUseCase) Symbols() []string { return uc.buffer.Symbols() }

// Clear drops buffered ticks for symbol, or for every symbol when empty.
// Candles are left in place.
func (uc *MarketDataUseCase) Clear(symbol string) {
	uc.buffer.Clear(models.NormalizeSymbol(symbol))
}

func (uc *MarketDataUseCase) Timeframes() []string {
	tfs := uc.resampler.Timeframes()
	out := make([]string, len(tfs))
	for i, tf := range tfs {
		out[i] = tf.String()
	}
	return out
}

func clampLimit(limit int, from, to time.Time) (int, error) {
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return 0, models.NewValidationError("from", "must not be after to")
	}
	if limit < 0 {
		return 0, models.NewValidationError("limit", "must not be negative")
	}
	if limit == 0 {
		limit = defaultReadLimit
	}
	return min(limit, maxReadLimit), nil
}
