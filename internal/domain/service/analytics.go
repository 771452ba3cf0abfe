package service

import (
	"context"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
)

// PairQuery identifies one analytics computation. It doubles as the cache key.
type PairQuery struct {
	SymbolA   string
	SymbolB   string
	Timeframe repository.Timeframe
	Window    int
	Estimator models.Estimator
}

func (q PairQuery) Pair() string { return models.PairKey(q.SymbolA, q.SymbolB) }

// PairAnalyzer produces analytics snapshots for a pair.
type PairAnalyzer interface {
	Analyze(ctx context.Context, q PairQuery) (*models.AnalyticsSnapshot, error)
}

// PriceSource exposes the latest traded price per symbol.
type PriceSource interface {
	LatestPrice(symbol string) (float64, time.Time, bool)
}

// CloseSeriesSource yields closes for one symbol and timeframe, oldest first.
type CloseSeriesSource interface {
	Closes(symbol string, tf repository.Timeframe, limit int) []models.SeriesPoint
}
