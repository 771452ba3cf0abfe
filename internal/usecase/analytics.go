package usecase

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/domain/service"
)

const maxBatchPairs = 20

// StationarityTester is the analytics engine surface the use case needs.
type StationarityTester interface {
	service.PairAnalyzer
	Stationarity(ctx context.Context, q service.PairQuery) (*models.StationarityResult, error)
}

type AnalyticsDefaults struct {
	Timeframe domrepo.Timeframe
	Window    int
	Estimator models.Estimator
	// Timeframes lists the resampled timeframes; empty accepts any valid one.
	Timeframes []domrepo.Timeframe
}

// PairAnalyticsUseCase turns loosely typed requests into engine queries.
type PairAnalyticsUseCase struct {
	engine   StationarityTester
	defaults AnalyticsDefaults
	timeout  time.Duration
}

func NewPairAnalyticsUseCase(engine StationarityTester, d AnalyticsDefaults) *PairAnalyticsUseCase {
	if d.Timeframe == "" {
		d.Timeframe = domrepo.DefaultTimeframe()
	}
	if d.Window <= 0 {
		d.Window = 60
	}
	if d.Estimator == "" {
		d.Estimator = models.EstimatorOLS
	}
	return &PairAnalyticsUseCase{engine: engine, defaults: d, timeout: 5 * time.Second}
}

type PairParams struct {
	Pair      string
	Timeframe string
	Window    int
	Estimator string
}

// Query resolves p against the defaults.
func (uc *PairAnalyticsUseCase) Query(p PairParams) (service.PairQuery, error) {
	a, b, err := models.ParsePair(p.Pair)
	if err != nil {
		return service.PairQuery{}, err
	}
	q := service.PairQuery{
		SymbolA:   a,
		SymbolB:   b,
		Timeframe: uc.defaults.Timeframe,
		Window:    uc.defaults.Window,
		Estimator: uc.defaults.Estimator,
	}
	if p.Timeframe != "" {
		if q.Timeframe, err = domrepo.ParseTimeframe(p.Timeframe); err != nil {
			return service.PairQuery{}, err
		}
		if len(uc.defaults.Timeframes) > 0 && !slices.Contains(uc.defaults.Timeframes, q.Timeframe) {
			return service.PairQuery{}, models.NewValidationError("timeframe", fmt.Sprintf("%s is not resampled", q.Timeframe))
		}
	}
	if p.Window != 0 {
		q.Window = p.Window
	}
	if p.Estimator != "" {
		if q.Estimator, err = models.ParseEstimator(p.Estimator); err != nil {
			return service.PairQuery{}, err
		}
	}
	return q, nil
}

func (uc *PairAnalyticsUseCase) Analyze(ctx context.Context, p PairParams) (*models.AnalyticsSnapshot, error) {
	q, err := uc.Query(p)
	if err != nil {
		return nil, err
	}
	return uc.engine.Analyze(ctx, q)
}

func (uc *PairAnalyticsUseCase) Stationarity(ctx context.Context, p PairParams) (*models.StationarityResult, error) {
	q, err := uc.Query(p)
	if err != nil {
		return nil, err
	}
	return uc.engine.Stationarity(ctx, q)
}

type BatchParams struct {
	Pairs     []string
	Timeframe string
	Window    int
	Estimator string
}

// BatchResult holds one snapshot per pair that could be computed; the rest
// are reported in Errors keyed by pair.
type BatchResult struct {
	Timestamp time.Time                            `json:"timestamp"`
	Results   map[string]*models.AnalyticsSnapshot `json:"results"`
	Errors    map[string]string                    `json:"errors,omitempty"`
}

// Batch analyzes several pairs concurrently under one deadline.
func (uc *PairAnalyticsUseCase) Batch(ctx context.Context, p BatchParams) (*BatchResult, error) {
	if len(p.Pairs) == 0 {
		return nil, models.NewValidationError("pairs", "required")
	}
	if len(p.Pairs) > maxBatchPairs {
		return nil, models.NewValidationError("pairs", fmt.Sprintf("at most %d pairs", maxBatchPairs))
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	res := &BatchResult{
		Timestamp: time.Now().UTC(),
		Results:   map[string]*models.AnalyticsSnapshot{},
		Errors:    map[string]string{},
	}

	type item struct {
		pair string
		snap *models.AnalyticsSnapshot
		err  error
	}
	ch := make(chan item, len(p.Pairs))
	var wg sync.WaitGroup
	for _, pair := range p.Pairs {
		wg.Add(1)
		go func(pair string) {
			defer wg.Done()
			snap, err := uc.Analyze(ctx, PairParams{
				Pair:      pair,
				Timeframe: p.Timeframe,
				Window:    p.Window,
				Estimator: p.Estimator,
			})
			ch <- item{pair, snap, err}
		}(pair)
	}
	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.pair] = it.err.Error()
			continue
		}
		res.Results[it.pair] = it.snap
	}
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}
