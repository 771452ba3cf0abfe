package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
	"PairPulse/internal/domain/service"
	"PairPulse/internal/service/cache"
	"PairPulse/internal/services/features"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"
)

const (
	DefaultCacheTTL        = 2 * time.Second
	DefaultMaxMedianWindow = 500
	DefaultKalmanDelta     = 1e-4
	DefaultKalmanObsVar    = 1e-3
	DefaultStateTTL        = 15 * time.Minute
	MinWindow              = 2
)

type Config struct {
	// CorrWindow is the rolling correlation sub-window; 0 uses the query window.
	CorrWindow      int
	CacheTTL        time.Duration
	MaxMedianWindow int
	KalmanDelta     float64
	KalmanObsVar    float64
	// StateTTL is how long fallback ratios and Kalman filters survive
	// without being queried.
	StateTTL time.Duration
}

// Engine computes pair analytics from resampled close series. Snapshots are
// memoized per query for CacheTTL; the last valid hedge ratio per query is
// kept so a degenerate window can fall back to it.
type Engine struct {
	cfg     Config
	source  service.CloseSeriesSource
	cache   *cache.TTLCache[service.PairQuery, *models.AnalyticsSnapshot]
	metrics repository.Metrics
	log     *applogger.Logger
	now     func() time.Time

	mu        sync.Mutex
	lastRatio map[service.PairQuery]ratioMemo
	filters   map[filterKey]*kalmanState
}

type ratioMemo struct {
	ratio float64
	used  time.Time
}

type filterKey struct {
	a, b string
	tf   repository.Timeframe
}

func NewEngine(cfg Config, source service.CloseSeriesSource, m repository.Metrics, l *applogger.Logger) *Engine {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.MaxMedianWindow <= 1 {
		cfg.MaxMedianWindow = DefaultMaxMedianWindow
	}
	if cfg.KalmanDelta <= 0 || cfg.KalmanDelta >= 1 {
		cfg.KalmanDelta = DefaultKalmanDelta
	}
	if cfg.KalmanObsVar <= 0 {
		cfg.KalmanObsVar = DefaultKalmanObsVar
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		source:    source,
		cache:     cache.NewTTLCache[service.PairQuery, *models.AnalyticsSnapshot](),
		metrics:   m,
		log:       l,
		now:       time.Now,
		lastRatio: make(map[service.PairQuery]ratioMemo),
		filters:   make(map[filterKey]*kalmanState),
	}
}

// Analyze returns the cached snapshot for q or computes a fresh one.
func (e *Engine) Analyze(ctx context.Context, q service.PairQuery) (*models.AnalyticsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	if snap, ok := e.cache.Get(q); ok {
		e.metrics.RecordCache("analytics", true)
		return snap, nil
	}
	e.metrics.RecordCache("analytics", false)

	snap, err := e.Compute(q)
	if err != nil {
		return nil, err
	}
	e.cache.Set(q, snap, e.cfg.CacheTTL)
	return snap, nil
}

// Stationarity runs the ADF test on the spread of the snapshot for q.
func (e *Engine) Stationarity(ctx context.Context, q service.PairQuery) (*models.StationarityResult, error) {
	snap, err := e.Analyze(ctx, q)
	if err != nil {
		return nil, err
	}
	if snap.Stationarity != nil {
		return snap.Stationarity, nil
	}
	spread := make([]float64, len(snap.Spread))
	for i, p := range snap.Spread {
		spread[i] = p.Value
	}
	return ADF(spread)
}

// SweepCache drops expired snapshots, plus fallback ratios and Kalman
// filters nobody queried within StateTTL. It returns the number of entries
// dropped.
func (e *Engine) SweepCache() int {
	n := e.cache.Sweep()
	cutoff := e.now().Add(-e.cfg.StateTTL)

	e.mu.Lock()
	defer e.mu.Unlock()
	for q, m := range e.lastRatio {
		if m.used.Before(cutoff) {
			delete(e.lastRatio, q)
			n++
		}
	}
	for k, st := range e.filters {
		if st.used.Before(cutoff) {
			delete(e.filters, k)
			n++
		}
	}
	return n
}

func validateQuery(q service.PairQuery) error {
	switch {
	case q.SymbolA == "" || q.SymbolB == "":
		return models.NewValidationError("pair", "empty symbol")
	case q.SymbolA == q.SymbolB:
		return models.NewValidationError("pair", "symbols must differ")
	case q.Window < MinWindow:
		return models.NewValidationError("window", fmt.Sprintf("must be at least %d", MinWindow))
	case !repository.IsValidTimeframe(q.Timeframe):
		return models.NewValidationError("timeframe", fmt.Sprintf("unsupported timeframe %q", q.Timeframe))
	}
	switch q.Estimator {
	case models.EstimatorOLS, models.EstimatorHuber, models.EstimatorTheilSen, models.EstimatorKalman:
		return nil
	}
	return models.NewValidationError("estimator", fmt.Sprintf("unknown estimator %q", q.Estimator))
}

// Compute builds a snapshot for q without consulting the cache. It works on
// copies of the close series, so ingestion is never blocked.
func (e *Engine) Compute(q service.PairQuery) (*models.AnalyticsSnapshot, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { e.metrics.RecordLatency("pair_analytics", time.Since(start).Seconds()) }()

	corrWindow := e.cfg.CorrWindow
	if corrWindow <= 0 {
		corrWindow = q.Window
	}
	// the first window point needs a full trailing sub-window for both the
	// correlation and the z-score
	need := q.Window + max(corrWindow, q.Window) - 1

	aligned := features.Align(
		e.source.Closes(q.SymbolA, q.Timeframe, 0),
		e.source.Closes(q.SymbolB, q.Timeframe, 0),
	)
	if aligned.Len() < q.Window {
		return nil, models.NewInsufficientDataError("pair analytics", q.Window, aligned.Len())
	}
	ext := aligned.Tail(need)
	win := aligned.Tail(q.Window)

	extRatios, stale, err := e.hedgeRatios(q, aligned, ext, win)
	if err != nil {
		return nil, err
	}

	extSpread := make([]float64, ext.Len())
	for i := range extSpread {
		extSpread[i] = ext.A[i] - extRatios[i]*ext.B[i]
	}
	off := ext.Len() - win.Len()
	ratios, spread := extRatios[off:], extSpread[off:]

	snap := &models.AnalyticsSnapshot{
		Pair:        q.Pair(),
		SymbolA:     q.SymbolA,
		SymbolB:     q.SymbolB,
		Timeframe:   q.Timeframe.String(),
		Window:      q.Window,
		Estimator:   q.Estimator,
		HedgeRatio:  features.Points(win.Times, ratios),
		Spread:      features.Points(win.Times, spread),
		ZScore:      features.Points(win.Times, rollingZScores(extSpread, win.Len(), q.Window)),
		RollingCorr: features.Points(win.Times, rollingCorr(ext.A, ext.B, win.Len(), corrWindow)),
		StaleRatio:  stale,
		ComputedAt:  e.now().UTC(),
	}

	adf, err := ADF(spread)
	switch {
	case err == nil:
		snap.Stationarity = adf
	case errors.Is(err, models.ErrInsufficientData), errors.Is(err, models.ErrSingular):
		e.log.Debug("stationarity skipped", applogger.String("pair", snap.Pair), applogger.Error(err))
	default:
		return nil, err
	}
	return snap, nil
}

// hedgeRatios returns the ratio in effect at each ext point. Static
// estimators fit win and apply one ratio to all of ext. A degenerate window
// reuses the last valid ratio for q and reports stale=true.
func (e *Engine) hedgeRatios(q service.PairQuery, all, ext, win features.Aligned) ([]float64, bool, error) {
	var (
		ratios []float64
		err    error
	)
	if isFlat(win.B) {
		err = &models.SingularEstimationError{Estimator: q.Estimator, Reason: "zero variance in the hedge leg"}
	} else if q.Estimator.Adaptive() {
		ratios = e.kalmanRatios(q, all, ext)
	} else {
		var f fit
		if f, err = estimateStatic(q.Estimator, win.A, win.B, e.cfg.MaxMedianWindow); err == nil {
			ratios = constant(f.Beta, ext.Len())
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if err == nil {
		e.lastRatio[q] = ratioMemo{ratio: ratios[len(ratios)-1], used: now}
		return ratios, false, nil
	}
	if !errors.Is(err, models.ErrSingular) {
		return nil, false, err
	}
	prev, ok := e.lastRatio[q]
	if !ok {
		return nil, false, &models.InsufficientDataError{What: fmt.Sprintf("hedge ratio of %s (%v)", q.Pair(), err)}
	}
	prev.used = now
	e.lastRatio[q] = prev
	e.log.Debug("hedge ratio fell back to previous value",
		applogger.String("pair", q.Pair()),
		applogger.String("estimator", string(q.Estimator)),
		applogger.Float64("ratio", prev.ratio))
	return constant(prev.ratio, ext.Len()), true, nil
}

func (e *Engine) kalmanRatios(q service.PairQuery, all, ext features.Aligned) []float64 {
	key := filterKey{q.SymbolA, q.SymbolB, q.Timeframe}

	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.filters[key]
	if !ok {
		st = newKalmanState(e.cfg.KalmanDelta, e.cfg.KalmanObsVar)
		e.filters[key] = st
	}
	st.used = e.now()
	pending := st.advance(all.Times, all.A, all.B)
	if all.Len() > 0 {
		st.prune(all.Times[0])
	}
	return st.ratios(ext.Times, pending)
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
