package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
	"PairPulse/internal/domain/service"
	"PairPulse/internal/services/candles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu     sync.Mutex
	series map[string][]models.SeriesPoint
}

func newFakeSource() *fakeSource {
	return &fakeSource{series: make(map[string][]models.SeriesPoint)}
}

func (f *fakeSource) set(symbol string, values []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pts := make([]models.SeriesPoint, len(values))
	for i, v := range values {
		pts[i] = models.SeriesPoint{Timestamp: t0.Add(time.Duration(i) * time.Second), Value: v}
	}
	f.series[symbol] = pts
}

func (f *fakeSource) Closes(symbol string, _ repository.Timeframe, limit int) []models.SeriesPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.series[symbol]
	if limit > 0 && len(s) > limit {
		s = s[len(s)-limit:]
	}
	return append([]models.SeriesPoint(nil), s...)
}

func query(est models.Estimator, window int) service.PairQuery {
	return service.PairQuery{SymbolA: "A", SymbolB: "B", Timeframe: repository.TF1s, Window: window, Estimator: est}
}

func linear(n int, alpha, beta float64) (a, b []float64) {
	a, b = make([]float64, n), make([]float64, n)
	for i := range a {
		b[i] = 50 + 0.3*float64(i) + 2*math.Sin(float64(i)/3)
		a[i] = alpha + beta*b[i]
	}
	return a, b
}

func TestSixTickScenario(t *testing.T) {
	r := candles.NewResampler(candles.Config{Timeframes: []repository.Timeframe{repository.TF1s}}, nil)
	feed := []models.Tick{
		{Symbol: "A", Price: 100, Quantity: 1, Timestamp: t0},
		{Symbol: "B", Price: 50, Quantity: 1, Timestamp: t0},
		{Symbol: "A", Price: 102, Quantity: 1, Timestamp: t0.Add(time.Second)},
		{Symbol: "B", Price: 50, Quantity: 1, Timestamp: t0.Add(time.Second)},
		{Symbol: "A", Price: 98, Quantity: 1, Timestamp: t0.Add(2 * time.Second)},
		{Symbol: "B", Price: 51, Quantity: 1, Timestamp: t0.Add(2 * time.Second)},
	}
	for _, tk := range feed {
		r.Update(tk)
	}

	e := NewEngine(Config{}, r, nil, nil)
	q := query(models.EstimatorOLS, 3)
	snap, err := e.Analyze(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, snap.HedgeRatio, 3)
	assert.False(t, math.IsNaN(snap.HedgeRatio[2].Value) || math.IsInf(snap.HedgeRatio[2].Value, 0))
	assert.InDelta(t, -3.0, snap.HedgeRatio[2].Value, 1e-9)
	assert.Len(t, snap.Spread, 3)
	assert.Nil(t, snap.Stationarity)

	_, err = e.Stationarity(context.Background(), q)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
}

func TestOLSRoundTrip(t *testing.T) {
	src := newFakeSource()
	a, b := linear(80, 3, 1.7)
	src.set("A", a)
	src.set("B", b)

	snap, err := NewEngine(Config{}, src, nil, nil).Compute(query(models.EstimatorOLS, 60))
	require.NoError(t, err)
	assert.InDelta(t, 1.7, snap.HedgeRatio[59].Value, 1e-9)
	for _, p := range snap.Spread {
		assert.InDelta(t, 3.0, p.Value, 1e-8)
	}
	for _, p := range snap.ZScore {
		assert.Equal(t, 0.0, p.Value)
	}
}

func TestInsufficientAlignedPoints(t *testing.T) {
	src := newFakeSource()
	a, b := linear(10, 0, 1)
	src.set("A", a)
	src.set("B", b)

	_, err := NewEngine(Config{}, src, nil, nil).Analyze(context.Background(), query(models.EstimatorOLS, 20))
	require.Error(t, err)
	var ide *models.InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 20, ide.Need)
	assert.Equal(t, 10, ide.Have)
}

func TestFlatHedgeLegFallsBack(t *testing.T) {
	for _, est := range []models.Estimator{models.EstimatorOLS, models.EstimatorHuber, models.EstimatorTheilSen, models.EstimatorKalman} {
		t.Run(string(est), func(t *testing.T) {
			src := newFakeSource()
			e := NewEngine(Config{}, src, nil, nil)
			q := query(est, 5)

			src.set("A", []float64{10, 11, 12, 13, 14})
			src.set("B", []float64{5, 5, 5, 5, 5})
			_, err := e.Compute(q)
			require.True(t, errors.Is(err, models.ErrInsufficientData), "got %v", err)

			src.set("A", []float64{10, 12, 14, 16, 18})
			src.set("B", []float64{5, 6, 7, 8, 9})
			first, err := e.Compute(q)
			require.NoError(t, err)
			want := first.HedgeRatio[len(first.HedgeRatio)-1].Value

			src.set("A", []float64{10, 12, 14, 16, 18, 19, 20, 21, 22, 23})
			src.set("B", []float64{5, 6, 7, 8, 9, 9, 9, 9, 9, 9})
			snap, err := e.Compute(q)
			require.NoError(t, err)
			assert.True(t, snap.StaleRatio)
			for _, p := range snap.HedgeRatio {
				assert.Equal(t, want, p.Value)
			}
		})
	}
}

func TestRobustEstimatorsResistOutlier(t *testing.T) {
	a, b := linear(40, 1, 2)
	a[38] += 400

	olsFit, err := estimateStatic(models.EstimatorOLS, a, b, 500)
	require.NoError(t, err)
	huberFit, err := estimateStatic(models.EstimatorHuber, a, b, 500)
	require.NoError(t, err)
	tsFit, err := estimateStatic(models.EstimatorTheilSen, a, b, 500)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, tsFit.Beta, 1e-9)
	assert.InDelta(t, 1.0, tsFit.Alpha, 1e-9)
	assert.Less(t, math.Abs(huberFit.Beta-2), math.Abs(olsFit.Beta-2))
	assert.InDelta(t, 2.0, huberFit.Beta, 0.05)
}

func TestKalmanTracksRatio(t *testing.T) {
	src := newFakeSource()
	a, b := linear(30, 0, 2)
	src.set("A", a[:20])
	src.set("B", b[:20])

	e := NewEngine(Config{}, src, nil, nil)
	q := query(models.EstimatorKalman, 10)
	snap, err := e.Compute(q)
	require.NoError(t, err)
	require.Len(t, snap.HedgeRatio, 10)
	for _, p := range snap.HedgeRatio {
		assert.InDelta(t, 2.0, p.Value, 1e-9)
	}

	src.set("A", a)
	src.set("B", b)
	snap, err = e.Compute(q)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(29*time.Second), snap.HedgeRatio[9].Timestamp)
	assert.InDelta(t, 2.0, snap.HedgeRatio[9].Value, 1e-9)
	assert.InDelta(t, 0.0, snap.Spread[9].Value, 1e-6)
}

func TestKalmanAdaptsToRegimeChange(t *testing.T) {
	src := newFakeSource()
	a, b := linear(200, 0, 1)
	for i := 100; i < 200; i++ {
		a[i] = 1.5 * b[i]
	}
	src.set("A", a)
	src.set("B", b)

	snap, err := NewEngine(Config{}, src, nil, nil).Compute(query(models.EstimatorKalman, 150))
	require.NoError(t, err)
	first, last := snap.HedgeRatio[0].Value, snap.HedgeRatio[149].Value
	assert.InDelta(t, 1.0, first, 1e-6)
	assert.Greater(t, last, 1.3)
}

func TestCorrelationNullWhenFlat(t *testing.T) {
	src := newFakeSource()
	src.set("A", []float64{7, 7, 7, 7, 7, 7})
	src.set("B", []float64{1, 2, 3, 4, 5, 6})

	snap, err := NewEngine(Config{}, src, nil, nil).Compute(query(models.EstimatorOLS, 4))
	require.NoError(t, err)
	for _, p := range snap.RollingCorr {
		assert.True(t, math.IsNaN(p.Value))
	}

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"value":null`))
}

func TestRollingCorrUsesTrailingWindow(t *testing.T) {
	src := newFakeSource()
	a, b := linear(12, 0, 1)
	for i := range a {
		a[i] = b[i] * b[i]
	}
	src.set("A", a)
	src.set("B", b)

	snap, err := NewEngine(Config{CorrWindow: 3}, src, nil, nil).Compute(query(models.EstimatorOLS, 6))
	require.NoError(t, err)
	require.Len(t, snap.RollingCorr, 6)
	for _, p := range snap.RollingCorr {
		assert.False(t, math.IsNaN(p.Value))
		assert.LessOrEqual(t, math.Abs(p.Value), 1.0+1e-12)
	}
}

func TestAnalyzeCachesByQuery(t *testing.T) {
	src := newFakeSource()
	a, b := linear(30, 1, 2)
	src.set("A", a)
	src.set("B", b)

	e := NewEngine(Config{CacheTTL: time.Hour}, src, nil, nil)
	ctx := context.Background()
	first, err := e.Analyze(ctx, query(models.EstimatorOLS, 20))
	require.NoError(t, err)

	a2, b2 := linear(30, 5, 3)
	src.set("A", a2)
	src.set("B", b2)

	again, err := e.Analyze(ctx, query(models.EstimatorOLS, 20))
	require.NoError(t, err)
	assert.Same(t, first, again)

	other, err := e.Analyze(ctx, query(models.EstimatorOLS, 21))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, other.HedgeRatio[0].Value, 1e-9)
}

func TestAnalyzeRejectsBadQueries(t *testing.T) {
	e := NewEngine(Config{}, newFakeSource(), nil, nil)
	ctx := context.Background()
	bad := []service.PairQuery{
		{SymbolA: "A", SymbolB: "A", Timeframe: repository.TF1s, Window: 5, Estimator: models.EstimatorOLS},
		{SymbolA: "A", SymbolB: "B", Timeframe: repository.TF1s, Window: 1, Estimator: models.EstimatorOLS},
		{SymbolA: "A", SymbolB: "B", Timeframe: "2m", Window: 5, Estimator: models.EstimatorOLS},
		{SymbolA: "A", SymbolB: "B", Timeframe: repository.TF1s, Window: 5, Estimator: "lasso"},
	}
	for _, q := range bad {
		_, err := e.Analyze(ctx, q)
		assert.True(t, errors.Is(err, models.ErrValidation), "query %+v", q)
	}
}

func TestZScoreUsesTrailingSpread(t *testing.T) {
	src := newFakeSource()
	_, b := linear(8, 0, 1)
	a := make([]float64, len(b))
	for i := range a {
		a[i] = b[i] * b[i]
	}
	src.set("A", a)
	src.set("B", b)

	snap, err := NewEngine(Config{}, src, nil, nil).Compute(query(models.EstimatorOLS, 3))
	require.NoError(t, err)
	require.Len(t, snap.ZScore, 3)
	beta := snap.HedgeRatio[0].Value

	for i, p := range snap.ZScore {
		end := len(a) - 3 + i + 1
		s := make([]float64, 0, 3)
		for j := end - 3; j < end; j++ {
			s = append(s, a[j]-beta*b[j])
		}
		mean, std := stat.PopMeanStdDev(s, nil)
		assert.InDelta(t, (s[2]-mean)/std, p.Value, 1e-9, "point %d", i)
	}
}

func TestKalmanLiveCloseMatchesFreshEngine(t *testing.T) {
	a, b := linear(30, 0, 2)
	for i := range a {
		a[i] += math.Sin(float64(i))
	}
	src := newFakeSource()
	src.set("A", a)
	src.set("B", b)

	q := query(models.EstimatorKalman, 10)
	longLived := NewEngine(Config{}, src, nil, nil)
	_, err := longLived.Compute(q)
	require.NoError(t, err)

	// the newest close keeps moving while its candle is open
	for _, bump := range []float64{5, 20} {
		moved := append([]float64(nil), a...)
		moved[len(moved)-1] += bump
		src.set("A", moved)
		_, err = longLived.Compute(q)
		require.NoError(t, err)
	}

	got, err := longLived.Compute(q)
	require.NoError(t, err)
	want, err := NewEngine(Config{}, src, nil, nil).Compute(q)
	require.NoError(t, err)
	for i := range want.HedgeRatio {
		assert.InDelta(t, want.HedgeRatio[i].Value, got.HedgeRatio[i].Value, 1e-12, "point %d", i)
		assert.InDelta(t, want.Spread[i].Value, got.Spread[i].Value, 1e-12, "point %d", i)
	}
}

func TestSweepCacheDropsIdleState(t *testing.T) {
	src := newFakeSource()
	a, b := linear(30, 1, 2)
	src.set("A", a)
	src.set("B", b)

	clock := t0
	e := NewEngine(Config{StateTTL: time.Minute}, src, nil, nil)
	e.now = func() time.Time { return clock }

	_, err := e.Compute(query(models.EstimatorOLS, 10))
	require.NoError(t, err)
	_, err = e.Compute(query(models.EstimatorKalman, 10))
	require.NoError(t, err)

	clock = t0.Add(50 * time.Second)
	_, err = e.Compute(query(models.EstimatorKalman, 10))
	require.NoError(t, err)

	clock = t0.Add(70 * time.Second)
	assert.Equal(t, 1, e.SweepCache())
	assert.Len(t, e.filters, 1)
	assert.Len(t, e.lastRatio, 1)

	clock = t0.Add(5 * time.Minute)
	assert.Equal(t, 2, e.SweepCache())
	assert.Empty(t, e.filters)
	assert.Empty(t, e.lastRatio)
}
