package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
	"PairPulse/internal/services/alerts"
	"PairPulse/internal/services/analytics"
	"PairPulse/internal/services/bus"
	"PairPulse/internal/services/candles"
	"PairPulse/internal/services/ticks"
	"PairPulse/internal/usecase"
	"PairPulse/pkg/config"
	xhttp "PairPulse/pkg/http"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu     sync.Mutex
	stored []models.Tick
}

func (s *memStorage) Init(context.Context) error { return nil }
func (s *memStorage) Store(ctx context.Context, t *models.Tick) error {
	return s.StoreBatch(ctx, []*models.Tick{t})
}
func (s *memStorage) StoreBatch(_ context.Context, ts []*models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range ts {
		s.stored = append(s.stored, *t)
	}
	return nil
}
func (s *memStorage) Query(context.Context, string, time.Time, time.Time, int) ([]*models.Tick, error) {
	return nil, nil
}
func (s *memStorage) Health(context.Context) error { return nil }
func (s *memStorage) Close() error                 { return nil }

func (s *memStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func TestAppRunsAlertsAndDrainsArchiveOnShutdown(t *testing.T) {
	cfg, err := config.Parse([]byte("environment: test\ningest:\n  source: none\n"))
	require.NoError(t, err)
	cfg.Alerts.Interval = 10 * time.Millisecond
	cfg.Server.ShutdownTimeout = 2 * time.Second

	l := applogger.NewNop()
	buf := ticks.NewBuffer(ticks.Config{Capacity: 100}, nil)
	rs := candles.NewResampler(candles.Config{Timeframes: []repository.Timeframe{repository.TF1s}}, nil)
	b := bus.New(16, nil)
	eng := analytics.NewEngine(analytics.Config{}, rs, nil, l)
	ae := alerts.NewEngine(alerts.Config{Interval: cfg.Alerts.Interval, DefaultTimeframe: repository.TF1s}, eng, buf, nil, l)
	ae.OnAlert(func(ev models.AlertEvent) { b.Publish(bus.TopicAlert, ev) })

	store := &memStorage{}
	archiver, err := usecase.NewTickArchiver(usecase.ArchiverConfig{
		Backend:      usecase.BackendClickHouse,
		BatchSize:    1000,
		BatchTimeout: time.Hour,
	}, nil, store, metrics.Nop{}, l)
	require.NoError(t, err)
	ing := usecase.NewIngestor(buf, rs, b, archiver, metrics.Nop{}, l)

	app := New(Deps{
		Config:     cfg,
		Logger:     l,
		HTTPServer: xhttp.NewServer(xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0)),
		Alerts:     ae,
		Analytics:  eng,
		Archiver:   archiver,
	})

	alertsSub := b.Subscribe(bus.TopicAlert)
	defer b.Unsubscribe(alertsSub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	_, err = ae.CreateRule(alerts.RuleSpec{Metric: "price", Pair: "BTCUSDT", Operator: ">", Threshold: 100})
	require.NoError(t, err)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		assert.True(t, ing.Ingest(models.Tick{Symbol: "btcusdt", Price: 101 + float64(i), Quantity: 1, Timestamp: now.Add(time.Duration(i) * time.Millisecond)}))
	}

	select {
	case msg := <-alertsSub.C():
		assert.Equal(t, "BTCUSDT", msg.Payload.(models.AlertEvent).Pair)
	case <-time.After(2 * time.Second):
		t.Fatal("no alert published")
	}
	assert.Zero(t, store.count(), "batch should wait for shutdown")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, 5, store.count())
}
