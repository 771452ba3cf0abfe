package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/pkg/metrics"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tickAt(symbol string, offset time.Duration, price float64) models.Tick {
	return models.Tick{Symbol: symbol, Price: price, Quantity: 1, Timestamp: t0.Add(offset)}
}

type countingMetrics struct {
	metrics.Nop
	mu       sync.Mutex
	errors   map[string]int
	rejected map[string]int
	archived map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: map[string]int{}, rejected: map[string]int{}, archived: map[string]int{}}
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) RecordRejected(_, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[reason]++
}

func (m *countingMetrics) RecordArchived(backend string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archived[backend] += n
}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func (m *countingMetrics) archivedCount(backend string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.archived[backend]
}

// recordingIngester accepts every tick with a valid symbol.
type recordingIngester struct {
	mu    sync.Mutex
	ticks []models.Tick
}

func (r *recordingIngester) Ingest(t models.Tick) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Symbol == "" {
		return false
	}
	r.ticks = append(r.ticks, t)
	return true
}

func (r *recordingIngester) Replay(t models.Tick) bool { return r.Ingest(t) }

func (r *recordingIngester) all() []models.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Tick(nil), r.ticks...)
}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]*models.Tick
	err     error
	closed  bool
}

func (p *fakePublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.PublishBatch(ctx, []*models.Tick{t})
}

func (p *fakePublisher) PublishBatch(_ context.Context, ticks []*models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]*models.Tick(nil), ticks...))
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

type fakeStorage struct {
	mu      sync.Mutex
	stored  []*models.Tick
	query   map[string][]*models.Tick
	failFor map[string]bool
}

func (s *fakeStorage) Init(context.Context) error { return nil }

func (s *fakeStorage) Store(ctx context.Context, t *models.Tick) error {
	return s.StoreBatch(ctx, []*models.Tick{t})
}

func (s *fakeStorage) StoreBatch(_ context.Context, ticks []*models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, ticks...)
	return nil
}

func (s *fakeStorage) Query(_ context.Context, symbol string, _, _ time.Time, limit int) ([]*models.Tick, error) {
	if s.failFor[symbol] {
		return nil, errors.New("query failed")
	}
	out := s.query[symbol]
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStorage) Health(context.Context) error { return nil }
func (s *fakeStorage) Close() error                 { return nil }

func (s *fakeStorage) storedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

type queuedMessage struct {
	msgType string
	payload interface{}
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []queuedMessage
	err  error
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, queuedMessage{msgType, payload})
	return nil
}

func (q *fakeQueue) messages() []queuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queuedMessage(nil), q.msgs...)
}
