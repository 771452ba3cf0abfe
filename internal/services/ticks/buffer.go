package ticks

import (
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
	"PairPulse/pkg/metrics"
)

const DefaultCapacity = 10000

type Config struct {
	Capacity      int
	SkewTolerance time.Duration
}

// ReadQuery bounds a read. Zero From/To are open ends; Limit <= 0 means all.
type ReadQuery struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Buffer keeps the most recent ticks of every symbol in a bounded ring.
// Each symbol has its own lock, so symbols never contend with each other.
type Buffer struct {
	cfg     Config
	metrics repository.Metrics

	mu      sync.RWMutex
	symbols map[string]*series

	rejectedUnknown atomic.Uint64
}

type series struct {
	mu       sync.RWMutex
	ring     *ring
	latest   models.Tick
	accepted uint64
	rejected uint64
	evicted  uint64
}

func NewBuffer(cfg Config, m repository.Metrics) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Buffer{
		cfg:     cfg,
		metrics: m,
		symbols: make(map[string]*series),
	}
}

func (b *Buffer) Capacity() int { return b.cfg.Capacity }

func (b *Buffer) get(symbol string) *series {
	b.mu.RLock()
	s := b.symbols[symbol]
	b.mu.RUnlock()
	return s
}

func (b *Buffer) getOrCreate(symbol string) *series {
	if s := b.get(symbol); s != nil {
		return s
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.symbols[symbol]; ok {
		return s
	}
	s := &series{ring: newRing(b.cfg.Capacity)}
	b.symbols[symbol] = s
	return s
}

// Append validates t and stores it. A tick older than the newest stored tick
// by more than the skew tolerance is rejected; one within the tolerance is
// stored in timestamp order. The oldest tick is evicted when the ring is full,
// and a tick older than that oldest one is rejected instead.
func (b *Buffer) Append(t models.Tick) error {
	if err := t.Validate(); err != nil {
		b.reject(t.Symbol, err)
		return err
	}
	t.Timestamp = t.Timestamp.UTC()

	s := b.getOrCreate(t.Symbol)
	s.mu.Lock()
	if newest, ok := s.ring.newest(); ok && t.Timestamp.Before(newest.Timestamp.Add(-b.cfg.SkewTolerance)) {
		return b.rejectLate(s, t, "older than newest tick beyond skew tolerance")
	}
	evicted, stored := s.ring.push(t)
	if !stored {
		return b.rejectLate(s, t, "older than oldest tick of a full buffer")
	}
	s.accepted++
	if evicted {
		s.evicted++
	}
	if !t.Timestamp.Before(s.latest.Timestamp) {
		s.latest = t
	}
	s.mu.Unlock()

	b.metrics.RecordTick(t.Symbol)
	b.metrics.RecordLastPrice(t.Symbol, t.Price)
	if evicted {
		b.metrics.RecordEviction(t.Symbol)
	}
	return nil
}

// rejectLate counts t as rejected and releases s.mu, which the caller holds.
func (b *Buffer) rejectLate(s *series, t models.Tick, reason string) error {
	s.rejected++
	s.mu.Unlock()
	err := models.NewValidationError("timestamp", reason)
	b.metrics.RecordRejected(t.Symbol, err.Field)
	return err
}

func (b *Buffer) reject(symbol string, err error) {
	reason := "invalid"
	if ve, ok := err.(*models.ValidationError); ok {
		reason = ve.Field
	}
	if symbol == "" {
		b.rejectedUnknown.Add(1)
	} else if s := b.get(symbol); s != nil {
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()
	}
	b.metrics.RecordRejected(symbol, reason)
}

// Read returns the ticks of symbol matching q in ascending time order. Each
// iteration takes a fresh snapshot, so the sequence can be ranged over more
// than once and never observes a partial append.
func (b *Buffer) Read(symbol string, q ReadQuery) iter.Seq[models.Tick] {
	return func(yield func(models.Tick) bool) {
		for _, t := range b.snapshot(symbol, q) {
			if !yield(t) {
				return
			}
		}
	}
}

// Ticks is Read collected into a slice.
func (b *Buffer) Ticks(symbol string, q ReadQuery) []models.Tick {
	return b.snapshot(symbol, q)
}

func (b *Buffer) snapshot(symbol string, q ReadQuery) []models.Tick {
	s := b.get(symbol)
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ring.window(q.From, q.To, q.Limit)
}

// Stats reports buffer bookkeeping for symbol; false when the symbol was
// never seen.
func (b *Buffer) Stats(symbol string) (models.TickStats, bool) {
	s := b.get(symbol)
	if s == nil {
		return models.TickStats{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := models.TickStats{
		Symbol:      symbol,
		Count:       s.ring.len(),
		Capacity:    b.cfg.Capacity,
		LatestPrice: s.latest.Price,
		Accepted:    s.accepted,
		Rejected:    s.rejected,
		Evicted:     s.evicted,
	}
	if t, ok := s.ring.oldest(); ok {
		ts := t.Timestamp
		st.Oldest = &ts
	}
	if t, ok := s.ring.newest(); ok {
		ts := t.Timestamp
		st.Newest = &ts
	}
	return st, true
}

// RejectedWithoutSymbol counts ticks dropped before a symbol could be
// attributed.
func (b *Buffer) RejectedWithoutSymbol() uint64 { return b.rejectedUnknown.Load() }

// LatestPrice returns the most recent accepted price of symbol.
func (b *Buffer) LatestPrice(symbol string) (float64, time.Time, bool) {
	s := b.get(symbol)
	if s == nil {
		return 0, time.Time{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest.Timestamp.IsZero() {
		return 0, time.Time{}, false
	}
	return s.latest.Price, s.latest.Timestamp, true
}

// Symbols lists symbols with at least one buffered tick, sorted.
func (b *Buffer) Symbols() []string {
	b.mu.RLock()
	all := make(map[string]*series, len(b.symbols))
	for k, v := range b.symbols {
		all[k] = v
	}
	b.mu.RUnlock()

	out := make([]string, 0, len(all))
	for sym, s := range all {
		s.mu.RLock()
		n := s.ring.len()
		s.mu.RUnlock()
		if n > 0 {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Clear drops the buffered ticks of symbol, or of every symbol when symbol
// is empty. Counters are kept.
func (b *Buffer) Clear(symbol string) {
	b.mu.RLock()
	targets := make([]*series, 0, len(b.symbols))
	for sym, s := range b.symbols {
		if symbol == "" || sym == symbol {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.mu.Lock()
		s.ring.reset()
		s.mu.Unlock()
	}
}
