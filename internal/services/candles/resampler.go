package candles

import (
	"iter"
	"sort"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
	"PairPulse/pkg/metrics"
)

const DefaultHistorySize = 2000

type Config struct {
	Timeframes  []repository.Timeframe
	HistorySize int
}

// Query bounds a series read by bucket start. Zero From/To are open ends,
// Limit <= 0 means all. ClosedOnly leaves out the live candle.
type Query struct {
	From       time.Time
	To         time.Time
	Limit      int
	ClosedOnly bool
}

// Resampler folds ticks into OHLCV candles for every configured timeframe.
// Each (symbol, timeframe) keeps one open candle and a bounded history of
// closed ones. Timeframes never influence each other.
type Resampler struct {
	cfg     Config
	metrics repository.Metrics

	mu    sync.RWMutex
	books map[bookKey]*book
}

type bookKey struct {
	symbol string
	tf     repository.Timeframe
}

type book struct {
	mu      sync.RWMutex
	open    models.Candle
	hasOpen bool
	history []models.Candle
	late    uint64
	evicted uint64
}

func NewResampler(cfg Config, m repository.Metrics) *Resampler {
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []repository.Timeframe{repository.TF1s, repository.TF1m, repository.TF5m}
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Resampler{
		cfg:     cfg,
		metrics: m,
		books:   make(map[bookKey]*book),
	}
}

func (r *Resampler) Timeframes() []repository.Timeframe {
	return append([]repository.Timeframe(nil), r.cfg.Timeframes...)
}

// Supports reports whether tf is resampled.
func (r *Resampler) Supports(tf repository.Timeframe) bool {
	for _, x := range r.cfg.Timeframes {
		if x == tf {
			return true
		}
	}
	return false
}

func (r *Resampler) book(symbol string, tf repository.Timeframe, create bool) *book {
	k := bookKey{symbol, tf}
	r.mu.RLock()
	b := r.books[k]
	r.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b = r.books[k]; b == nil {
		b = &book{history: make([]models.Candle, 0, min(r.cfg.HistorySize, 256))}
		r.books[k] = b
	}
	return b
}

// Update folds an accepted tick into every timeframe and returns the candles
// that changed: a closed candle (Closed=true) when the tick opened a new
// bucket, followed by the live candle. A tick for a bucket before the live
// one is late; it is counted and leaves that timeframe untouched.
func (r *Resampler) Update(t models.Tick) []models.Candle {
	changed := make([]models.Candle, 0, len(r.cfg.Timeframes)+1)
	for _, tf := range r.cfg.Timeframes {
		changed = r.updateOne(t, tf, changed)
	}
	return changed
}

func (r *Resampler) updateOne(t models.Tick, tf repository.Timeframe, changed []models.Candle) []models.Candle {
	bucket := tf.Bucket(t.Timestamp)
	b := r.book(t.Symbol, tf, true)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case !b.hasOpen:
		b.open = seed(t, tf, bucket)
		b.hasOpen = true
	case bucket.Equal(b.open.Bucket):
		fold(&b.open, t)
	case bucket.After(b.open.Bucket):
		closed := b.open
		closed.Closed = true
		r.archive(b, closed)
		changed = append(changed, closed)
		r.metrics.RecordCandleClosed(t.Symbol, tf.String())
		b.open = seed(t, tf, bucket)
	default:
		b.late++
		r.metrics.RecordLateTick(t.Symbol, tf.String())
		return changed
	}
	return append(changed, b.open)
}

func (r *Resampler) archive(b *book, c models.Candle) {
	if len(b.history) >= r.cfg.HistorySize {
		n := copy(b.history, b.history[1:])
		b.history = b.history[:n]
		b.evicted++
	}
	b.history = append(b.history, c)
}

func seed(t models.Tick, tf repository.Timeframe, bucket time.Time) models.Candle {
	return models.Candle{
		Symbol:    t.Symbol,
		Timeframe: tf.String(),
		Bucket:    bucket,
		Open:      t.Price,
		High:      t.Price,
		Low:       t.Price,
		Close:     t.Price,
		Volume:    t.Quantity,
		Trades:    1,
	}
}

func fold(c *models.Candle, t models.Tick) {
	c.Close = t.Price
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Volume += t.Quantity
	c.Trades++
}

// Series returns the candles of (symbol, tf) matching q, oldest first. Each
// iteration snapshots the book, so the sequence is restartable.
func (r *Resampler) Series(symbol string, tf repository.Timeframe, q Query) iter.Seq[models.Candle] {
	return func(yield func(models.Candle) bool) {
		for _, c := range r.snapshot(symbol, tf, q) {
			if !yield(c) {
				return
			}
		}
	}
}

// Candles is Series collected into a slice.
func (r *Resampler) Candles(symbol string, tf repository.Timeframe, q Query) []models.Candle {
	return r.snapshot(symbol, tf, q)
}

func (r *Resampler) snapshot(symbol string, tf repository.Timeframe, q Query) []models.Candle {
	b := r.book(symbol, tf, false)
	if b == nil {
		return nil
	}

	b.mu.RLock()
	all := make([]models.Candle, 0, len(b.history)+1)
	all = append(all, b.history...)
	if b.hasOpen && !q.ClosedOnly {
		all = append(all, b.open)
	}
	b.mu.RUnlock()

	lo := 0
	if !q.From.IsZero() {
		lo = sort.Search(len(all), func(i int) bool { return !all[i].Bucket.Before(q.From) })
	}
	hi := len(all)
	if !q.To.IsZero() {
		hi = sort.Search(len(all), func(i int) bool { return all[i].Bucket.After(q.To) })
	}
	if hi <= lo {
		return nil
	}
	if q.Limit > 0 && hi-lo > q.Limit {
		lo = hi - q.Limit
	}
	return all[lo:hi]
}

// Closes returns up to limit close prices of (symbol, tf) including the live
// candle, oldest first.
func (r *Resampler) Closes(symbol string, tf repository.Timeframe, limit int) []models.SeriesPoint {
	candles := r.snapshot(symbol, tf, Query{Limit: limit})
	out := make([]models.SeriesPoint, len(candles))
	for i, c := range candles {
		out[i] = models.SeriesPoint{Timestamp: c.Bucket, Value: c.Close}
	}
	return out
}

// Stats reports bookkeeping for (symbol, tf); false when nothing was seen.
func (r *Resampler) Stats(symbol string, tf repository.Timeframe) (models.CandleStats, bool) {
	b := r.book(symbol, tf, false)
	if b == nil {
		return models.CandleStats{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return models.CandleStats{
		Symbol:    symbol,
		Timeframe: tf.String(),
		Closed:    len(b.history),
		Open:      b.hasOpen,
		Late:      b.late,
		Evicted:   b.evicted,
	}, true
}
