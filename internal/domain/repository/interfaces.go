package repository

import (
	"context"
	"time"

	"PairPulse/internal/domain/models"
)

// MarketStream is an upstream live trade feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher forwards ticks to a message broker.
type Publisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

// Storage is the durable tick store used for archiving and warm start.
type Storage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error)
	Health(ctx context.Context) error
	Close() error
}

// TickSink receives accepted ticks after ingestion. It must not block.
type TickSink interface {
	Offer(t models.Tick) bool
}

// Metrics is the engine's instrumentation surface.
type Metrics interface {
	RecordTick(symbol string)
	RecordRejected(symbol, reason string)
	RecordEviction(symbol string)
	RecordLateTick(symbol, timeframe string)
	RecordCandleClosed(symbol, timeframe string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordCache(name string, hit bool)
	RecordAlert(metric string)
	RecordBusDrop(topic string)
	RecordArchived(backend string, n int)
	RecordError(kind string)
}
