package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	applogger "PairPulse/pkg/logger"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

type ArchiverConfig struct {
	Backend      string
	BatchSize    int
	BatchTimeout time.Duration
	QueueSize    int
}

// TickArchiver is the best-effort durable sink. Offer never blocks; a full
// queue drops the tick. Batches go to the Kafka publisher or to ClickHouse
// and failures are logged and counted only.
type TickArchiver struct {
	cfg     ArchiverConfig
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	log     *applogger.Logger

	queue chan models.Tick
	wg    sync.WaitGroup
	once  sync.Once
}

// NewTickArchiver routes batches to pub for the kafka backend and to store
// for clickhouse.
func NewTickArchiver(cfg ArchiverConfig, pub drepo.Publisher, store drepo.Storage, m drepo.Metrics, l *applogger.Logger) (*TickArchiver, error) {
	switch cfg.Backend {
	case BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("archiver: kafka backend needs a publisher")
		}
	case BackendClickHouse:
		if store == nil {
			return nil, fmt.Errorf("archiver: clickhouse backend needs storage")
		}
	default:
		return nil, fmt.Errorf("archiver: unknown backend %q", cfg.Backend)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	return &TickArchiver{
		cfg:     cfg,
		pub:     pub,
		store:   store,
		metrics: m,
		log:     l.With("component", "archiver"),
		queue:   make(chan models.Tick, cfg.QueueSize),
	}, nil
}

// Offer enqueues t without blocking.
func (a *TickArchiver) Offer(t models.Tick) bool {
	select {
	case a.queue <- t:
		return true
	default:
		a.metrics.RecordError("archive_queue_full")
		return false
	}
}

// Start runs the batching loop until ctx is cancelled, then flushes what is
// left.
func (a *TickArchiver) Start(ctx context.Context) {
	a.once.Do(func() {
		a.wg.Add(1)
		go a.run(ctx)
	})
}

// Wait blocks until the final flush has finished.
func (a *TickArchiver) Wait() { a.wg.Wait() }

func (a *TickArchiver) run(ctx context.Context) {
	defer a.wg.Done()
	batch := make([]*models.Tick, 0, a.cfg.BatchSize)
	timer := time.NewTimer(a.cfg.BatchTimeout)
	defer timer.Stop()

	flush := func(fctx context.Context) {
		if len(batch) == 0 {
			return
		}
		a.flush(fctx, batch)
		batch = make([]*models.Tick, 0, a.cfg.BatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case t := <-a.queue:
					batch = append(batch, &t)
					if len(batch) >= a.cfg.BatchSize {
						a.finalFlush(batch)
						batch = batch[:0]
					}
				default:
					a.finalFlush(batch)
					return
				}
			}
		case t := <-a.queue:
			batch = append(batch, &t)
			if len(batch) >= a.cfg.BatchSize {
				flush(ctx)
			}
		case <-timer.C:
			flush(ctx)
			timer.Reset(a.cfg.BatchTimeout)
		}
	}
}

func (a *TickArchiver) finalFlush(batch []*models.Tick) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.flush(ctx, batch)
}

func (a *TickArchiver) flush(ctx context.Context, batch []*models.Tick) {
	start := time.Now()
	var err error
	switch a.cfg.Backend {
	case BackendKafka:
		err = a.pub.PublishBatch(ctx, batch)
	case BackendClickHouse:
		err = a.store.StoreBatch(ctx, batch)
	}
	a.metrics.RecordLatency("archive_flush", time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordError("archive_flush")
		a.log.Error("archive flush failed",
			applogger.String("backend", a.cfg.Backend),
			applogger.Int("ticks", len(batch)),
			applogger.Error(err))
		return
	}
	a.metrics.RecordArchived(a.cfg.Backend, len(batch))
}

// Close releases the backend after Wait.
func (a *TickArchiver) Close() error {
	if a.pub != nil {
		return a.pub.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

var _ drepo.TickSink = (*TickArchiver)(nil)
