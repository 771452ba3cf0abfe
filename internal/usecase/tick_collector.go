package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	mid "PairPulse/internal/middleware"
	applogger "PairPulse/pkg/logger"
)

// TickCollector pumps a live MarketStream into the pipeline and keeps the
// stream connected.
type TickCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	log     *applogger.Logger

	retryDelay time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTickCollector(stream drepo.MarketStream, pipe *mid.RealtimePipeline, m drepo.Metrics, l *applogger.Logger) *TickCollector {
	return &TickCollector{
		stream:     stream,
		pipe:       pipe,
		metrics:    m,
		log:        l.With("component", "collector"),
		retryDelay: time.Second,
	}
}

func (c *TickCollector) IsConnected() bool { return c.stream.IsConnected() }

// Start connects, subscribes and begins consuming in the background.
func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.pipe.Start(ctx)

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

func (c *TickCollector) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		tickCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, tickCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.log.Warn("stream interrupted, reconnecting", applogger.Error(err))
		c.reconnect(ctx)
	}
}

// consume returns when the stream ends or fails.
func (c *TickCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if ok && err != nil {
				return err
			}
			errCh = nil
			if tickCh == nil {
				return errors.New("stream closed")
			}
		case t, ok := <-tickCh:
			if !ok {
				tickCh = nil
				if errCh == nil {
					return errors.New("stream closed")
				}
				continue
			}
			if err := c.pipe.Process(t); err != nil {
				c.log.Debug("tick dropped", applogger.String("symbol", t.Symbol), applogger.Error(err))
			}
		}
	}
}

func (c *TickCollector) reconnect(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			c.log.Info("stream reconnected", applogger.Int("attempt", attempt))
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("reconnect failed", applogger.Int("attempt", attempt), applogger.Error(err))
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown stops consuming, waits for the pipeline worker and closes the
// stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		c.pipe.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return c.stream.Close()
}
