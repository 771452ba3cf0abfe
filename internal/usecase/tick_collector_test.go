package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PairPulse/internal/domain/models"
	mid "PairPulse/internal/middleware"
	applogger "PairPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStream serves one batch of ticks per Read call. A batch ending
// with a nil tick fails the read; the last batch stays open until ctx ends.
type scriptedStream struct {
	mu         sync.Mutex
	batches    [][]*models.Tick
	reads      int
	reconnects atomic.Int32
	closed     atomic.Bool
	connectErr error
}

func (s *scriptedStream) Connect(context.Context) error   { return s.connectErr }
func (s *scriptedStream) Subscribe(context.Context) error { return nil }
func (s *scriptedStream) IsConnected() bool               { return !s.closed.Load() }
func (s *scriptedStream) Close() error                    { s.closed.Store(true); return nil }

func (s *scriptedStream) Reconnect(context.Context) error {
	s.reconnects.Add(1)
	return nil
}

func (s *scriptedStream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	s.mu.Lock()
	idx := s.reads
	s.reads++
	s.mu.Unlock()

	tickCh := make(chan *models.Tick)
	errCh := make(chan error, 1)
	go func() {
		defer close(tickCh)
		if idx >= len(s.batches) {
			<-ctx.Done()
			return
		}
		for _, t := range s.batches[idx] {
			if t == nil {
				errCh <- errors.New("connection reset")
				return
			}
			select {
			case tickCh <- t:
			case <-ctx.Done():
				return
			}
		}
		if idx == len(s.batches)-1 {
			<-ctx.Done()
		}
	}()
	return tickCh, errCh
}

func tickPtr(symbol string, offset time.Duration, price float64) *models.Tick {
	t := tickAt(symbol, offset, price)
	return &t
}

func TestTickCollectorReconnectsAndKeepsIngesting(t *testing.T) {
	stream := &scriptedStream{batches: [][]*models.Tick{
		{tickPtr("BTC", 0, 1), tickPtr("BTC", time.Second, 2), nil},
		{tickPtr("BTC", 2*time.Second, 3)},
	}}
	ing := &recordingIngester{}
	pipe := mid.NewRealtimePipeline(ing, newCountingMetrics())
	m := newCountingMetrics()
	c := NewTickCollector(stream, pipe, m, applogger.NewNop())
	c.retryDelay = time.Millisecond

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(ing.all()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), stream.reconnects.Load())
	assert.Equal(t, 1, m.errorCount("stream"))
	assert.True(t, c.IsConnected())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, c.IsConnected())
}

func TestTickCollectorStartFailsWhenConnectFails(t *testing.T) {
	stream := &scriptedStream{connectErr: errors.New("dial refused")}
	pipe := mid.NewRealtimePipeline(&recordingIngester{}, newCountingMetrics())
	c := NewTickCollector(stream, pipe, newCountingMetrics(), applogger.NewNop())

	assert.Error(t, c.Start(context.Background()))
}
