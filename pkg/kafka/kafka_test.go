package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{ch: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.ch <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type handlerFunc struct {
	topic string
	fn    func([]byte) error
}

func (h handlerFunc) Topic() string { return h.topic }
func (h handlerFunc) Handle(_ context.Context, b []byte) error { return h.fn(b) }

func TestProducerEncodesAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := &fakeWriter{}
	p := newProducer(w, "snappy", reg)

	require.NoError(t, p.Publish(context.Background(), "ticks", []byte("BTCUSDT"), map[string]any{"p": 1.5}))
	require.NoError(t, p.PublishBatch(context.Background(), "ticks", []Message{
		{Key: []byte("A"), Value: "raw"},
		{Key: []byte("B"), Value: []byte("bytes")},
	}))

	got := w.written()
	require.Len(t, got, 3)
	assert.JSONEq(t, `{"p":1.5}`, string(got[0].Value))
	assert.Equal(t, "raw", string(got[1].Value))
	assert.Equal(t, "ticks", got[2].Topic)
	assert.Equal(t, 3.0, testutil.ToFloat64(p.metrics.messages.WithLabelValues("ticks", "snappy", "ok")))

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), "ticks", nil, "x"))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.errors.WithLabelValues("ticks")))
}

func TestProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func newTestConsumer(t *testing.T, r *fakeReader, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(nil, opts...)
	require.NoError(t, err)
	c.newReader = func(string) messageReader { return r }
	return c
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "ticks", Offset: 7, Value: []byte("x")})
	c := newTestConsumer(t, r)

	var mu sync.Mutex
	calls := 0
	c.RegisterHandler(handlerFunc{topic: "ticks", fn: func([]byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}})

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	assert.Equal(t, []int64{7}, r.commits())
	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()
}

func TestConsumerDeadLettersPoisonMessage(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "ticks", Offset: 3, Value: []byte("bad")})
	c := newTestConsumer(t, r, WithConsumerDLQ("ticks.dlq"))
	dlq := &fakeWriter{}
	c.dlq = dlq

	c.RegisterHandler(handlerFunc{topic: "ticks", fn: func([]byte) error { panic("decode") }})
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	out := dlq.written()
	require.Len(t, out, 1)
	assert.Equal(t, "ticks.dlq", out[0].Topic)
	assert.Equal(t, "bad", string(out[0].Value))
	assert.Equal(t, "ticks", string(out[0].Headers[0].Value))
}

func TestConsumerWithoutDLQLeavesOffset(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "ticks", Offset: 1})
	c := newTestConsumer(t, r)
	handled := make(chan struct{}, 8)
	c.RegisterHandler(handlerFunc{topic: "ticks", fn: func([]byte) error {
		handled <- struct{}{}
		return errors.New("always")
	}})

	require.NoError(t, c.Start(context.Background()))
	for i := 0; i < 3; i++ {
		select {
		case <-handled:
		case <-time.After(2 * time.Second):
			t.Fatal("handler not retried")
		}
	}
	require.NoError(t, c.Stop(context.Background()))
	assert.Empty(t, r.commits())
}

func TestConsumerStartRequiresHandler(t *testing.T) {
	c := newTestConsumer(t, newFakeReader())
	assert.Error(t, c.Start(context.Background()))
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}
