package usecase

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaTicksHandlerIngestsPayload(t *testing.T) {
	ing := &recordingIngester{}
	h := NewKafkaTicksHandler("ticks", ing, newCountingMetrics())
	assert.Equal(t, "ticks", h.Topic())

	ms := t0.UnixMilli()
	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"btcusdt","t":`+itoa(ms)+`,"p":101.5,"q":0.2}`)))

	got := ing.all()
	require.Len(t, got, 1)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.Equal(t, 101.5, got[0].Price)
	assert.Equal(t, 0.2, got[0].Quantity)
	assert.True(t, got[0].Timestamp.Equal(t0))
}

func TestKafkaTicksHandlerAcceptsSecondTimestamps(t *testing.T) {
	ing := &recordingIngester{}
	h := NewKafkaTicksHandler("ticks", ing, newCountingMetrics())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"ETH","t":`+itoa(t0.Unix())+`,"p":1,"q":1}`)))
	require.Len(t, ing.all(), 1)
	assert.True(t, ing.all()[0].Timestamp.Equal(t0.Truncate(time.Second)))
}

func TestKafkaTicksHandlerReturnsDecodeErrors(t *testing.T) {
	m := newCountingMetrics()
	h := NewKafkaTicksHandler("ticks", &recordingIngester{}, m)

	assert.Error(t, h.Handle(context.Background(), []byte(`{not json`)))
	assert.Equal(t, 1, m.errorCount("consumer_unmarshal"))
}

func TestKafkaTicksHandlerAcksInvalidTicks(t *testing.T) {
	m := newCountingMetrics()
	ing := &recordingIngester{}
	h := NewKafkaTicksHandler("ticks", ing, m)

	assert.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"ETH","p":1,"q":1}`)))
	assert.Empty(t, ing.all())
	assert.Equal(t, 1, m.rejected["kafka_payload"])
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
