package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"PairPulse/internal/domain/models"
	pkgkafka "PairPulse/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	topic string
	msgs  []pkgkafka.Message
	calls int
}

func (p *recordingProducer) PublishBatch(_ context.Context, topic string, messages []pkgkafka.Message) error {
	p.calls++
	p.topic = topic
	p.msgs = append(p.msgs, messages...)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestKafkaPublisherKeysBySymbol(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewKafkaPublisher(prod, "pairpulse.ticks")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 500e6, time.UTC)

	require.NoError(t, pub.PublishBatch(context.Background(), []*models.Tick{
		{Symbol: "BTCUSDT", Price: 100, Quantity: 2, Timestamp: ts},
		nil,
		{Symbol: "ETHUSDT", Price: 5, Quantity: 1, Timestamp: ts},
	}))
	require.NoError(t, pub.PublishBatch(context.Background(), nil))

	assert.Equal(t, 1, prod.calls)
	assert.Equal(t, "pairpulse.ticks", prod.topic)
	require.Len(t, prod.msgs, 2)
	assert.Equal(t, "BTCUSDT", string(prod.msgs[0].Key))
	assert.Equal(t, models.TickMessage{Symbol: "BTCUSDT", T: ts.UnixMilli(), P: 100, Q: 2}, prod.msgs[0].Value)
}

func TestInsertStatementSkipsInvalid(t *testing.T) {
	s := NewClickHouseStorage(nil, "pp.ticks", "binance", nil)
	ts := time.Unix(1700000000, 0)

	q, args := s.insertStatement([]*models.Tick{
		{Symbol: "A", Price: 1, Timestamp: ts},
		nil,
		{Symbol: "", Price: 1, Timestamp: ts},
		{Symbol: "B", Price: 2, Quantity: 3, Timestamp: ts},
	})
	assert.True(t, strings.HasPrefix(q, "INSERT INTO pp.ticks (ts, symbol, price, quantity, source) VALUES"))
	assert.Equal(t, 2, strings.Count(q, "(?, ?, ?, ?, ?)"))
	require.Len(t, args, 10)
	assert.Equal(t, "B", args[6])
	assert.Equal(t, "binance", args[9])

	q, _ = s.insertStatement([]*models.Tick{nil})
	assert.Empty(t, q)
}
