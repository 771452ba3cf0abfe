package usecase

import (
	"context"
	"errors"
	"time"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	pkgkafka "PairPulse/pkg/kafka"
)

// TickIngester is the ingestion entry point consumers feed.
type TickIngester interface {
	Ingest(t models.Tick) bool
}

// KafkaTicksHandler feeds ticks from a Kafka topic into ingestion.
// Payload: {"symbol": "...", "t": unix ms, "p": price, "q": quantity}.
type KafkaTicksHandler struct {
	topic   string
	ingest  TickIngester
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, ingest TickIngester, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, ingest: ingest, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// Handle returns an error only for undecodable payloads so they reach the
// DLQ. Ticks the buffer rejects are counted there and acknowledged.
func (h *KafkaTicksHandler) Handle(_ context.Context, b []byte) error {
	t, err := models.DecodeTickMessage(b)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			h.metrics.RecordRejected("", "kafka_payload")
			return nil
		}
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	h.metrics.RecordLatency("ingest_e2e", time.Since(t.Timestamp).Seconds())
	h.ingest.Ingest(t)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
