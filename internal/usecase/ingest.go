package usecase

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/services/bus"
	"PairPulse/internal/services/candles"
	"PairPulse/internal/services/ticks"
	applogger "PairPulse/pkg/logger"
)

const laneCount = 64

// Ingestor is the single entry point for ticks. For one symbol the buffer
// append, candle update and bus publish happen under one lane lock, so
// candles and the tick topic see ticks in buffer order.
type Ingestor struct {
	buffer    *ticks.Buffer
	resampler *candles.Resampler
	bus       *bus.Bus
	sink      drepo.TickSink
	metrics   drepo.Metrics
	log       *applogger.Logger

	lanes [laneCount]sync.Mutex
}

// NewIngestor wires the ingestion path. sink may be nil.
func NewIngestor(buf *ticks.Buffer, rs *candles.Resampler, b *bus.Bus, sink drepo.TickSink, m drepo.Metrics, l *applogger.Logger) *Ingestor {
	return &Ingestor{buffer: buf, resampler: rs, bus: b, sink: sink, metrics: m, log: l.With("component", "ingest")}
}

// Ingest normalises and stores t, then offers it to the archive sink. It
// reports whether the tick was accepted; rejected ticks are counted by the
// buffer and never surface as errors.
func (i *Ingestor) Ingest(t models.Tick) bool {
	return i.ingest(t, true)
}

// Replay is Ingest for ticks read back from the archive. They are never
// offered to the sink again.
func (i *Ingestor) Replay(t models.Tick) bool {
	return i.ingest(t, false)
}

func (i *Ingestor) ingest(t models.Tick, archive bool) bool {
	t.Symbol = models.NormalizeSymbol(t.Symbol)
	t.Timestamp = t.Timestamp.UTC()
	start := time.Now()

	lane := &i.lanes[laneOf(t.Symbol)]
	lane.Lock()
	if err := i.buffer.Append(t); err != nil {
		lane.Unlock()
		if !errors.Is(err, models.ErrValidation) {
			i.log.Warn("append failed", applogger.String("symbol", t.Symbol), applogger.Error(err))
		}
		return false
	}
	changed := i.resampler.Update(t)
	i.bus.Publish(bus.TopicTick, t)
	for _, c := range changed {
		i.bus.Publish(bus.TopicCandle, c)
	}
	lane.Unlock()

	if archive && i.sink != nil && !i.sink.Offer(t) {
		i.metrics.RecordError("sink_full")
	}
	i.metrics.RecordLatency("ingest", time.Since(start).Seconds())
	return true
}

// IngestBatch ingests ticks in order and returns how many were accepted.
func (i *Ingestor) IngestBatch(ts []models.Tick) int {
	n := 0
	for _, t := range ts {
		if i.Ingest(t) {
			n++
		}
	}
	return n
}

func laneOf(symbol string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum32() % laneCount
}
