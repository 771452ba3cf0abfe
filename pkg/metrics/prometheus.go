package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pairpulse"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticks         *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	lateTicks     *prometheus.CounterVec
	candlesClosed *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	cache         *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	busDrops      *prometheus.CounterVec
	archived      *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
}

// New registers the recorder's collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_ingested_total",
			Help:      "Ticks accepted into the buffer",
		}, []string{"symbol"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_rejected_total",
			Help:      "Ticks dropped by validation",
		}, []string{"symbol", "reason"}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_evictions_total",
			Help:      "Ticks evicted from a full buffer",
		}, []string{"symbol"}),
		lateTicks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_ticks_total",
			Help:      "Ticks that arrived after their candle closed",
		}, []string{"symbol", "timeframe"}),
		candlesClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candles_closed_total",
			Help:      "Candles closed by the resampler",
		}, []string{"symbol", "timeframe"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Last recorded price for a symbol",
		}, []string{"symbol"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by outcome",
		}, []string{"cache", "hit"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Alert events emitted",
		}, []string{"metric"}),
		busDrops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_dropped_total",
			Help:      "Messages dropped from slow subscriber outboxes",
		}, []string{"topic"}),
		archived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_archived_total",
			Help:      "Ticks written to the durable sink",
		}, []string{"backend"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors encountered",
		}, []string{"type"}),
	}
}

func (r *Recorder) RecordTick(symbol string) {
	r.ticks.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordRejected(symbol, reason string) {
	r.rejected.WithLabelValues(symbol, reason).Inc()
}

func (r *Recorder) RecordEviction(symbol string) {
	r.evictions.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordLateTick(symbol, timeframe string) {
	r.lateTicks.WithLabelValues(symbol, timeframe).Inc()
}

func (r *Recorder) RecordCandleClosed(symbol, timeframe string) {
	r.candlesClosed.WithLabelValues(symbol, timeframe).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordCache(name string, hit bool) {
	r.cache.WithLabelValues(name, strconv.FormatBool(hit)).Inc()
}

func (r *Recorder) RecordAlert(metric string) {
	r.alerts.WithLabelValues(metric).Inc()
}

func (r *Recorder) RecordBusDrop(topic string) {
	r.busDrops.WithLabelValues(topic).Inc()
}

func (r *Recorder) RecordArchived(backend string, n int) {
	r.archived.WithLabelValues(backend).Add(float64(n))
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards everything. Used in tests and when metrics are disabled.
type Nop struct{}

func (Nop) RecordTick(string)                 {}
func (Nop) RecordRejected(string, string)     {}
func (Nop) RecordEviction(string)             {}
func (Nop) RecordLateTick(string, string)     {}
func (Nop) RecordCandleClosed(string, string) {}
func (Nop) RecordLastPrice(string, float64)   {}
func (Nop) RecordLatency(string, float64)     {}
func (Nop) RecordCache(string, bool)          {}
func (Nop) RecordAlert(string)                {}
func (Nop) RecordBusDrop(string)              {}
func (Nop) RecordArchived(string, int)        {}
func (Nop) RecordError(string)                {}
