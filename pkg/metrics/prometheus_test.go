package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordTick("BTCUSDT")
	r.RecordTick("BTCUSDT")
	r.RecordRejected("BTCUSDT", "price")
	r.RecordBusDrop("tick")
	r.RecordArchived("kafka", 25)
	r.RecordCache("analytics", true)
	r.RecordLastPrice("ETHUSDT", 3120.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticks.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejected.WithLabelValues("BTCUSDT", "price")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.busDrops.WithLabelValues("tick")))
	assert.Equal(t, 25.0, testutil.ToFloat64(r.archived.WithLabelValues("kafka")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cache.WithLabelValues("analytics", "true")))
	assert.Equal(t, 3120.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("ETHUSDT")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["pairpulse_ticks_ingested_total"])
	assert.True(t, names["pairpulse_bus_dropped_total"])
}

func TestRecordersOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
