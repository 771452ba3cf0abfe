package ticks

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"PairPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tick(symbol string, sec int, price float64) models.Tick {
	return models.Tick{Symbol: symbol, Price: price, Quantity: 1, Timestamp: t0.Add(time.Duration(sec) * time.Second)}
}

func TestAppendEvictsOldest(t *testing.T) {
	const capacity, n = 5, 12
	b := NewBuffer(Config{Capacity: capacity}, nil)
	for i := 0; i < n; i++ {
		require.NoError(t, b.Append(tick("BTC", i, float64(100+i))))
	}

	got := slices.Collect(b.Read("BTC", ReadQuery{}))
	require.Len(t, got, capacity)
	for i, tk := range got {
		assert.Equal(t, float64(100+n-capacity+i), tk.Price)
	}

	st, ok := b.Stats("BTC")
	require.True(t, ok)
	assert.Equal(t, capacity, st.Count)
	assert.Equal(t, uint64(n-capacity), st.Evicted)
	assert.Equal(t, uint64(n), st.Accepted)
	assert.Equal(t, t0.Add(time.Duration(n-capacity)*time.Second), *st.Oldest)
	assert.Equal(t, t0.Add(time.Duration(n-1)*time.Second), *st.Newest)
}

func TestFullBufferRejectsTickOlderThanOldest(t *testing.T) {
	b := NewBuffer(Config{Capacity: 2, SkewTolerance: 2 * time.Second}, nil)
	require.NoError(t, b.Append(tick("BTC", 0, 1)))
	require.NoError(t, b.Append(tick("BTC", 1, 2)))

	late := models.Tick{Symbol: "BTC", Price: 3, Quantity: 1, Timestamp: t0.Add(-500 * time.Millisecond)}
	err := b.Append(late)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))

	got := b.Ticks("BTC", ReadQuery{})
	require.Len(t, got, 2)
	assert.Equal(t, []time.Time{t0, t0.Add(time.Second)}, []time.Time{got[0].Timestamp, got[1].Timestamp})

	st, _ := b.Stats("BTC")
	assert.Equal(t, uint64(0), st.Evicted)
	assert.Equal(t, uint64(1), st.Rejected)
	assert.Equal(t, uint64(2), st.Accepted)

	// within tolerance and not older than the oldest: the oldest goes
	require.NoError(t, b.Append(models.Tick{Symbol: "BTC", Price: 4, Quantity: 1, Timestamp: t0.Add(500 * time.Millisecond)}))
	got = b.Ticks("BTC", ReadQuery{})
	assert.Equal(t, []float64{4, 2}, []float64{got[0].Price, got[1].Price})
}

func TestAppendRejectsInvalidTicks(t *testing.T) {
	b := NewBuffer(Config{Capacity: 10, SkewTolerance: time.Second}, nil)
	require.NoError(t, b.Append(tick("ETH", 10, 50)))

	bad := []models.Tick{
		{Symbol: "ETH", Price: 0, Quantity: 1, Timestamp: t0.Add(11 * time.Second)},
		{Symbol: "ETH", Price: -3, Quantity: 1, Timestamp: t0.Add(11 * time.Second)},
		{Symbol: "ETH", Price: 3, Quantity: -1, Timestamp: t0.Add(11 * time.Second)},
		tick("ETH", 5, 50), // older than newest - skew
	}
	for _, tk := range bad {
		err := b.Append(tk)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrValidation))
	}

	st, _ := b.Stats("ETH")
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, uint64(len(bad)), st.Rejected)

	require.Error(t, b.Append(models.Tick{Price: 1, Timestamp: t0}))
	assert.Equal(t, uint64(1), b.RejectedWithoutSymbol())
}

func TestAppendWithinSkewKeepsOrder(t *testing.T) {
	b := NewBuffer(Config{Capacity: 10, SkewTolerance: 2 * time.Second}, nil)
	require.NoError(t, b.Append(tick("SOL", 10, 1)))
	require.NoError(t, b.Append(tick("SOL", 12, 2)))
	require.NoError(t, b.Append(tick("SOL", 11, 3)))

	got := b.Ticks("SOL", ReadQuery{})
	require.Len(t, got, 3)
	assert.True(t, slices.IsSortedFunc(got, func(a, b models.Tick) int { return a.Timestamp.Compare(b.Timestamp) }))
	assert.Equal(t, []float64{1, 3, 2}, []float64{got[0].Price, got[1].Price, got[2].Price})

	price, ts, ok := b.LatestPrice("SOL")
	require.True(t, ok)
	assert.Equal(t, 2.0, price)
	assert.Equal(t, t0.Add(12*time.Second), ts)
}

func TestReadBoundsAndLimit(t *testing.T) {
	b := NewBuffer(Config{Capacity: 100}, nil)
	for i := 0; i < 20; i++ {
		require.NoError(t, b.Append(tick("BTC", i, float64(i+1))))
	}

	got := b.Ticks("BTC", ReadQuery{From: t0.Add(5 * time.Second), To: t0.Add(9 * time.Second)})
	require.Len(t, got, 5)
	assert.Equal(t, 6.0, got[0].Price)
	assert.Equal(t, 10.0, got[4].Price)

	got = b.Ticks("BTC", ReadQuery{From: t0.Add(5 * time.Second), Limit: 3})
	require.Len(t, got, 3)
	assert.Equal(t, 18.0, got[0].Price)

	assert.Empty(t, b.Ticks("BTC", ReadQuery{From: t0.Add(time.Hour)}))
	assert.Empty(t, b.Ticks("NOPE", ReadQuery{}))
}

func TestReadIsRestartable(t *testing.T) {
	b := NewBuffer(Config{Capacity: 10}, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Append(tick("BTC", i, 10)))
	}
	seq := b.Read("BTC", ReadQuery{})
	assert.Len(t, slices.Collect(seq), 3)

	require.NoError(t, b.Append(tick("BTC", 3, 10)))
	assert.Len(t, slices.Collect(seq), 4)

	n := 0
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestSymbolsAndClear(t *testing.T) {
	b := NewBuffer(Config{Capacity: 10}, nil)
	require.NoError(t, b.Append(tick("ETH", 0, 1)))
	require.NoError(t, b.Append(tick("BTC", 0, 1)))
	assert.Equal(t, []string{"BTC", "ETH"}, b.Symbols())

	b.Clear("ETH")
	assert.Equal(t, []string{"BTC"}, b.Symbols())
	st, ok := b.Stats("ETH")
	require.True(t, ok)
	assert.Equal(t, 0, st.Count)
	assert.Nil(t, st.Oldest)

	b.Clear("")
	assert.Empty(t, b.Symbols())
}

func TestConcurrentAppendAndRead(t *testing.T) {
	b := NewBuffer(Config{Capacity: 64}, nil)
	var wg sync.WaitGroup
	for _, sym := range []string{"A", "B", "C"} {
		wg.Add(2)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = b.Append(tick(sym, i, float64(i+1)))
			}
		}(sym)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				got := b.Ticks(sym, ReadQuery{})
				if !slices.IsSortedFunc(got, func(a, b models.Tick) int { return a.Timestamp.Compare(b.Timestamp) }) {
					t.Errorf("unsorted read for %s", sym)
					return
				}
			}
		}(sym)
	}
	wg.Wait()

	for _, sym := range []string{"A", "B", "C"} {
		st, _ := b.Stats(sym)
		assert.Equal(t, 64, st.Count)
		assert.Equal(t, uint64(500-64), st.Evicted)
	}
}
