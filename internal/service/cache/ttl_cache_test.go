package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int]()
	c.now = func() time.Time { return now }

	c.Set("a", 1, 2*time.Second)
	c.Set("forever", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(3 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)

	v, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLCacheSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[int, string]()
	c.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		c.Set(i, "x", time.Duration(i+1)*time.Second)
	}
	now = now.Add(3500 * time.Millisecond)
	assert.Equal(t, 3, c.Sweep())
	assert.Equal(t, 2, c.Len())

	c.Delete(4)
	assert.Equal(t, 1, c.Len())
}
