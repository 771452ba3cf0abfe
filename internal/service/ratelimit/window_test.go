package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"PairPulse/pkg/cache"
	applogger "PairPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
)

type failingCounter struct{}

func (failingCounter) IncrWindow(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("redis down")
}

func TestWindowLimiterCountsPerKey(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	// A long window keeps the test inside one bucket.
	l := NewWindowLimiter(mc, 2, time.Hour, applogger.NewNop())

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestWindowLimiterFailsOpen(t *testing.T) {
	l := NewWindowLimiter(failingCounter{}, 1, time.Second, applogger.NewNop())
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("a"))
	}
}

func TestWindowLimiterDisabled(t *testing.T) {
	l := NewWindowLimiter(failingCounter{}, 0, time.Second, applogger.NewNop())
	assert.True(t, l.Allow("a"))
}
