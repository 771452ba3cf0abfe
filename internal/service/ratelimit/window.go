package ratelimit

import (
	"context"
	"time"

	"PairPulse/pkg/cache"
	applogger "PairPulse/pkg/logger"
)

// WindowLimiter allows limit hits per key in each fixed window. Counts live
// in a cache.Counter, so replicas sharing a Redis share the budget.
type WindowLimiter struct {
	counter cache.Counter
	limit   int64
	window  time.Duration
	timeout time.Duration
	logger  *applogger.Logger
}

func NewWindowLimiter(counter cache.Counter, limit int, window time.Duration, logger *applogger.Logger) *WindowLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &WindowLimiter{
		counter: counter,
		limit:   int64(limit),
		window:  window,
		timeout: 200 * time.Millisecond,
		logger:  logger.With("component", "ratelimit"),
	}
}

// Allow fails open when the counter store errors.
func (l *WindowLimiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	n, err := l.counter.IncrWindow(ctx, "rl:"+key, l.window)
	if err != nil {
		l.logger.Warn("rate limit counter failed", applogger.String("key", key), applogger.Error(err))
		return true
	}
	return n <= l.limit
}
