package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"PairPulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// listPusher is the slice of the redis client the queue needs.
type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisQueue pushes JSON envelopes onto a Redis list. Consumers pop from the
// other end.
type RedisQueue struct {
	logger    *logger.Logger
	client    listPusher
	keyPrefix string
	maxLen    int64

	mu        sync.RWMutex
	isRunning bool
}

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets the list key prefix; the list is "<prefix>:messages".
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithMaxLen caps the list length; older entries are trimmed. 0 disables.
func WithMaxLen(n int64) RedisQueueOption {
	return func(r *RedisQueue) { r.maxLen = n }
}

// NewRedisQueue creates a producer-only queue. Call Start before publishing.
func NewRedisQueue(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	return newRedisQueue(lgr, client, opts...)
}

func newRedisQueue(lgr *logger.Logger, client listPusher, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	rq := &RedisQueue{
		logger:    lgr,
		client:    client,
		keyPrefix: "pairpulse:queue",
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// Start checks connectivity.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return fmt.Errorf("queue already running")
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.isRunning = true
	r.logger.Info("redis publisher started", logger.String("key", r.QueueKey()))
	return nil
}

// Stop marks the queue closed. The client is owned by the caller.
func (r *RedisQueue) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isRunning = false
	return nil
}

// Enqueue wraps payload in a Message and pushes it.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.isRunning
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := r.QueueKey()
	if err := r.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	if r.maxLen > 0 {
		if err := r.client.LTrim(ctx, key, 0, r.maxLen-1).Err(); err != nil {
			return fmt.Errorf("ltrim: %w", err)
		}
	}
	return nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) QueueKey() string {
	return r.keyPrefix + ":messages"
}
