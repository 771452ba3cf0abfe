package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"PairPulse/internal/domain/repository"
	"PairPulse/pkg/metrics"
)

type Topic string

const (
	TopicTick   Topic = "tick"
	TopicCandle Topic = "candle"
	TopicAlert  Topic = "alert"
)

func ParseTopic(s string) (Topic, bool) {
	switch t := Topic(s); t {
	case TopicTick, TopicCandle, TopicAlert:
		return t, true
	}
	return "", false
}

const DefaultOutboxSize = 256

// Message is what subscribers receive.
type Message struct {
	Topic     Topic       `json:"topic"`
	Payload   interface{} `json:"payload"`
	Published time.Time   `json:"published"`
}

// Bus fans messages out to topic subscribers. Publish never blocks: every
// subscriber has a bounded outbox and the oldest queued message is dropped
// when it is full.
type Bus struct {
	outboxSize int
	metrics    repository.Metrics

	mu     sync.RWMutex
	subs   map[Topic]map[uint64]*Subscription
	nextID uint64
}

// Subscription is a handle on one subscriber's outbox.
type Subscription struct {
	id     uint64
	topic  Topic
	ch     chan Message
	sendMu sync.Mutex
	drops  atomic.Uint64
	closed bool
	done   chan struct{}
}

// C delivers messages in publish order. It is closed on Unsubscribe.
func (s *Subscription) C() <-chan Message { return s.ch }

func (s *Subscription) Topic() Topic { return s.topic }

// Dropped counts messages discarded from this subscriber's outbox.
func (s *Subscription) Dropped() uint64 { return s.drops.Load() }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func New(outboxSize int, m repository.Metrics) *Bus {
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Bus{
		outboxSize: outboxSize,
		metrics:    m,
		subs:       make(map[Topic]map[uint64]*Subscription),
	}
}

// Subscribe registers a new receiver for topic.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription{
		id:    b.nextID,
		topic: topic,
		ch:    make(chan Message, b.outboxSize),
		done:  make(chan struct{}),
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*Subscription)
	}
	b.subs[topic][s.id] = s
	return s
}

// SubscribeFunc runs handler for every message of topic on its own
// goroutine until the returned subscription is unsubscribed.
func (b *Bus) SubscribeFunc(topic Topic, handler func(Message)) *Subscription {
	s := b.Subscribe(topic)
	go func() {
		for msg := range s.ch {
			handler(msg)
		}
	}()
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call twice.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	if subs := b.subs[s.topic]; subs != nil {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(b.subs, s.topic)
		}
	}
	b.mu.Unlock()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
		close(s.done)
	}
}

// Publish delivers payload to every current subscriber of topic and returns
// how many received it.
func (b *Bus) Publish(topic Topic, payload interface{}) int {
	msg := Message{Topic: topic, Payload: payload, Published: time.Now().UTC()}

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs[topic]))
	for _, s := range b.subs[topic] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if b.offer(s, msg) {
			delivered++
		}
	}
	return delivered
}

func (b *Bus) offer(s *Subscription, msg Message) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return false
	}
	for {
		select {
		case s.ch <- msg:
			return true
		default:
		}
		// full: drop the oldest and retry
		select {
		case <-s.ch:
			s.drops.Add(1)
			b.metrics.RecordBusDrop(string(s.topic))
		default:
		}
	}
}

// Subscribers reports the current subscriber count of topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
