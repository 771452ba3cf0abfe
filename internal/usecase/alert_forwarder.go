package usecase

import (
	"context"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/services/bus"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/queue"
)

// AlertForwarder copies every alert published on the bus to the Redis queue
// for out-of-process consumers.
type AlertForwarder struct {
	bus     *bus.Bus
	queue   queue.QueueService
	msgType string
	metrics drepo.Metrics
	log     *applogger.Logger
	timeout time.Duration

	sub *bus.Subscription
	wg  sync.WaitGroup
}

func NewAlertForwarder(b *bus.Bus, q queue.QueueService, msgType string, m drepo.Metrics, l *applogger.Logger) *AlertForwarder {
	return &AlertForwarder{
		bus:     b,
		queue:   q,
		msgType: msgType,
		metrics: m,
		log:     l.With("component", "alert_forwarder"),
		timeout: 2 * time.Second,
	}
}

// Start subscribes to the alert topic.
func (f *AlertForwarder) Start(ctx context.Context) {
	if f.sub != nil {
		return
	}
	f.sub = f.bus.Subscribe(bus.TopicAlert)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for msg := range f.sub.C() {
			ev, ok := msg.Payload.(models.AlertEvent)
			if !ok {
				continue
			}
			f.forward(ctx, ev)
		}
	}()
}

func (f *AlertForwarder) forward(ctx context.Context, ev models.AlertEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	if err := f.queue.PublishMessage(ctx, f.msgType, ev); err != nil {
		f.metrics.RecordError("alert_forward")
		f.log.Warn("forward alert failed", applogger.String("rule_id", ev.RuleID), applogger.Error(err))
	}
}

// Stop unsubscribes and waits for the in-flight alert.
func (f *AlertForwarder) Stop() {
	if f.sub == nil {
		return
	}
	f.bus.Unsubscribe(f.sub)
	f.wg.Wait()
}
