package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
)

// ErrBufferFull is returned when the pipeline drops a tick because its
// queue is full.
var ErrBufferFull = errors.New("pipeline buffer full")

// Proc is the downstream the pipeline feeds.
type Proc interface {
	Ingest(t models.Tick) bool
}

// RealtimePipeline sits between the upstream reader and ingestion. It
// throttles each symbol, optionally transforms ticks, and hands them to a
// single worker through a bounded queue so a slow engine never stalls the
// socket reader.
type RealtimePipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	maxRPS    int
	bufSize   int
	transform func(models.Tick) models.Tick
	now       func() time.Time

	bufCh chan models.Tick
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	windows map[string]*rateWindow
}

type rateWindow struct {
	start time.Time
	count int
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps accepted ticks per symbol per second. 0 disables.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the queue length between reader and worker.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform rewrites every tick before throttling.
func WithTransform(fn func(models.Tick) models.Tick) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:    proc,
		metrics: metrics,
		maxRPS:  0,
		bufSize: 4096,
		now:     time.Now,
		windows: make(map[string]*rateWindow),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Tick, p.bufSize)
	return p
}

// Start launches the worker. It drains the queue and exits when ctx is done.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-p.bufCh:
				start := time.Now()
				p.proc.Ingest(t)
				p.metrics.RecordLatency("pipeline_ingest", time.Since(start).Seconds())
			}
		}
	}()
}

// Wait blocks until the worker has exited.
func (p *RealtimePipeline) Wait() { p.wg.Wait() }

// Depth is the number of queued ticks.
func (p *RealtimePipeline) Depth() int { return len(p.bufCh) }

// Process queues t for ingestion. Throttled ticks are dropped silently;
// ErrBufferFull reports a drop caused by a full queue.
func (p *RealtimePipeline) Process(t *models.Tick) error {
	if t == nil {
		return nil
	}
	tick := *t
	if p.transform != nil {
		tick = p.transform(tick)
	}
	if !p.allow(tick.Symbol) {
		p.metrics.RecordRejected(tick.Symbol, "throttled")
		return nil
	}
	select {
	case p.bufCh <- tick:
		return nil
	default:
		p.metrics.RecordRejected(tick.Symbol, "pipeline_full")
		return ErrBufferFull
	}
}

func (p *RealtimePipeline) allow(symbol string) bool {
	if p.maxRPS <= 0 {
		return true
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.windows[symbol]
	if !ok {
		w = &rateWindow{start: now}
		p.windows[symbol] = w
	}
	if now.Sub(w.start) >= time.Second {
		w.start = now
		w.count = 0
	}
	if w.count >= p.maxRPS {
		return false
	}
	w.count++
	return true
}
