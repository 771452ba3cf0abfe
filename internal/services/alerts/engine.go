package alerts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
	"PairPulse/internal/domain/service"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"

	"github.com/google/uuid"
)

const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultHistorySize = 500
)

type Config struct {
	Interval time.Duration
	// EdgeTriggered fires once when a condition becomes true instead of on
	// every cycle it holds.
	EdgeTriggered    bool
	HistorySize      int
	DefaultTimeframe repository.Timeframe
	DefaultWindow    int
	DefaultEstimator models.Estimator
	// Timeframes lists the resampled timeframes; empty accepts any valid one.
	Timeframes []repository.Timeframe
}

// RuleSpec is the user input for a new rule. Zero Timeframe, Window and
// Estimator take the engine defaults.
type RuleSpec struct {
	Metric    string
	Pair      string
	Operator  string
	Threshold float64
	Timeframe string
	Window    int
	Estimator string
}

// Handler receives every emitted event. Handlers run on the evaluation
// goroutine and must not block.
type Handler func(models.AlertEvent)

// Engine owns the rule set and evaluates every active rule once per
// interval against the latest analytics.
type Engine struct {
	cfg      Config
	analyzer service.PairAnalyzer
	prices   service.PriceSource
	metrics  repository.Metrics
	log      *applogger.Logger
	now      func() time.Time

	mu    sync.RWMutex
	rules map[string]*ruleState

	histMu  sync.RWMutex
	history []models.AlertEvent

	hMu      sync.RWMutex
	handlers []Handler
}

type ruleState struct {
	rule   models.AlertRule
	query  service.PairQuery
	firing bool
}

func NewEngine(cfg Config, analyzer service.PairAnalyzer, prices service.PriceSource, m repository.Metrics, l *applogger.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if !repository.IsValidTimeframe(cfg.DefaultTimeframe) {
		cfg.DefaultTimeframe = repository.DefaultTimeframe()
	}
	if cfg.DefaultWindow < 2 {
		cfg.DefaultWindow = 60
	}
	if cfg.DefaultEstimator == "" {
		cfg.DefaultEstimator = models.EstimatorOLS
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		analyzer: analyzer,
		prices:   prices,
		metrics:  m,
		log:      l,
		now:      time.Now,
		rules:    make(map[string]*ruleState),
	}
}

// OnAlert registers h for every future event.
func (e *Engine) OnAlert(h Handler) {
	e.hMu.Lock()
	e.handlers = append(e.handlers, h)
	e.hMu.Unlock()
}

// CreateRule validates rs and adds an active rule.
func (e *Engine) CreateRule(rs RuleSpec) (models.AlertRule, error) {
	metric, err := models.ParseAlertMetric(rs.Metric)
	if err != nil {
		return models.AlertRule{}, err
	}
	op, err := models.ParseOperator(rs.Operator)
	if err != nil {
		return models.AlertRule{}, err
	}
	if math.IsNaN(rs.Threshold) || math.IsInf(rs.Threshold, 0) {
		return models.AlertRule{}, models.NewValidationError("threshold", "must be finite")
	}

	tf := e.cfg.DefaultTimeframe
	if rs.Timeframe != "" {
		if tf, err = repository.ParseTimeframe(rs.Timeframe); err != nil {
			return models.AlertRule{}, err
		}
		if len(e.cfg.Timeframes) > 0 && !slices.Contains(e.cfg.Timeframes, tf) {
			return models.AlertRule{}, models.NewValidationError("timeframe", fmt.Sprintf("%s is not resampled", tf))
		}
	}
	window := e.cfg.DefaultWindow
	if rs.Window != 0 {
		if rs.Window < 2 {
			return models.AlertRule{}, models.NewValidationError("window", "must be at least 2")
		}
		window = rs.Window
	}
	est := e.cfg.DefaultEstimator
	if rs.Estimator != "" {
		if est, err = models.ParseEstimator(rs.Estimator); err != nil {
			return models.AlertRule{}, err
		}
	}

	q := service.PairQuery{Timeframe: tf, Window: window, Estimator: est}
	var pair string
	if metric == models.MetricPrice {
		pair = models.NormalizeSymbol(rs.Pair)
		if pair == "" {
			return models.AlertRule{}, models.NewValidationError("pair", "price rules need a symbol")
		}
		q.SymbolA = pair
	} else {
		a, b, err := models.ParsePair(rs.Pair)
		if err != nil {
			return models.AlertRule{}, err
		}
		pair = models.PairKey(a, b)
		q.SymbolA, q.SymbolB = a, b
	}

	rule := models.AlertRule{
		ID:        uuid.NewString(),
		Metric:    metric,
		Pair:      pair,
		Operator:  op,
		Threshold: rs.Threshold,
		Active:    true,
		Timeframe: tf.String(),
		Window:    window,
		Estimator: est,
		CreatedAt: e.now().UTC(),
	}

	e.mu.Lock()
	e.rules[rule.ID] = &ruleState{rule: rule, query: q}
	e.mu.Unlock()

	e.log.Info("alert rule created",
		applogger.String("rule_id", rule.ID),
		applogger.String("pair", rule.Pair),
		applogger.String("metric", string(rule.Metric)),
		applogger.String("operator", string(rule.Operator)),
		applogger.Float64("threshold", rule.Threshold))
	return rule, nil
}

// DeleteRule removes a rule. A cycle already evaluating it finishes that
// evaluation but cannot emit for it afterwards.
func (e *Engine) DeleteRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}
	delete(e.rules, id)
	return nil
}

// SetActive deactivates or re-activates a rule.
func (e *Engine) SetActive(id string, active bool) (models.AlertRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.rules[id]
	if !ok {
		return models.AlertRule{}, fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}
	st.rule.Active = active
	st.firing = false
	return st.rule, nil
}

func (e *Engine) Rule(id string) (models.AlertRule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.rules[id]
	if !ok {
		return models.AlertRule{}, false
	}
	return st.rule, true
}

// Rules returns copies of all rules, oldest first.
func (e *Engine) Rules() []models.AlertRule {
	e.mu.RLock()
	out := make([]models.AlertRule, 0, len(e.rules))
	for _, st := range e.rules {
		out = append(out, st.rule)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Triggered returns up to limit recent events, newest first. limit <= 0
// returns the whole history.
func (e *Engine) Triggered(limit int) []models.AlertEvent {
	e.histMu.RLock()
	defer e.histMu.RUnlock()
	n := len(e.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.AlertEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.history[i])
	}
	return out
}

func (e *Engine) ClearTriggered() {
	e.histMu.Lock()
	e.history = nil
	e.histMu.Unlock()
}

// Run evaluates rules every interval until ctx is cancelled. Cancellation
// takes effect between cycles.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.log.Info("alert engine started",
		applogger.Duration("interval_ms", e.cfg.Interval),
		applogger.Bool("edge_triggered", e.cfg.EdgeTriggered))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("alert engine stopped")
			return nil
		case <-ticker.C:
			e.EvaluateOnce(ctx)
		}
	}
}

// EvaluateOnce runs one cycle over the active rules and returns the events
// it emitted. A failing rule is logged and skipped.
func (e *Engine) EvaluateOnce(ctx context.Context) []models.AlertEvent {
	e.mu.RLock()
	pending := make([]ruleState, 0, len(e.rules))
	for _, st := range e.rules {
		if st.rule.Active {
			pending = append(pending, *st)
		}
	}
	e.mu.RUnlock()

	var events []models.AlertEvent
	for _, st := range pending {
		value, err := e.observe(ctx, st)
		if err != nil {
			e.logRuleError(st.rule, err)
			continue
		}
		if ev, ok := e.record(st.rule.ID, value); ok {
			events = append(events, ev)
		}
	}

	for _, ev := range events {
		e.metrics.RecordAlert(string(ev.Metric))
		e.dispatch(ev)
	}
	return events
}

// observe reads the rule's metric. A panic in a lookup is turned into an
// error so it only affects this rule.
func (e *Engine) observe(ctx context.Context, st ruleState) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("metric lookup panicked: %v", r)
		}
	}()

	if st.rule.Metric == models.MetricPrice {
		if e.prices == nil {
			return 0, errors.New("no price source")
		}
		p, _, ok := e.prices.LatestPrice(st.query.SymbolA)
		if !ok {
			return 0, models.NewInsufficientDataError("price of "+st.query.SymbolA, 0, 0)
		}
		return p, nil
	}

	snap, err := e.analyzer.Analyze(ctx, st.query)
	if err != nil {
		return 0, err
	}
	v, ok := snap.Latest(st.rule.Metric)
	if !ok {
		return 0, models.NewInsufficientDataError(string(st.rule.Metric)+" of "+st.rule.Pair, 0, 0)
	}
	return v, nil
}

// record applies the operator and, on success, updates trigger bookkeeping
// under the rule lock. It reports false when the rule vanished or was
// deactivated mid-cycle.
func (e *Engine) record(id string, value float64) (models.AlertEvent, bool) {
	e.mu.Lock()
	st, ok := e.rules[id]
	if !ok || !st.rule.Active {
		e.mu.Unlock()
		return models.AlertEvent{}, false
	}

	hit := st.rule.Operator.Compare(value, st.rule.Threshold)
	if !hit || (e.cfg.EdgeTriggered && st.firing) {
		st.firing = hit
		e.mu.Unlock()
		return models.AlertEvent{}, false
	}
	st.firing = true

	now := e.now().UTC()
	st.rule.LastTriggered = &now
	st.rule.TriggerCount++
	ev := models.AlertEvent{
		ID:        uuid.NewString(),
		RuleID:    st.rule.ID,
		Metric:    st.rule.Metric,
		Pair:      st.rule.Pair,
		Operator:  st.rule.Operator,
		Value:     value,
		Threshold: st.rule.Threshold,
		Timestamp: now,
	}
	e.mu.Unlock()

	e.histMu.Lock()
	e.history = append(e.history, ev)
	if over := len(e.history) - e.cfg.HistorySize; over > 0 {
		e.history = append(e.history[:0:0], e.history[over:]...)
	}
	e.histMu.Unlock()
	return ev, true
}

func (e *Engine) dispatch(ev models.AlertEvent) {
	e.hMu.RLock()
	handlers := append([]Handler(nil), e.handlers...)
	e.hMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("alert handler panicked", applogger.String("rule_id", ev.RuleID), applogger.Any("panic", r))
				}
			}()
			h(ev)
		}()
	}
}

func (e *Engine) logRuleError(rule models.AlertRule, err error) {
	fields := []applogger.Field{
		applogger.String("rule_id", rule.ID),
		applogger.String("pair", rule.Pair),
		applogger.String("metric", string(rule.Metric)),
		applogger.Error(err),
	}
	if errors.Is(err, models.ErrInsufficientData) {
		e.log.Debug("alert rule skipped", fields...)
		return
	}
	e.metrics.RecordError("alert_rule")
	e.log.Warn("alert rule evaluation failed", fields...)
}
