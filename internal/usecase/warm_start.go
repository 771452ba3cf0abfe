package usecase

import (
	"context"
	"fmt"
	"time"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	applogger "PairPulse/pkg/logger"
)

// TickReplayer ingests ticks that already live in the archive.
type TickReplayer interface {
	Replay(t models.Tick) bool
}

// WarmStarter replays recently archived ticks so candles and analytics are
// populated before the live feed catches up.
type WarmStarter struct {
	store    drepo.Storage
	replay   TickReplayer
	symbols  []string
	lookback time.Duration
	limit    int
	log      *applogger.Logger
	now      func() time.Time
}

func NewWarmStarter(store drepo.Storage, replay TickReplayer, symbols []string, lookback time.Duration, limit int, l *applogger.Logger) *WarmStarter {
	return &WarmStarter{
		store:    store,
		replay:   replay,
		symbols:  symbols,
		lookback: lookback,
		limit:    limit,
		log:      l.With("component", "warm_start"),
		now:      time.Now,
	}
}

// Run replays every symbol. A failing symbol is logged and skipped; the
// returned error joins all failures.
func (w *WarmStarter) Run(ctx context.Context) (int, error) {
	to := w.now().UTC()
	from := to.Add(-w.lookback)
	total := 0
	var failed []string
	for _, sym := range w.symbols {
		ticks, err := w.store.Query(ctx, sym, from, to, w.limit)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			w.log.Warn("warm start query failed", applogger.String("symbol", sym), applogger.Error(err))
			failed = append(failed, sym)
			continue
		}
		n := 0
		for _, t := range ticks {
			if t != nil && w.replay.Replay(*t) {
				n++
			}
		}
		total += n
		w.log.Info("warm start replayed",
			applogger.String("symbol", sym),
			applogger.Int("ticks", n),
			applogger.Int("fetched", len(ticks)))
	}
	if len(failed) > 0 {
		return total, fmt.Errorf("warm start failed for %v", failed)
	}
	return total, nil
}
