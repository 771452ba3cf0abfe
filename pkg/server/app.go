package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PairPulse/internal/service/ratelimit"
	"PairPulse/internal/services/alerts"
	"PairPulse/internal/services/analytics"
	"PairPulse/internal/usecase"
	pkgch "PairPulse/pkg/clickhouse"
	"PairPulse/pkg/config"
	xhttp "PairPulse/pkg/http"
	pkgkafka "PairPulse/pkg/kafka"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/queue"

	"github.com/redis/go-redis/v9"
)

const janitorInterval = 30 * time.Second

// Deps are the long-running parts of the app. Optional parts are nil when
// the configuration disables them.
type Deps struct {
	Config     *config.Config
	Logger     *applogger.Logger
	HTTPServer *xhttp.Server
	Handlers   []xhttp.Handler

	Alerts    *alerts.Engine
	Analytics *analytics.Engine

	// ingestion sources, at most one is set
	Collector *usecase.TickCollector
	Consumer  *pkgkafka.Consumer
	KafkaSrc  *usecase.KafkaTicksHandler

	Archiver  *usecase.TickArchiver
	WarmStart *usecase.WarmStarter
	Forwarder *usecase.AlertForwarder
	Queue     *queue.RedisQueue
	Limiter   *ratelimit.Limiter

	ClickHouse *pkgch.Client
	Redis      *redis.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
	log *applogger.Logger
}

func New(d Deps) *App {
	return &App{Deps: d, log: d.Logger.With("component", "app")}
}

// Run starts every component and blocks until SIGINT/SIGTERM or an HTTP
// server failure, then shuts down in reverse dependency order.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

func (a *App) RunContext(ctx context.Context) error {
	// Background loops outlive ctx so shutdown can drain them in order.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	archiveCtx, cancelArchive := context.WithCancel(context.Background())
	defer cancelArchive()

	if a.Queue != nil {
		if err := a.Queue.Start(ctx); err != nil {
			return err
		}
		if a.Config.Log.Collect {
			a.Logger.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   a.Config.Log.CollectInterval,
				CountThreshold: 100,
				Topic:          a.Config.Log.CollectTopic,
				Service:        "pairpulse",
				Publisher:      a.Queue,
			})
		}
	}

	if a.Archiver != nil {
		a.Archiver.Start(archiveCtx)
		a.log.Info("archiver started", applogger.String("backend", a.Config.Archive.Backend))
	}

	// Replay history before live ticks so late-tick rejection does not drop it.
	if a.WarmStart != nil {
		n, err := a.WarmStart.Run(ctx)
		if err != nil {
			a.log.Warn("warm start failed", applogger.Error(err))
		} else {
			a.log.Info("warm start done", applogger.Int("ticks", n))
		}
	}

	if err := a.startSource(runCtx); err != nil {
		a.shutdown(cancelRun, cancelArchive)
		return err
	}

	if a.Alerts != nil {
		go func() {
			if err := a.Alerts.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("alert engine stopped", applogger.Error(err))
			}
		}()
	}
	if a.Forwarder != nil {
		a.Forwarder.Start(runCtx)
	}
	go a.janitor(runCtx)

	a.HTTPServer.Register(a.Handlers...)
	if err := a.HTTPServer.Start(); err != nil {
		a.shutdown(cancelRun, cancelArchive)
		return err
	}
	a.log.Info("pairpulse started",
		applogger.String("env", a.Config.Environment),
		applogger.String("source", a.Config.Ingest.Source),
		applogger.Int("port", a.Config.Server.Port))

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.HTTPServer.Err():
		a.log.Error("http server failed", applogger.Error(runErr))
	}
	a.shutdown(cancelRun, cancelArchive)
	return runErr
}

func (a *App) startSource(ctx context.Context) error {
	switch {
	case a.Collector != nil:
		if err := a.Collector.Start(ctx); err != nil {
			return err
		}
		a.log.Info("collector started", applogger.Strings("symbols", a.Config.Ingest.Symbols))
	case a.Consumer != nil && a.KafkaSrc != nil:
		a.Consumer.RegisterHandler(a.KafkaSrc)
		if err := a.Consumer.Start(ctx); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.KafkaSrc.Topic()))
	default:
		a.log.Info("no ingestion source configured")
	}
	return nil
}

// janitor drops expired analytics snapshots and idle rate limit buckets.
func (a *App) janitor(ctx context.Context) {
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if a.Analytics != nil {
				a.Analytics.SweepCache()
			}
			if a.Limiter != nil {
				a.Limiter.Sweep(5 * time.Minute)
			}
		}
	}
}

// shutdown stops intake first, then the loops fed by it, then the sinks.
func (a *App) shutdown(cancelRun, cancelArchive context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.HTTPServer.Stop(ctx); err != nil {
		a.log.Warn("http shutdown error", applogger.Error(err))
	}

	if a.Collector != nil {
		if err := a.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	cancelRun()
	if a.Forwarder != nil {
		a.Forwarder.Stop()
	}

	if a.Archiver != nil {
		cancelArchive()
		a.Archiver.Wait()
		if err := a.Archiver.Close(); err != nil {
			a.log.Warn("archiver close error", applogger.Error(err))
		}
	}

	a.Logger.RemoveCollector()
	if a.Queue != nil {
		_ = a.Queue.Stop(ctx)
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
