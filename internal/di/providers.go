package di

import (
	"context"
	"fmt"
	"slices"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
	"PairPulse/internal/handler/api"
	"PairPulse/internal/handler/ws"
	mid "PairPulse/internal/middleware"
	internalrepo "PairPulse/internal/repository"
	"PairPulse/internal/service/binance"
	svcmetrics "PairPulse/internal/service/metrics"
	"PairPulse/internal/service/ratelimit"
	"PairPulse/internal/services/alerts"
	"PairPulse/internal/services/analytics"
	"PairPulse/internal/services/bus"
	"PairPulse/internal/services/candles"
	"PairPulse/internal/services/ticks"
	"PairPulse/internal/usecase"
	"PairPulse/pkg/cache"
	pkgch "PairPulse/pkg/clickhouse"
	"PairPulse/pkg/config"
	xhttp "PairPulse/pkg/http"
	pkgkafka "PairPulse/pkg/kafka"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"
	"PairPulse/pkg/queue"
	"PairPulse/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// ProvideLogger builds the root logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideRegistry creates the private Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

func ProvideTimeframes(cfg *config.Config) ([]repository.Timeframe, error) {
	tfs, err := repository.ParseTimeframes(cfg.Engine.Timeframes)
	if err != nil {
		return nil, fmt.Errorf("engine.timeframes: %w", err)
	}
	return tfs, nil
}

func ProvideTickBuffer(cfg *config.Config, m repository.Metrics) *ticks.Buffer {
	return ticks.NewBuffer(ticks.Config{
		Capacity:      cfg.Engine.BufferCapacity,
		SkewTolerance: cfg.Engine.SkewTolerance,
	}, m)
}

func ProvideResampler(cfg *config.Config, tfs []repository.Timeframe, m repository.Metrics) *candles.Resampler {
	return candles.NewResampler(candles.Config{
		Timeframes:  tfs,
		HistorySize: cfg.Engine.CandleHistory,
	}, m)
}

func ProvideBus(cfg *config.Config, m repository.Metrics) *bus.Bus {
	return bus.New(cfg.Bus.OutboxSize, m)
}

func ProvideAnalyticsEngine(cfg *config.Config, rs *candles.Resampler, m repository.Metrics, l *applogger.Logger) *analytics.Engine {
	return analytics.NewEngine(analytics.Config{
		CorrWindow:      cfg.Analytics.CorrWindow,
		CacheTTL:        cfg.Analytics.CacheTTL,
		MaxMedianWindow: cfg.Analytics.MaxMedianWindow,
		KalmanDelta:     cfg.Analytics.KalmanDelta,
		KalmanObsVar:    cfg.Analytics.KalmanObsVar,
		StateTTL:        cfg.Analytics.StateTTL,
	}, rs, m, l)
}

// ProvideAnalyticsDefaults resolves the query defaults shared by the HTTP
// surface and alert rules.
func ProvideAnalyticsDefaults(cfg *config.Config, tfs []repository.Timeframe) (usecase.AnalyticsDefaults, error) {
	tf, err := repository.ParseTimeframe(cfg.Alerts.DefaultTimeframe)
	if err != nil {
		return usecase.AnalyticsDefaults{}, fmt.Errorf("alerts.default_timeframe: %w", err)
	}
	if !slices.Contains(tfs, tf) {
		return usecase.AnalyticsDefaults{}, fmt.Errorf("alerts.default_timeframe %s is not in engine.timeframes", tf)
	}
	est, err := models.ParseEstimator(cfg.Analytics.DefaultEstimator)
	if err != nil {
		return usecase.AnalyticsDefaults{}, fmt.Errorf("analytics.default_estimator: %w", err)
	}
	return usecase.AnalyticsDefaults{Timeframe: tf, Window: cfg.Analytics.DefaultWindow, Estimator: est, Timeframes: tfs}, nil
}

// ProvideAlertEngine builds the engine and fans its events out on the bus.
func ProvideAlertEngine(
	cfg *config.Config,
	d usecase.AnalyticsDefaults,
	eng *analytics.Engine,
	buf *ticks.Buffer,
	b *bus.Bus,
	m repository.Metrics,
	l *applogger.Logger,
) *alerts.Engine {
	ae := alerts.NewEngine(alerts.Config{
		Interval:         cfg.Alerts.Interval,
		EdgeTriggered:    cfg.Alerts.EdgeTriggered,
		HistorySize:      cfg.Alerts.HistorySize,
		DefaultTimeframe: d.Timeframe,
		DefaultWindow:    d.Window,
		DefaultEstimator: d.Estimator,
		Timeframes:       d.Timeframes,
	}, eng, buf, m, l)
	ae.OnAlert(func(ev models.AlertEvent) {
		b.Publish(bus.TopicAlert, ev)
	})
	return ae
}

// ProvideClickHouseClient connects only when the archive uses ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Archive.Backend != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(context.Background(),
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideTickStorage binds the tick table and creates it if missing.
func ProvideTickStorage(ch *pkgch.Client, cfg *config.Config) (repository.Storage, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseStorage(
		ch.DB(),
		cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table,
		cfg.Ingest.Source,
		pkgch.TicksSchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table, cfg.ClickHouse.TTLDays),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a producer when ticks are archived to Kafka.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if cfg.Archive.Backend != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideTickArchiver returns nil when archiving is off.
func ProvideTickArchiver(
	cfg *config.Config,
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.TickArchiver, error) {
	if cfg.Archive.Backend == "none" {
		return nil, nil
	}
	return usecase.NewTickArchiver(usecase.ArchiverConfig{
		Backend:      cfg.Archive.Backend,
		BatchSize:    cfg.Archive.BatchSize,
		BatchTimeout: cfg.Archive.BatchTimeout,
		QueueSize:    cfg.Archive.QueueSize,
	}, pub, store, m, l)
}

func ProvideIngestor(
	buf *ticks.Buffer,
	rs *candles.Resampler,
	b *bus.Bus,
	archiver *usecase.TickArchiver,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Ingestor {
	var sink repository.TickSink
	if archiver != nil {
		sink = archiver
	}
	return usecase.NewIngestor(buf, rs, b, sink, m, l)
}

// ProvideMarketStream creates the Binance trade stream.
func ProvideMarketStream(cfg *config.Config, l *applogger.Logger) repository.MarketStream {
	if cfg.Ingest.Source != "binance" {
		return nil
	}
	return binance.New(
		cfg.Binance.WebSocketURL,
		cfg.Ingest.Symbols,
		cfg.Binance.ReconnectDelay,
		cfg.Binance.PingInterval,
		l,
	)
}

// ProvideTickCollector puts the rate-limiting pipeline between the stream
// and ingestion.
func ProvideTickCollector(
	cfg *config.Config,
	stream repository.MarketStream,
	ing *usecase.Ingestor,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.TickCollector {
	if stream == nil {
		return nil
	}
	// throttle windows are keyed by the canonical symbol
	pipe := mid.NewRealtimePipeline(ing, m,
		mid.WithTransform(func(t models.Tick) models.Tick {
			t.Symbol = models.NormalizeSymbol(t.Symbol)
			return t
		}),
		mid.WithMaxRPS(cfg.Ingest.MaxRPS),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
	)
	return usecase.NewTickCollector(stream, pipe, m, l)
}

// ProvideKafkaConsumer creates a consumer when ticks are read from Kafka.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Ingest.Source != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.HookFuncs{
		After: func(_ context.Context, topic string, _ kafka.Message, err error) {
			if err != nil {
				m.RecordError("kafka_handle")
			}
		},
	})
	return consumer, nil
}

func ProvideKafkaTicksHandler(cfg *config.Config, consumer *pkgkafka.Consumer, ing *usecase.Ingestor, m repository.Metrics) *usecase.KafkaTicksHandler {
	if consumer == nil {
		return nil
	}
	return usecase.NewKafkaTicksHandler(cfg.Kafka.Topic, ing, m)
}

func ProvideWarmStarter(cfg *config.Config, store repository.Storage, ing *usecase.Ingestor, l *applogger.Logger) *usecase.WarmStarter {
	if !cfg.WarmStart.Enabled || store == nil {
		return nil
	}
	return usecase.NewWarmStarter(store, ing, cfg.Ingest.Symbols, cfg.WarmStart.Lookback, cfg.WarmStart.Limit, l)
}

// ProvideRedisCache connects only if a feature needs Redis. The queue and
// the rate limiter share its client.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Alerts.Forward && !cfg.Log.Collect && cfg.Server.RateLimit.Backend != "redis" {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(10, 2, 5*time.Second),
		cache.WithRedisPrefix(cfg.Redis.CachePrefix),
	)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func ProvideRedisClient(rc *cache.RedisCache) *redis.Client {
	if rc == nil {
		return nil
	}
	return rc.Client()
}

func ProvideRedisQueue(cfg *config.Config, client *redis.Client, l *applogger.Logger) *queue.RedisQueue {
	if client == nil || (!cfg.Alerts.Forward && !cfg.Log.Collect) {
		return nil
	}
	return queue.NewRedisQueue(l, client,
		queue.WithKeyPrefix(cfg.Redis.Prefix),
		queue.WithMaxLen(100000),
	)
}

func ProvideAlertForwarder(cfg *config.Config, b *bus.Bus, q *queue.RedisQueue, m repository.Metrics, l *applogger.Logger) *usecase.AlertForwarder {
	if !cfg.Alerts.Forward || q == nil {
		return nil
	}
	return usecase.NewAlertForwarder(b, q, cfg.Alerts.ForwardTopic, m, l)
}

// ProvideLocalLimiter is nil when counters live in Redis.
func ProvideLocalLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.Server.RateLimit.Backend != "local" {
		return nil
	}
	return ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.Refill)
}

func ProvideRateLimiter(cfg *config.Config, local *ratelimit.Limiter, rc *cache.RedisCache, l *applogger.Logger) ratelimit.Allower {
	if local != nil {
		return local
	}
	return ratelimit.NewWindowLimiter(rc, cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.Window, l)
}

func ProvideEndpointMetrics(reg *prometheus.Registry) *svcmetrics.EndpointMetrics {
	return svcmetrics.NewEndpointMetrics(reg)
}

func ProvideMarketDataUseCase(buf *ticks.Buffer, rs *candles.Resampler) *usecase.MarketDataUseCase {
	return usecase.NewMarketDataUseCase(buf, rs)
}

func ProvidePairAnalyticsUseCase(eng *analytics.Engine, d usecase.AnalyticsDefaults) *usecase.PairAnalyticsUseCase {
	return usecase.NewPairAnalyticsUseCase(eng, d)
}

// ProvideHealthChecks lists the dependencies /readyz checks.
func ProvideHealthChecks(collector *usecase.TickCollector, ch *pkgch.Client, client *redis.Client) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{}
	if collector != nil {
		checks["stream"] = func(context.Context) error {
			if !collector.IsConnected() {
				return fmt.Errorf("upstream stream disconnected")
			}
			return nil
		}
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

// ProvideHandlers lists every route group the HTTP server mounts.
func ProvideHandlers(
	l *applogger.Logger,
	market *usecase.MarketDataUseCase,
	pairs *usecase.PairAnalyticsUseCase,
	rl ratelimit.Allower,
	em *svcmetrics.EndpointMetrics,
	ae *alerts.Engine,
	b *bus.Bus,
	checks map[string]api.HealthCheck,
) []xhttp.Handler {
	hl := l.With("component", "http")
	return []xhttp.Handler{
		api.NewHealthHandler(checks),
		api.NewMarketHandler(hl, market),
		api.NewAnalyticsHandler(hl, pairs, rl, em),
		api.NewAlertsHandler(hl, ae),
		ws.NewStreamHandler(l, b),
	}
}

func ProvideHTTPServer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, reg, cfg.Metrics.Path))
	}
	return xhttp.NewServer(opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	handlers []xhttp.Handler,
	ae *alerts.Engine,
	eng *analytics.Engine,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	archiver *usecase.TickArchiver,
	warm *usecase.WarmStarter,
	fwd *usecase.AlertForwarder,
	q *queue.RedisQueue,
	limiter *ratelimit.Limiter,
	ch *pkgch.Client,
	client *redis.Client,
) *server.App {
	return server.New(server.Deps{
		Config:     cfg,
		Logger:     l,
		HTTPServer: srv,
		Handlers:   handlers,
		Alerts:     ae,
		Analytics:  eng,
		Collector:  collector,
		Consumer:   consumer,
		KafkaSrc:   kh,
		Archiver:   archiver,
		WarmStart:  warm,
		Forwarder:  fwd,
		Queue:      q,
		Limiter:    limiter,
		ClickHouse: ch,
		Redis:      client,
	})
}
