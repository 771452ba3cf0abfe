package config

import (
	"fmt"
	"os"
	"time"

	"PairPulse/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		// Collect aggregates error logs and ships them through the Redis queue.
		Collect         bool          `yaml:"collect"`
		CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
		CollectTopic    string        `yaml:"collect_topic" default:"pairpulse.logs"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
		// RateLimit guards the analytics endpoints. The local backend is a
		// token bucket per client; redis counts fixed windows shared by replicas.
		RateLimit struct {
			Backend  string        `yaml:"backend" default:"local" validate:"oneof=local redis"`
			Capacity int           `yaml:"capacity" default:"20"`
			Refill   float64       `yaml:"refill_per_sec" default:"10"`
			Window   time.Duration `yaml:"window" default:"1s"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Engine struct {
		BufferCapacity int           `yaml:"buffer_capacity" default:"10000" validate:"min=1"`
		SkewTolerance  time.Duration `yaml:"skew_tolerance" default:"2s"`
		Timeframes     []string      `yaml:"timeframes" default:"[\"1s\",\"1m\",\"5m\"]" validate:"min=1"`
		CandleHistory  int           `yaml:"candle_history" default:"2000" validate:"min=1"`
	} `yaml:"engine"`
	Analytics struct {
		DefaultWindow    int           `yaml:"default_window" default:"60" validate:"min=2"`
		DefaultEstimator string        `yaml:"default_estimator" default:"ols" validate:"oneof=ols huber theil_sen kalman"`
		CorrWindow       int           `yaml:"corr_window"`
		CacheTTL         time.Duration `yaml:"cache_ttl" default:"2s"`
		MaxMedianWindow  int           `yaml:"max_median_window" default:"500" validate:"min=2"`
		KalmanDelta      float64       `yaml:"kalman_delta" default:"0.0001" validate:"gt=0,lt=1"`
		KalmanObsVar     float64       `yaml:"kalman_obs_var" default:"0.001" validate:"gt=0"`
		StateTTL         time.Duration `yaml:"state_ttl" default:"15m"`
	} `yaml:"analytics"`
	Alerts struct {
		Interval         time.Duration `yaml:"interval" default:"500ms"`
		EdgeTriggered    bool          `yaml:"edge_triggered"`
		HistorySize      int           `yaml:"history_size" default:"500" validate:"min=1"`
		DefaultTimeframe string        `yaml:"default_timeframe" default:"1m"`
		Forward          bool          `yaml:"forward"`
		ForwardTopic     string        `yaml:"forward_topic" default:"pairpulse.alerts"`
	} `yaml:"alerts"`
	Bus struct {
		OutboxSize int `yaml:"outbox_size" default:"256" validate:"min=1"`
	} `yaml:"bus"`
	Ingest struct {
		Source     string   `yaml:"source" default:"binance" validate:"oneof=binance kafka none"`
		Symbols    []string `yaml:"symbols"`
		MaxRPS     int      `yaml:"max_rps" default:"5000"`
		BufferSize int      `yaml:"buffer_size" default:"4096"`
	} `yaml:"ingest"`
	Archive struct {
		Backend      string        `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
		BatchSize    int           `yaml:"batch_size" default:"500" validate:"min=1"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		QueueSize    int           `yaml:"queue_size" default:"10000" validate:"min=1"`
	} `yaml:"archive"`
	WarmStart struct {
		Enabled  bool          `yaml:"enabled"`
		Lookback time.Duration `yaml:"lookback" default:"1h"`
		Limit    int           `yaml:"limit" default:"10000"`
	} `yaml:"warm_start"`
	Binance struct {
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://stream.binance.com:9443"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"binance"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"pairpulse.ticks"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"500"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"pairpulse"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"1024"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"pairpulse"`
		Table            string        `yaml:"table" default:"ticks"`
		TTLDays          int           `yaml:"ttl_days" default:"30"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"pairpulse:queue"`
		// CachePrefix namespaces rate limit counters.
		CachePrefix string `yaml:"cache_prefix" default:"pairpulse:cache"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Load reads a YAML file, fills unset fields from their `default` tags and
// validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Ingest.Symbols = util.SplitCSV(v)
	}
	if v := os.Getenv("INGEST_SOURCE"); v != "" {
		c.Ingest.Source = v
	}
	if v := os.Getenv("ARCHIVE_BACKEND"); v != "" {
		c.Archive.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for _, tf := range c.Engine.Timeframes {
		if _, err := time.ParseDuration(tf); err != nil {
			return fmt.Errorf("engine.timeframes: invalid timeframe %q", tf)
		}
	}
	if c.Ingest.Source != "none" && len(c.Ingest.Symbols) == 0 {
		return fmt.Errorf("ingest.symbols cannot be empty when ingest.source is %q", c.Ingest.Source)
	}
	if (c.Ingest.Source == "kafka" || c.Archive.Backend == "kafka") && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is used")
	}
	if c.Ingest.Source == "kafka" && c.Archive.Backend == "kafka" {
		return fmt.Errorf("archive.backend 'kafka' would re-publish the ingest topic")
	}
	if c.WarmStart.Enabled && c.Archive.Backend != "clickhouse" {
		return fmt.Errorf("warm_start requires archive.backend 'clickhouse', got '%s'", c.Archive.Backend)
	}
	if c.Alerts.Interval <= 0 {
		return fmt.Errorf("alerts.interval must be positive")
	}
	if c.Server.RateLimit.Backend == "redis" && c.Server.RateLimit.Window <= 0 {
		return fmt.Errorf("server.rate_limit.window must be positive")
	}
	if c.Analytics.CacheTTL < 0 {
		return fmt.Errorf("analytics.cache_ttl cannot be negative")
	}
	return nil
}
