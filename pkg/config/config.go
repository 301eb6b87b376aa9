package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FINSIGHT_SERVER_PORT.
const EnvPrefix = "FINSIGHT"

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		HealthPath      string        `yaml:"health_path" default:"/healthz"`
	} `yaml:"server"`
	Logging struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"json"`
		SentryDSN string `yaml:"sentry_dsn"`
		Collector struct {
			Enabled       bool          `yaml:"enabled"`
			FlushInterval time.Duration `yaml:"flush_interval" default:"1m"`
			Topic         string        `yaml:"topic" default:"log_digest"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled       bool          `yaml:"enabled"`
		Path          string        `yaml:"path" default:"/metrics"`
		SlowThreshold time.Duration `yaml:"slow_threshold" default:"2s"`
	} `yaml:"metrics"`
	Forecast struct {
		ModelBackend        string  `yaml:"model_backend" default:"file"`
		ModelDir            string  `yaml:"model_dir" default:"models"`
		HistoryDays         int     `yaml:"history_days" default:"365"`
		TrainingHistoryDays int     `yaml:"training_history_days" default:"1825"`
		PredictionDays      int     `yaml:"prediction_days" default:"30"`
		SplitRatio          float64 `yaml:"split_ratio" default:"0.8"`
		RandomSeed          int64   `yaml:"random_seed" default:"42"`
		Trees               int     `yaml:"trees" default:"100"`
		MaxDepth            int     `yaml:"max_depth" default:"20"`
		Workers             int     `yaml:"workers"`
		AutoTrain           bool    `yaml:"auto_train"`
	} `yaml:"forecast"`
	Recommend struct {
		CacheTTL    time.Duration `yaml:"cache_ttl" default:"5m"`
		HistoryDays int           `yaml:"history_days" default:"365"`
		Publish     bool          `yaml:"publish"`
	} `yaml:"recommend"`
	Feed struct {
		BaseURL        string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		RatePerSecond  float64       `yaml:"rate_per_second" default:"2"`
		Burst          int           `yaml:"burst" default:"4"`
		Timeout        time.Duration `yaml:"timeout" default:"15s"`
		Retries        int           `yaml:"retries" default:"2"`
		RetryBackoff   time.Duration `yaml:"retry_backoff" default:"500ms"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"feed"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"finsight"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled              bool     `yaml:"enabled"`
		Brokers              []string `yaml:"brokers"`
		BarsTopic            string   `yaml:"bars_topic" default:"bars.daily"`
		RecommendationsTopic string   `yaml:"recommendations_topic" default:"recommendations"`
		RequiredAcks         int      `yaml:"required_acks" default:"-1"`
		Compression          string   `yaml:"compression" default:"gzip"`
		Producer             struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"finsight-bars"`
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
	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		Timeout      time.Duration `yaml:"timeout" default:"3s"`
		Prefix       string        `yaml:"prefix" default:"finsight:"`
		ModelTTL     time.Duration `yaml:"model_ttl"`
	} `yaml:"redis"`
	Queue struct {
		Enabled       bool          `yaml:"enabled"`
		Workers       int           `yaml:"workers" default:"2"`
		MaxRetries    int           `yaml:"max_retries" default:"3"`
		RetryDelay    time.Duration `yaml:"retry_delay" default:"30s"`
		PollTimeout   time.Duration `yaml:"poll_timeout" default:"5s"`
		JobTimeout    time.Duration `yaml:"job_timeout" default:"10m"`
		RetryInterval time.Duration `yaml:"retry_interval" default:"10s"`
	} `yaml:"queue"`
	Explainer struct {
		Enabled  bool          `yaml:"enabled"`
		URL      string        `yaml:"url"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
		Attempts int           `yaml:"attempts" default:"2"`
	} `yaml:"explainer"`
	RateLimit struct {
		TrainPerMinute     float64 `yaml:"train_per_minute" default:"6"`
		PortfolioPerMinute float64 `yaml:"portfolio_per_minute" default:"30"`
	} `yaml:"rate_limit"`
}

// Load reads a YAML configuration file and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// EnvOverrides lists the settings deployments override through FINSIGHT_*
// variables. Zero values leave the file configuration untouched.
type EnvOverrides struct {
	Environment        string        `envconfig:"ENVIRONMENT"`
	ServerPort         int           `envconfig:"SERVER_PORT"`
	LogLevel           string        `envconfig:"LOG_LEVEL"`
	SentryDSN          string        `envconfig:"SENTRY_DSN"`
	FeedBaseURL        string        `envconfig:"FEED_BASE_URL"`
	FeedAPIKey         string        `envconfig:"FEED_API_KEY"`
	FeedWebSocketURL   string        `envconfig:"FEED_WEBSOCKET_URL"`
	FeedSymbols        []string      `envconfig:"FEED_SYMBOLS"`
	ModelDir           string        `envconfig:"FORECAST_MODEL_DIR"`
	PredictionDays     int           `envconfig:"FORECAST_PREDICTION_DAYS"`
	CacheTTL           time.Duration `envconfig:"RECOMMEND_CACHE_TTL"`
	KafkaBrokers       []string      `envconfig:"KAFKA_BROKERS"`
	ClickHouseHost     string        `envconfig:"CLICKHOUSE_HOST"`
	ClickHousePassword string        `envconfig:"CLICKHOUSE_PASSWORD"`
	RedisHost          string        `envconfig:"REDIS_HOST"`
	RedisPassword      string        `envconfig:"REDIS_PASSWORD"`
	ExplainerURL       string        `envconfig:"EXPLAINER_URL"`
}

// LoadWithEnv loads config from YAML, then a .env file if present, then applies
// FINSIGHT_* environment overrides (FINSIGHT_FEED_API_KEY,
// FINSIGHT_KAFKA_BROKERS=a:9092,b:9092, ...). An empty path skips the file and
// starts from defaults.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c *Config
	if path == "" {
		c = &Config{}
		if err := defaults.Set(c); err != nil {
			return nil, fmt.Errorf("config defaults: %w", err)
		}
	} else {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	}

	var env EnvOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	c.apply(env)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) apply(env EnvOverrides) {
	setString(&c.Environment, env.Environment)
	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Logging.SentryDSN, env.SentryDSN)
	setString(&c.Feed.BaseURL, env.FeedBaseURL)
	setString(&c.Feed.APIKey, env.FeedAPIKey)
	setString(&c.Feed.WebSocketURL, env.FeedWebSocketURL)
	setString(&c.Forecast.ModelDir, env.ModelDir)
	setString(&c.ClickHouse.Host, env.ClickHouseHost)
	setString(&c.ClickHouse.Password, env.ClickHousePassword)
	setString(&c.Redis.Host, env.RedisHost)
	setString(&c.Redis.Password, env.RedisPassword)
	setString(&c.Explainer.URL, env.ExplainerURL)
	if env.ServerPort > 0 {
		c.Server.Port = env.ServerPort
	}
	if env.PredictionDays > 0 {
		c.Forecast.PredictionDays = env.PredictionDays
	}
	if env.CacheTTL > 0 {
		c.Recommend.CacheTTL = env.CacheTTL
	}
	if len(env.FeedSymbols) > 0 {
		c.Feed.Symbols = env.FeedSymbols
	}
	if len(env.KafkaBrokers) > 0 {
		c.Kafka.Brokers = env.KafkaBrokers
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Forecast.ModelBackend {
	case "file":
		if c.Forecast.ModelDir == "" {
			return fmt.Errorf("forecast.model_dir is required for the file backend")
		}
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("forecast.model_backend 'redis' needs redis.enabled")
		}
	default:
		return fmt.Errorf("forecast.model_backend must be 'file' or 'redis', got '%s'", c.Forecast.ModelBackend)
	}
	if c.Forecast.SplitRatio <= 0 || c.Forecast.SplitRatio >= 1 {
		return fmt.Errorf("forecast.split_ratio must be in (0,1), got %v", c.Forecast.SplitRatio)
	}
	if c.Forecast.Trees <= 0 {
		return fmt.Errorf("forecast.trees must be positive")
	}
	if c.Forecast.PredictionDays < 1 || c.Forecast.PredictionDays > 90 {
		return fmt.Errorf("forecast.prediction_days must be in [1,90], got %d", c.Forecast.PredictionDays)
	}
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue.enabled needs redis.enabled")
	}
	if c.Explainer.Enabled && c.Explainer.URL == "" {
		return fmt.Errorf("explainer.url is required when the explainer is enabled")
	}
	return nil
}
