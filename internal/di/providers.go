package di

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"FinSight/internal/domain/repository"
	domsvc "FinSight/internal/domain/service"
	"FinSight/internal/handler/api"
	internalrepo "FinSight/internal/repository"
	"FinSight/internal/service/pricefeed"
	"FinSight/internal/services/analytics"
	"FinSight/internal/services/forecast"
	"FinSight/internal/services/indicators"
	"FinSight/internal/services/ml"
	"FinSight/internal/services/recommend"
	"FinSight/internal/usecase"
	"FinSight/pkg/cache"
	pkgch "FinSight/pkg/clickhouse"
	"FinSight/pkg/config"
	xhttp "FinSight/pkg/http"
	pkgkafka "FinSight/pkg/kafka"
	applogger "FinSight/pkg/logger"
	"FinSight/pkg/metrics"
	"FinSight/pkg/queue"
	"FinSight/pkg/server"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger. Errors go to Sentry when a DSN
// is configured.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      "stdout",
		SentryDSN:   cfg.Logging.SentryDSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(nil)
}

// ProvideRedisClient connects to Redis, or returns nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Host + ":" + strconv.Itoa(cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.Timeout,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ProvideCache layers an in-process LRU over Redis when Redis is available and
// falls back to memory only.
func ProvideCache(cfg *config.Config, client *redis.Client) cache.Service {
	if client == nil {
		return cache.NewMemoryCache(cache.WithMaxEntries(2000))
	}
	return cache.NewLayeredCache(cache.NewRedisCache(client, cfg.Redis.Prefix),
		cache.WithMaxEntries(1000),
		cache.WithL1TTL(30*time.Second),
	)
}

// ProvideClickHouseClient connects and prepares the bar schema, or returns nil
// when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.BarSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideBarStore returns the ClickHouse bar store, or nil without ClickHouse.
func ProvideBarStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) repository.BarStore {
	if ch == nil {
		return nil
	}
	s := internalrepo.NewCHBarStore(ch, cfg.ClickHouse.Database)
	s.SetLogger(l.With(applogger.String("component", "bar_store")))
	return s
}

// ProvideModelStore picks the artifact backend named by forecast.model_backend.
func ProvideModelStore(cfg *config.Config, client *redis.Client, l *applogger.Logger) (repository.ModelStore, error) {
	if cfg.Forecast.ModelBackend == "redis" {
		if client == nil {
			return nil, fmt.Errorf("model store: redis backend without a redis client")
		}
		return internalrepo.NewRedisModelStore(client, cfg.Redis.Prefix+"model:", cfg.Redis.ModelTTL), nil
	}
	s, err := internalrepo.NewFileModelStore(cfg.Forecast.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("model store: %w", err)
	}
	s.SetLogger(l)
	return s, nil
}

// ProvidePriceFeed creates the rate-limited REST market data client.
func ProvidePriceFeed(cfg *config.Config, l *applogger.Logger) *pricefeed.Client {
	c := pricefeed.NewClient(cfg.Feed.BaseURL, cfg.Feed.APIKey, xhttp.NewClient(
		xhttp.WithTimeout(cfg.Feed.Timeout),
		xhttp.WithRateLimit(cfg.Feed.RatePerSecond, cfg.Feed.Burst),
		xhttp.WithRetries(cfg.Feed.Retries, cfg.Feed.RetryBackoff),
		xhttp.WithUserAgent("finsight/1.0"),
	))
	c.SetLogger(l.With(applogger.String("component", "pricefeed")))
	return c
}

// ProvideQuoteStream creates the WebSocket quote stream, or nil when no stream
// URL or symbols are configured.
func ProvideQuoteStream(cfg *config.Config, l *applogger.Logger) *pricefeed.Stream {
	if cfg.Feed.WebSocketURL == "" || len(cfg.Feed.Symbols) == 0 {
		return nil
	}
	s := pricefeed.NewStream(cfg.Feed.APIKey, cfg.Feed.WebSocketURL, cfg.Feed.Symbols, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval)
	s.SetLogger(l.With(applogger.String("component", "quote_stream")))
	return s
}

// ProvideKafkaProducer creates the recommendations producer, or nil when Kafka
// or publishing is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled || !cfg.Recommend.Publish {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithSource("finsight-"+cfg.Environment),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRecommendationPublisher publishes to Kafka when a producer exists.
func ProvideRecommendationPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.RecommendationPublisher {
	if producer == nil {
		return internalrepo.NoopRecommendationPublisher{}
	}
	return internalrepo.NewKafkaRecommendationPublisher(producer, cfg.Kafka.RecommendationsTopic)
}

// ProvideQueue creates the Redis training queue, or nil when the queue is
// disabled. Jobs are registered by ProvideTrainUseCase.
func ProvideQueue(cfg *config.Config, l *applogger.Logger, client *redis.Client) *queue.RedisQueue {
	if !cfg.Queue.Enabled || client == nil {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:       cfg.Queue.Workers,
		RetryLimit:    cfg.Queue.MaxRetries,
		RetryDelay:    cfg.Queue.RetryDelay,
		PollTimeout:   cfg.Queue.PollTimeout,
		JobTimeout:    cfg.Queue.JobTimeout,
		RetryInterval: cfg.Queue.RetryInterval,
	}, client, queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Redis.Prefix+"queue"))
}

// AttachLogCollector ships aggregated log digests through the Redis publisher
// when logging.collector is enabled.
func AttachLogCollector(cfg *config.Config, l *applogger.Logger, client *redis.Client) {
	if !cfg.Logging.Collector.Enabled || client == nil {
		return
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval: cfg.Logging.Collector.FlushInterval,
		Topic:        cfg.Logging.Collector.Topic,
		Source:       "finsight-" + cfg.Environment,
		Publisher:    queue.NewRedisPublisher(l, client, queue.WithKeyPrefix(cfg.Redis.Prefix+"logs")),
	})
}

// ProvideHistoryUseCase wires the feed with the optional bar store and stream.
func ProvideHistoryUseCase(feed *pricefeed.Client, store repository.BarStore, stream *pricefeed.Stream, l *applogger.Logger) *usecase.HistoryUseCase {
	var qs repository.QuoteStream
	if stream != nil {
		qs = stream
	}
	uc := usecase.NewHistoryUseCase(feed, store, qs, indicators.New())
	uc.SetLogger(l)
	return uc
}

// ProvideRegistry creates the per-symbol engine registry from forecast settings.
func ProvideRegistry(cfg *config.Config, store repository.ModelStore) *forecast.Registry {
	return forecast.NewRegistry(store,
		forecast.WithSplitRatio(cfg.Forecast.SplitRatio),
		forecast.WithForestOptions(
			ml.WithTrees(cfg.Forecast.Trees),
			ml.WithMaxDepth(cfg.Forecast.MaxDepth),
			ml.WithSeed(cfg.Forecast.RandomSeed),
			ml.WithWorkers(cfg.Forecast.Workers),
		),
	)
}

func ProvideForecastUseCase(cfg *config.Config, history *usecase.HistoryUseCase, registry *forecast.Registry, locks cache.Service, m repository.Metrics, l *applogger.Logger) *usecase.ForecastUseCase {
	uc := usecase.NewForecastUseCase(history, registry, locks, m, usecase.ForecastOptions{
		HistoryDays: cfg.Forecast.HistoryDays,
		AutoTrain:   cfg.Forecast.AutoTrain,
	})
	uc.SetLogger(l)
	return uc
}

// ProvideTrainUseCase creates the training use case and registers its job on q.
func ProvideTrainUseCase(cfg *config.Config, history *usecase.HistoryUseCase, registry *forecast.Registry, locks cache.Service, q *queue.RedisQueue, m repository.Metrics, l *applogger.Logger) *usecase.TrainUseCase {
	var enq usecase.Enqueuer
	if q != nil {
		enq = q
	}
	uc := usecase.NewTrainUseCase(history, registry, locks, enq, m, cfg.Forecast.TrainingHistoryDays)
	uc.SetLogger(l.With(applogger.String("component", "train")))
	if q != nil {
		q.RegisterJob(usecase.NewTrainJob(uc))
	}
	return uc
}

// ProvideExplainer returns the HTTP explainer when enabled.
func ProvideExplainer(cfg *config.Config) domsvc.Explainer {
	if !cfg.Explainer.Enabled {
		return analytics.NoopExplainer{}
	}
	return analytics.NewHTTPExplainer(cfg)
}

func ProvideRecommendUseCase(
	cfg *config.Config,
	history *usecase.HistoryUseCase,
	registry *forecast.Registry,
	c cache.Service,
	publisher repository.RecommendationPublisher,
	explainer domsvc.Explainer,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.RecommendUseCase {
	uc := usecase.NewRecommendUseCase(history, registry, recommend.New(), usecase.RecommendConfig{
		Cache:       c,
		CacheTTL:    cfg.Recommend.CacheTTL,
		Publisher:   publisher,
		Explainer:   explainer,
		Metrics:     m,
		HistoryDays: cfg.Recommend.HistoryDays,
	})
	uc.SetLogger(l)
	return uc
}

func ProvidePortfolioUseCase(recs *usecase.RecommendUseCase, publisher repository.RecommendationPublisher, l *applogger.Logger) *usecase.PortfolioUseCase {
	uc := usecase.NewPortfolioUseCase(recs, publisher)
	uc.SetLogger(l)
	return uc
}

// ProvideKafkaConsumer consumes the bars topic into the bar store. It returns
// nil without Kafka or without a bar store to write to.
func ProvideKafkaConsumer(cfg *config.Config, store repository.BarStore, c cache.Service, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || store == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetLogger(l.With(applogger.String("component", "kafka_consumer")))

	h := usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, store, c, m)
	h.SetLogger(l)
	consumer.RegisterHandler(h)
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafkago.Message, _ []byte, err error) {
			m.RecordError("kafka_" + topic)
			l.Warn("kafka message failed",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err))
		},
	})
	return consumer, nil
}

func ProvideStocksHandler(
	cfg *config.Config,
	l *applogger.Logger,
	forecasts *usecase.ForecastUseCase,
	recs *usecase.RecommendUseCase,
	trainer *usecase.TrainUseCase,
	portfolio *usecase.PortfolioUseCase,
	history *usecase.HistoryUseCase,
) *api.StocksEchoHandler {
	return api.NewStocksEchoHandler(l, forecasts, recs, trainer, portfolio, history, api.RateLimits{
		TrainPerMinute:     cfg.RateLimit.TrainPerMinute,
		PortfolioPerMinute: cfg.RateLimit.PortfolioPerMinute,
	})
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.StocksEchoHandler, client *redis.Client, ch *pkgch.Client) *xhttp.Server {
	checks := make(map[string]xhttp.HealthCheck)
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}

	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
		xhttp.WithHealth(cfg.Server.HealthPath, checks),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, cfg.Metrics.SlowThreshold))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp assembles the lifecycle. Nil components were disabled by config
// and are skipped.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	stream *pricefeed.Stream,
	c cache.Service,
	publisher repository.RecommendationPublisher,
	ch *pkgch.Client,
	client *redis.Client,
) *server.App {
	AttachLogCollector(cfg, l, client)

	opts := []server.Option{server.WithShutdownTimeout(cfg.Server.ShutdownTimeout + 5*time.Second)}
	if q != nil {
		opts = append(opts, server.WithWorker("train_queue", q))
	}
	if consumer != nil {
		opts = append(opts, server.WithWorker("bars_consumer", consumer))
	}
	if stream != nil {
		opts = append(opts, server.WithStream(stream))
	}

	// Closers run in reverse: publisher, cache, clickhouse, redis, logger.
	opts = append(opts, server.WithCloser("logger", func() error { l.Close(); return nil }))
	if client != nil {
		opts = append(opts, server.WithCloser("redis", client.Close))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch.Close))
	}
	if closer, ok := c.(interface{ Close() error }); ok {
		opts = append(opts, server.WithCloser("cache", closer.Close))
	}
	opts = append(opts, server.WithCloser("publisher", publisher.Close))

	return server.New(l, srv, opts...)
}
