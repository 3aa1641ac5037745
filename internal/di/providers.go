package di

import (
	"context"
	"fmt"
	"time"

	drepo "FinPulse/internal/domain/repository"
	dsvc "FinPulse/internal/domain/service"
	"FinPulse/internal/handler/api"
	"FinPulse/internal/handler/ws"
	mid "FinPulse/internal/middleware"
	internalrepo "FinPulse/internal/repository"
	"FinPulse/internal/service/finnhub"
	apimetrics "FinPulse/internal/service/metrics"
	"FinPulse/internal/service/ratelimit"
	"FinPulse/internal/services/llm"
	"FinPulse/internal/usecase"
	"FinPulse/pkg/cache"
	pkgch "FinPulse/pkg/clickhouse"
	"FinPulse/pkg/config"
	xhttp "FinPulse/pkg/http"
	pkgkafka "FinPulse/pkg/kafka"
	"FinPulse/pkg/logger"
	"FinPulse/pkg/metrics"
	"FinPulse/pkg/natsx"
	"FinPulse/pkg/scheduler"
	"FinPulse/pkg/server"

	"github.com/segmentio/kafka-go"
)

// ProvideLogger builds the root logger from the log section. With log.ship_errors
// set, error digests go to Kafka; component loggers derived later share the collector.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.ShipErrors && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.ShipInterval,
			CountThreshold: cfg.Log.ShipThreshold,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder and registers the API collectors.
func ProvideMetrics() drepo.Metrics {
	apimetrics.Register()
	return metrics.New()
}

func ProvideSnapshotStore(cfg *config.Config) *internalrepo.SnapshotStore {
	return internalrepo.NewSnapshotStore(cfg.Store.Capacity)
}

// ProvideProfileCache keeps company profiles in memory, layered over Redis when enabled.
func ProvideProfileCache(cfg *config.Config, log *logger.Logger) (cache.Service, error) {
	if !cfg.Cache.Redis.Enabled {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxItems),
			cache.WithMemoryCleanup(time.Minute),
		), nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Cache.Redis.Host),
		cache.WithRedisPort(cfg.Cache.Redis.Port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		cache.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.MinIdleConns, cfg.Cache.Redis.PoolTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("profile cache: %w", err)
	}
	log.Info("profile cache backed by redis",
		logger.String("host", cfg.Cache.Redis.Host),
		logger.Int("port", cfg.Cache.Redis.Port),
	)
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxItems),
		cache.WithLayeredMemoryTTL(10*time.Minute),
	), nil
}

// ProvideMarketData creates the Finnhub REST client.
func ProvideMarketData(cfg *config.Config, profiles cache.Service) drepo.MarketData {
	return finnhub.New(cfg.Finnhub.APIKey,
		finnhub.WithBaseURL(cfg.Finnhub.BaseURL),
		finnhub.WithSymbolSuffix(cfg.Finnhub.SymbolSuffix),
		finnhub.WithTimeout(cfg.Fetcher.RequestTimeout),
		finnhub.WithProfileCache(profiles, cfg.Finnhub.ProfileTTL),
	)
}

func ProvideSnapshotFetcher(cfg *config.Config, md drepo.MarketData, log *logger.Logger) *usecase.SnapshotFetcher {
	return usecase.NewSnapshotFetcher(md,
		usecase.WithRetry(cfg.Fetcher.MaxAttempts, cfg.Fetcher.BaseDelay),
		usecase.WithRequestTimeout(cfg.Fetcher.RequestTimeout),
		usecase.WithLookback(cfg.Fetcher.LookbackDays, cfg.Fetcher.WidenedLookbackDays),
		usecase.WithProfileEnrichment(true),
		usecase.WithFetcherLogger(log.With(logger.String("component", "fetcher"))),
	)
}

// ProvideEmbedder selects the remote or the local hashing embedder.
func ProvideEmbedder(cfg *config.Config) dsvc.Embedder {
	if cfg.Embedding.Provider == "http" {
		return llm.NewHTTPEmbedder(cfg.Embedding.URL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimension, cfg.Embedding.Timeout)
	}
	return llm.NewHashEmbedder(cfg.Embedding.Dimension)
}

// ProvideGenerator returns nil when generation is disabled; the engine then stays offline.
func ProvideGenerator(cfg *config.Config) dsvc.Generator {
	if !cfg.Generative.Enabled {
		return nil
	}
	return llm.NewChatGenerator(
		cfg.Generative.BaseURL,
		cfg.Generative.APIKey,
		cfg.Generative.Model,
		cfg.Generative.Temperature,
		cfg.Generative.MaxTokens,
		cfg.Generative.Timeout,
	)
}

func ProvideQueryEngine(
	cfg *config.Config,
	store *internalrepo.SnapshotStore,
	embedder dsvc.Embedder,
	generator dsvc.Generator,
	m drepo.Metrics,
	log *logger.Logger,
) *usecase.QueryEngine {
	return usecase.NewQueryEngine(store, embedder, generator, m,
		usecase.WithTopK(cfg.Query.TopK),
		usecase.WithMaxTokens(cfg.Generative.MaxTokens),
		usecase.WithGenerationTimeout(cfg.Generative.Timeout),
		usecase.WithQueryEmbedTimeout(cfg.Embedding.Timeout),
		usecase.WithFailureLimit(max(cfg.Generative.FailureLimit, 0)),
		usecase.WithQueryLogger(log.With(logger.String("component", "query"))),
	)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when nothing publishes to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithTopic(cfg.Kafka.Topic),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideNATSClient connects to NATS JetStream when it is the configured sink.
func ProvideNATSClient(cfg *config.Config, log *logger.Logger) (*natsx.Client, error) {
	if cfg.Sink.Type != "nats" {
		return nil, nil
	}
	c, err := natsx.Connect(cfg.NATS.URL, log.With(logger.String("component", "nats")))
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	return c, nil
}

// ProvideClickHouseClient creates a ClickHouse client when the sink or the archive needs one.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouseEnabled() {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, true),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

func newClickHouseStorage(ctx context.Context, cfg *config.Config, ch *pkgch.Client) (*internalrepo.ClickHouseSnapshotStorage, error) {
	store, err := internalrepo.NewClickHouseSnapshotStorage(ch, cfg.ClickHouse.Database, cfg.ClickHouse.Table, cfg.ClickHouse.TTLDays)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideSnapshotSink selects the publication sink from sink.type. It returns nil for "none".
func ProvideSnapshotSink(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	nc *natsx.Client,
	ch *pkgch.Client,
) (drepo.SnapshotSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Sink.Type {
	case "kafka":
		return internalrepo.NewKafkaSnapshotPublisher(producer), nil
	case "nats":
		pub := internalrepo.NewNATSSnapshotPublisher(nc, cfg.NATS.Stream, cfg.NATS.SubjectPrefix, cfg.NATS.MaxAge)
		if err := pub.Init(ctx); err != nil {
			return nil, fmt.Errorf("nats stream: %w", err)
		}
		return pub, nil
	case "clickhouse":
		store, err := newClickHouseStorage(ctx, cfg, ch)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}

// ProvideSnapshotArchive returns the ClickHouse archive fed by the Kafka consumer, or nil.
func ProvideSnapshotArchive(cfg *config.Config, ch *pkgch.Client) (drepo.SnapshotArchive, error) {
	if !cfg.Kafka.Archive {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := newClickHouseStorage(ctx, cfg, ch)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// ProvidePipeline builds the publication pipeline in front of the sink, or nil without a sink.
func ProvidePipeline(cfg *config.Config, sink drepo.SnapshotSink, m drepo.Metrics, log *logger.Logger) *mid.SnapshotPipeline {
	if sink == nil {
		return nil
	}
	return mid.NewSnapshotPipeline(sink, m,
		mid.WithBufferSize(cfg.Sink.BufferSize),
		mid.WithMaxAttempts(cfg.Sink.MaxAttempts),
		mid.WithBackoff(cfg.Sink.BackoffMin, cfg.Sink.BackoffMax),
		mid.WithPublishTimeout(cfg.Sink.PublishTimeout),
		mid.WithMinInterval(cfg.Sink.MinInterval),
		mid.WithPipelineLogger(log.With(logger.String("component", "pipeline"), logger.String("sink", cfg.Sink.Type))),
	)
}

func ProvideHub(cfg *config.Config, m drepo.Metrics, log *logger.Logger) *ws.Hub {
	return ws.NewHub(log.With(logger.String("component", "ws")), m,
		ws.WithSendBuffer(cfg.Ingestion.ObserverBuffer),
		ws.WithKeepalive(cfg.Server.WSPongWait),
		ws.WithUniverse(cfg.Universe.Symbols),
	)
}

// ProvideIngestionLoop creates the single store writer and attaches its observers.
func ProvideIngestionLoop(
	cfg *config.Config,
	fetcher *usecase.SnapshotFetcher,
	store *internalrepo.SnapshotStore,
	embedder dsvc.Embedder,
	m drepo.Metrics,
	hub *ws.Hub,
	pipeline *mid.SnapshotPipeline,
	log *logger.Logger,
) *usecase.IngestionLoop {
	observers := []drepo.SnapshotObserver{hub}
	if pipeline != nil {
		observers = append(observers, pipeline)
	}

	universe := usecase.NewUniverse(cfg.Universe.Symbols, cfg.Universe.Names, cfg.Universe.ReferencePrices)
	return usecase.NewIngestionLoop(universe, fetcher, store, embedder, m, cfg.Ingestion.SyntheticWalkPct,
		usecase.WithInterval(cfg.Ingestion.Interval),
		usecase.WithPacing(cfg.Ingestion.PacingMin, cfg.Ingestion.PacingMax),
		usecase.WithCooldown(cfg.Ingestion.FailureRatio, cfg.Ingestion.Cooldown),
		usecase.WithEmbedTimeout(cfg.Ingestion.EmbedTimeout),
		usecase.WithSyntheticOnly(cfg.Ingestion.SyntheticOnly),
		usecase.WithObservers(observers...),
		usecase.WithLoopLogger(log.With(logger.String("component", "ingestion"))),
	)
}

func ProvideMarketViews(
	cfg *config.Config,
	store *internalrepo.SnapshotStore,
	loop *usecase.IngestionLoop,
	engine *usecase.QueryEngine,
) *usecase.MarketViews {
	return usecase.NewMarketViews(store,
		usecase.WithAlertRule(cfg.Store.AlertWindow, cfg.Store.AlertThreshold),
		usecase.WithAnalyticsWindow(cfg.Store.AnalyticsWindow),
		usecase.WithHealthSources(loop, engine),
	)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Query.RateCapacity, cfg.Query.RateRefill)
}

func ProvideMarketHandler(
	cfg *config.Config,
	log *logger.Logger,
	views *usecase.MarketViews,
	engine *usecase.QueryEngine,
	loop *usecase.IngestionLoop,
	limiter *ratelimit.Limiter,
) *api.MarketEchoHandler {
	return api.NewMarketEchoHandler(log.With(logger.String("component", "api")), views, engine, loop, limiter, cfg.Server.AdminToken)
}

// ProvideHTTPServer creates the Echo server serving the REST API, the WebSocket stream and /metrics.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, market *api.MarketEchoHandler, hub *ws.Hub) *xhttp.Server {
	return xhttp.NewServer([]xhttp.Handler{market, hub},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(cfg.Metrics.Path),
		xhttp.WithCORS(!cfg.Server.DisableCORS),
		xhttp.WithLogger(log.With(logger.String("component", "http"))),
	)
}

// ProvideKafkaConsumer creates the archive consumer group, or nil when archiving is off.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger, m drepo.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Archive {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log.With(logger.String("component", "archive")),
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
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, _ error) {
			m.RecordError("archive_dlq")
		},
	})
	return consumer, nil
}

// ProvideSnapshotArchiver returns the consumer handler writing into the archive, or nil.
func ProvideSnapshotArchiver(cfg *config.Config, archive drepo.SnapshotArchive, m drepo.Metrics) pkgkafka.MessageHandler {
	if archive == nil {
		return nil
	}
	return usecase.NewSnapshotArchiver(cfg.Kafka.Topic, archive, m, usecase.RealClock{})
}

func ProvideScheduler(log *logger.Logger) *scheduler.Scheduler {
	return scheduler.New(log.With(logger.String("component", "scheduler")))
}

func ProvideHeartbeatJob(views *usecase.MarketViews, m drepo.Metrics, log *logger.Logger) *usecase.HeartbeatJob {
	return usecase.NewHeartbeatJob(views, m, log.With(logger.String("component", "heartbeat")))
}

// ProvideClosers lists the infrastructure clients App releases on shutdown, in open order.
func ProvideClosers(
	profiles cache.Service,
	producer *pkgkafka.Producer,
	nc *natsx.Client,
	ch *pkgch.Client,
) []server.Closer {
	closers := []server.Closer{{Name: "profile_cache", Close: profiles.Close}}
	if producer != nil {
		closers = append(closers, server.Closer{Name: "kafka_producer", Close: producer.Close})
	}
	if nc != nil {
		closers = append(closers, server.Closer{Name: "nats", Close: nc.Close})
	}
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	return closers
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	loop *usecase.IngestionLoop,
	engine *usecase.QueryEngine,
	pipeline *mid.SnapshotPipeline,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	archiver pkgkafka.MessageHandler,
	sched *scheduler.Scheduler,
	heartbeat *usecase.HeartbeatJob,
	httpServer *xhttp.Server,
	closers []server.Closer,
) *server.App {
	return server.New(cfg, log, server.Components{
		Loop:      loop,
		Engine:    engine,
		Pipeline:  pipeline,
		Hub:       hub,
		Consumer:  consumer,
		Archiver:  archiver,
		Scheduler: sched,
		Heartbeat: heartbeat,
		HTTP:      httpServer,
		Closers:   closers,
	})
}
