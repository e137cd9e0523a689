package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"EntryGate/internal/domain/models"
	"EntryGate/internal/domain/repository"
	"EntryGate/internal/handler/api"
	"EntryGate/internal/handler/ws"
	mid "EntryGate/internal/middleware"
	internalrepo "EntryGate/internal/repository"
	"EntryGate/internal/service/feed"
	svcmetrics "EntryGate/internal/service/metrics"
	"EntryGate/internal/service/ratelimit"
	"EntryGate/internal/services/engine"
	"EntryGate/internal/services/features"
	"EntryGate/internal/usecase"
	"EntryGate/pkg/cache"
	pkgch "EntryGate/pkg/clickhouse"
	"EntryGate/pkg/config"
	xhttp "EntryGate/pkg/http"
	pkgkafka "EntryGate/pkg/kafka"
	"EntryGate/pkg/logger"
	"EntryGate/pkg/metrics"
	pkgpg "EntryGate/pkg/postgres"
	"EntryGate/pkg/server"
)

const startupTimeout = 30 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: "entrygate",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvidePostgresClient opens the pool when the postgres backend is selected.
func ProvidePostgresClient(cfg *config.Config) (*pkgpg.Client, error) {
	if cfg.Conditions.Backend != config.BackendPostgres {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	client, err := pkgpg.NewClient(ctx,
		pkgpg.WithDSN(cfg.PostgresDSN()),
		pkgpg.WithPoolSize(cfg.Conditions.Postgres.MaxConns, 1),
		pkgpg.WithConnectTimeout(cfg.Conditions.Postgres.ConnectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	if err := client.Migrate(ctx, internalrepo.ConditionVersionsSchema); err != nil {
		client.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return client, nil
}

// ProvideConditionStore picks the storage backend for condition versions.
func ProvideConditionStore(cfg *config.Config, pg *pkgpg.Client) (repository.ConditionStore, error) {
	c := cfg.Conditions
	switch c.Backend {
	case config.BackendPostgres:
		return internalrepo.NewPostgresConditionStore(pg.Pool()), nil
	case config.BackendRedis, config.BackendLayered:
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(c.Redis.Addr),
			cache.WithRedisPassword(c.Redis.Password),
			cache.WithRedisDB(c.Redis.DB),
			cache.WithRedisPrefix(c.Redis.Prefix),
			cache.WithRedisPool(c.Redis.PoolSize, c.Redis.MinIdle, c.Redis.PoolTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		if c.Backend == config.BackendRedis {
			return internalrepo.NewCacheConditionStore(rc), nil
		}
		layered := cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(c.MemoryMaxSize),
			cache.WithLayeredBypass(internalrepo.CachePointerKeys...),
		)
		return internalrepo.NewCacheConditionStore(layered), nil
	default:
		mc := cache.NewMemoryCache(
			cache.WithMemoryMaxSize(c.MemoryMaxSize),
			cache.WithMemoryCleanup(c.MemoryCleanup),
			cache.WithMemoryPinned(internalrepo.CachePinnedPrefixes...),
		)
		return internalrepo.NewCacheConditionStore(mc), nil
	}
}

// ProvideConditionService loads the active document, seeding an empty store
// from the configured seed file.
func ProvideConditionService(cfg *config.Config, store repository.ConditionStore, l *logger.Logger) (*usecase.ConditionService, error) {
	svc := usecase.NewConditionService(store, l)
	if path := cfg.Conditions.SeedFile; path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed: %w", err)
		}
		doc, err := models.DecodeConditions(b)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", path, err)
		}
		svc.SetSeed(doc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := svc.Load(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// ProvideClickHouseClient connects when the decision audit log is enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
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

// ProvideDecisionLog creates the table and starts the batch writer.
func ProvideDecisionLog(ch *pkgch.Client, l *logger.Logger) (repository.DecisionLog, error) {
	if ch == nil {
		return nil, nil
	}
	dl := internalrepo.NewClickHouseDecisionLog(ch, l)
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := dl.Init(ctx); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return dl, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideDecisionPublisher publishes decisions keyed by symbol.
func ProvideDecisionPublisher(producer *pkgkafka.Producer, cfg *config.Config, l *logger.Logger) repository.DecisionPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionTopic, l)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
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
	consumer.SetLogger(l)
	return consumer, nil
}

func ProvideHub(l *logger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

// ProvideEvaluationLoop attaches whichever decision sinks are configured.
func ProvideEvaluationLoop(
	cfg *config.Config,
	svc *usecase.ConditionService,
	m repository.Metrics,
	l *logger.Logger,
	dl repository.DecisionLog,
	pub repository.DecisionPublisher,
	hub *ws.Hub,
) *usecase.EvaluationLoop {
	opts := []usecase.LoopOption{
		usecase.WithBroadcaster(hub),
		usecase.WithDuplicateTicks(cfg.Engine.AllowDuplicateTicks),
	}
	if dl != nil {
		opts = append(opts, usecase.WithDecisionLog(dl))
	}
	if pub != nil {
		opts = append(opts, usecase.WithPublisher(pub))
	}
	return usecase.NewEvaluationLoop(svc, features.NewDeriver(), engine.NewDefaultEngine(), m, l, opts...)
}

// ProvidePipeline builds the snapshot stage in front of the loop.
func ProvidePipeline(cfg *config.Config, loop *usecase.EvaluationLoop, m repository.Metrics) *mid.SnapshotPipeline {
	return mid.NewSnapshotPipeline(loop, m, mid.WithMaxOpenTicks(cfg.Engine.MaxOpenTicksPerSec))
}

// ProvideSnapshotHandler handles the snapshot topic.
func ProvideSnapshotHandler(cfg *config.Config, pipe *mid.SnapshotPipeline, l *logger.Logger) *usecase.KafkaSnapshotHandler {
	h := usecase.NewKafkaSnapshotHandler(cfg.Kafka.SnapshotTopic, pipe)
	h.SetLogger(l)
	return h
}

// ProvideFeed returns nil unless the websocket snapshot feed is enabled.
func ProvideFeed(cfg *config.Config, pipe *mid.SnapshotPipeline, l *logger.Logger) *feed.Client {
	if !cfg.Feed.Enabled {
		return nil
	}
	return feed.NewClient(cfg.Feed.URL, cfg.Feed.Symbols, pipe,
		feed.WithToken(cfg.Feed.Token),
		feed.WithDecoder(usecase.DecodeSnapshot),
		feed.WithPingInterval(cfg.Feed.PingInterval),
		feed.WithReconnectDelay(cfg.Feed.ReconnectMin, cfg.Feed.ReconnectMax),
		feed.WithLogger(l),
	)
}

func ProvideWriteLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.WriteRateLimit, cfg.Server.WriteBurst)
}

// ProvideHTTPHandler groups every route set served by the app.
func ProvideHTTPHandler(
	l *logger.Logger,
	svc *usecase.ConditionService,
	loop *usecase.EvaluationLoop,
	hub *ws.Hub,
	limiter *ratelimit.Limiter,
) xhttp.Handler {
	return xhttp.Handlers{
		api.NewConditionsEchoHandler(l, svc, limiter),
		api.NewEvaluateEchoHandler(l, loop),
		hub,
	}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	svc *usecase.ConditionService,
	store repository.ConditionStore,
	pipe *mid.SnapshotPipeline,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSnapshotHandler,
	fc *feed.Client,
	producer *pkgkafka.Producer,
	dl repository.DecisionLog,
	pub repository.DecisionPublisher,
	hub *ws.Hub,
	limiter *ratelimit.Limiter,
	handler xhttp.Handler,
	pg *pkgpg.Client,
	ch *pkgch.Client,
) *server.App {
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Service:        "entrygate",
			IncludeWarn:    cfg.Log.Collector.IncludeWarn,
			Publisher:      producer,
		})
	}
	if consumer != nil {
		consumer.RegisterHandler(kh)
	}
	return server.New(cfg, l, server.Components{
		Conditions: svc,
		Store:      store,
		Pipeline:   pipe,
		Consumer:   consumer,
		Feed:       fc,
		Decisions:  dl,
		Publisher:  pub,
		Hub:        hub,
		Limiter:    limiter,
		Handler:    handler,
		Postgres:   pg,
		ClickHouse: ch,
	})
}
