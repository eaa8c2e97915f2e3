package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"SessionScope/internal/domain/repository"
	domsvc "SessionScope/internal/domain/service"
	"SessionScope/internal/handler/api"
	internalrepo "SessionScope/internal/repository"
	icache "SessionScope/internal/service/cache"
	"SessionScope/internal/service/scheduler"
	"SessionScope/internal/service/yahoo"
	"SessionScope/internal/services/sessions"
	"SessionScope/internal/usecase"
	pkgcache "SessionScope/pkg/cache"
	pkgch "SessionScope/pkg/clickhouse"
	"SessionScope/pkg/config"
	pkgkafka "SessionScope/pkg/kafka"
	applogger "SessionScope/pkg/logger"
	"SessionScope/pkg/metrics"
	"SessionScope/pkg/queue"
	"SessionScope/pkg/server"

	segkafka "github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
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
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCandleStore creates the candle store and ensures its schema.
func ProvideCandleStore(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.CandleStore, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewCHCandleStore(client, cfg.ClickHouse.Database)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("candle schema: %w", err)
	}
	return store, nil
}

// ProvideReportStore creates the report store and ensures its schema.
func ProvideReportStore(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.ReportStore, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewCHReportStore(client, cfg.ClickHouse.Database)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("report schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
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
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideReportPublisher creates the Kafka report publisher.
func ProvideReportPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ReportPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.ReportTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.AutoOffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisCache creates the shared Redis connection, or nil when disabled.
// The queue and the response cache reuse its client.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideSeriesCache picks the series cache: layered memory+Redis when Redis
// is up, memory only otherwise.
func ProvideSeriesCache(rc *pkgcache.RedisCache, cfg *config.Config) pkgcache.Service {
	if rc != nil {
		return pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(cfg.Cache.MaxEntries))
	}
	return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MaxEntries))
}

// ProvideMarketSource creates the chart API client.
func ProvideMarketSource(cfg *config.Config, l *applogger.Logger) repository.MarketSource {
	client := yahoo.New(cfg.Market.BaseURL, cfg.Market.UserAgent, cfg.Market.Timeout, cfg.Market.MaxRetries)
	client.SetLogger(l)
	return client
}

// ProvideRegistry builds the session catalog, failing fast on bad definitions.
func ProvideRegistry(cfg *config.Config) (*sessions.Registry, error) {
	return sessions.NewRegistryFromConfig(cfg.Sessions)
}

// ProvideBoundaryResolver creates the DST-strict boundary resolver.
func ProvideBoundaryResolver() domsvc.BoundaryResolver {
	return sessions.NewResolver()
}

// ProvideWindowExtractor creates the per-day window extractor.
func ProvideWindowExtractor(resolver domsvc.BoundaryResolver, m repository.Metrics, l *applogger.Logger) domsvc.WindowExtractor {
	e := sessions.NewExtractor(resolver)
	e.SetLogger(l)
	e.SetMetrics(m)
	return e
}

// ProvideSessionAggregator creates the OHLC aggregator.
func ProvideSessionAggregator() domsvc.SessionAggregator {
	return sessions.NewAggregator()
}

// ProvideSeriesProvider creates the cached series read path.
func ProvideSeriesProvider(
	src repository.MarketSource,
	store repository.CandleStore,
	cache pkgcache.Service,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.SeriesProvider {
	sp := usecase.NewSeriesProvider(src, store, cache, m, cfg.Cache.SeriesTTL, cfg.Cache.StaleTTL)
	sp.SetLogger(l)
	return sp
}

// ProvideReportBuilder creates the report build use case.
func ProvideReportBuilder(
	series *usecase.SeriesProvider,
	registry *sessions.Registry,
	extract domsvc.WindowExtractor,
	agg domsvc.SessionAggregator,
	store repository.ReportStore,
	pub repository.ReportPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ReportBuilder {
	b := usecase.NewReportBuilder(series, registry, extract, agg, store, pub, m)
	b.SetLogger(l)
	return b
}

// ProvideReportJob creates the queued report build job. The series cache
// doubles as its single-flight lock backend, Redis-backed when available.
func ProvideReportJob(builder *usecase.ReportBuilder, scache pkgcache.Service, l *applogger.Logger) *usecase.ReportJob {
	j := usecase.NewReportJob(builder)
	j.SetLocker(scache)
	j.SetLogger(l)
	return j
}

// ProvideJobQueue creates the Redis-backed job queue with the report job
// registered, or nil without Redis. Started by the app, not here.
func ProvideJobQueue(rc *pkgcache.RedisCache, job *usecase.ReportJob, cfg *config.Config, l *applogger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Report.Jobs.Workers,
		QueueSize:  cfg.Report.Jobs.QueueSize,
		RetryLimit: cfg.Report.Jobs.RetryLimit,
		RetryDelay: cfg.Report.Jobs.RetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer)
	q.RegisterJob(job)
	return q
}

// ProvideCandleIngestor creates the batch ingestor, or nil without a store.
// It evicts cached series through the same cache the series provider reads.
func ProvideCandleIngestor(store repository.CandleStore, m repository.Metrics, scache pkgcache.Service, cfg *config.Config, l *applogger.Logger) *usecase.CandleIngestor {
	if store == nil {
		return nil
	}
	ing := usecase.NewCandleIngestor(store, m, cfg.Ingest.BatchSize, cfg.Ingest.BatchTimeout)
	ing.SetSeriesCache(scache)
	ing.SetLogger(l)
	return ing
}

// ProvideCandlesHandler registers the handler for the candles topic.
func ProvideCandlesHandler(ingestor *usecase.CandleIngestor, m repository.Metrics, cfg *config.Config) *usecase.KafkaCandlesHandler {
	if ingestor == nil {
		return nil
	}
	return usecase.NewKafkaCandlesHandler(cfg.Kafka.CandlesTopic, ingestor, m, cfg.Ingest.Interval)
}

// ProvideScheduler creates the cron report scheduler, or nil when no cron
// spec is configured. Registration happens here so a bad spec fails startup.
func ProvideScheduler(
	cfg *config.Config,
	registry *sessions.Registry,
	jq *queue.RedisQueue,
	job *usecase.ReportJob,
	l *applogger.Logger,
) (*scheduler.Scheduler, error) {
	if cfg.Report.Cron == "" {
		return nil, nil
	}
	sessionNames := cfg.Report.SessionNames
	if len(sessionNames) == 0 {
		sessionNames = registry.Names()
	}
	var qs queue.QueueService
	if jq != nil {
		qs = jq
	}
	s := scheduler.New(cfg.Report.Cron, cfg.Report.Symbols, sessionNames, cfg.Report.Interval, qs, job, l)
	if err := s.Register(); err != nil {
		return nil, err
	}
	return s, nil
}

// ProvideReportsHandler creates the HTTP handler with its response cache and
// optional job queue attached.
func ProvideReportsHandler(
	l *applogger.Logger,
	builder *usecase.ReportBuilder,
	series *usecase.SeriesProvider,
	extract domsvc.WindowExtractor,
	registry *sessions.Registry,
	resolver domsvc.BoundaryResolver,
	reports repository.ReportStore,
	jq *queue.RedisQueue,
	rc *pkgcache.RedisCache,
	cfg *config.Config,
) *api.ReportsHandler {
	h := api.NewReportsHandler(l, builder, series, extract, registry, resolver, reports)
	h.SetResultTTL(cfg.Cache.ResultTTL)
	if rc != nil {
		h.SetCache(icache.NewRedisCacheFromClient(rc.Client()))
	} else {
		h.SetCache(icache.NewTTLCache(cfg.Cache.MaxEntries))
	}
	if jq != nil {
		h.SetQueue(jq)
	}
	return h
}

// ProvideConsumerHook builds the hook chain the Kafka consumer runs around
// each message: the first hook stamps timing and trace metadata into the
// context, the second turns them into metrics and structured logs.
func ProvideConsumerHook(m repository.Metrics, l *applogger.Logger) pkgkafka.ConsumerHook {
	trace := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km segkafka.Message, data []byte) (context.Context, segkafka.Message, []byte, error) {
			ctx = pkgkafka.WithStartTime(ctx, time.Now())
			ctx = pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km))
			return ctx, km, data, nil
		},
	}
	observe := pkgkafka.HookFuncs{
		After: func(ctx context.Context, topic string, km segkafka.Message, data []byte, err error) {
			if start, ok := pkgkafka.StartTime(ctx); ok {
				m.RecordLatency("consume_"+topic, time.Since(start).Seconds())
			}
		},
		Err: func(ctx context.Context, topic string, km segkafka.Message, data []byte, err error) {
			m.RecordError("kafka_consume")
			fields := []applogger.Field{applogger.String("topic", topic), applogger.Error(err)}
			if id := pkgkafka.TraceID(ctx); id != "" {
				fields = append(fields, applogger.String("trace_id", id))
			}
			l.Warn("kafka message error", fields...)
		},
	}
	return pkgkafka.NewHookChain(trace, observe)
}

// ProvideApp assembles the application server and attaches the optional
// components the lifecycle manages.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	consumer *pkgkafka.Consumer,
	hook pkgkafka.ConsumerHook,
	candlesHandler *usecase.KafkaCandlesHandler,
	ingestor *usecase.CandleIngestor,
	chClient *pkgch.Client,
	handler *api.ReportsHandler,
	jq *queue.RedisQueue,
	sched *scheduler.Scheduler,
	producer *pkgkafka.Producer,
	pub repository.ReportPublisher,
	rc *pkgcache.RedisCache,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(hook)
	}
	var kh pkgkafka.MessageHandler
	if candlesHandler != nil {
		kh = candlesHandler
	}
	app := server.New(cfg, l, consumer, kh, ingestor, chClient)
	app.SetHTTPHandler(handler)
	app.JobQueue = jq
	app.Sched = sched
	app.Producer = producer
	app.Publisher = pub
	app.Redis = rc
	return app
}
