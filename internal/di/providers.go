package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"StockPulse/internal/domain/repository"
	domservice "StockPulse/internal/domain/service"
	"StockPulse/internal/handler/api"
	mid "StockPulse/internal/middleware"
	internalrepo "StockPulse/internal/repository"
	svcmetrics "StockPulse/internal/service/metrics"
	"StockPulse/internal/service/ratelimit"
	"StockPulse/internal/service/stream"
	"StockPulse/internal/services/features"
	"StockPulse/internal/services/forecast"
	"StockPulse/internal/services/signals"
	"StockPulse/internal/usecase"
	pkgcache "StockPulse/pkg/cache"
	pkgch "StockPulse/pkg/clickhouse"
	"StockPulse/pkg/config"
	xhttp "StockPulse/pkg/http"
	pkgkafka "StockPulse/pkg/kafka"
	applogger "StockPulse/pkg/logger"
	"StockPulse/pkg/metrics"
	pkgqueue "StockPulse/pkg/queue"
	"StockPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"CREATE TABLE IF NOT EXISTS " + db + ".daily_bars (" +
			"bucket DateTime, symbol String, exchange String, " +
			"open Float64, high Float64, low Float64, close Float64, vol Float64" +
			") ENGINE=MergeTree ORDER BY (symbol, exchange, bucket)",
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
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
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvideCandleStore creates the ClickHouse daily-bar repository.
func ProvideCandleStore(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.CandleStore {
	store := internalrepo.NewCHCandleStore(chClient, cfg.ClickHouse.Database+".daily_bars")
	store.SetLogger(l)
	return store
}

// ProvideBarPublisher creates the Kafka bar publisher repository.
func ProvideBarPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaBarPublisher(producer, cfg.Kafka.Topic)
}

// ProvideArtifactStore creates the filesystem model artifact repository.
func ProvideArtifactStore(cfg *config.Config, l *applogger.Logger) (repository.ArtifactStore, error) {
	return internalrepo.NewFSArtifactStore(cfg.Forecast.ModelDir, l)
}

// ProvideMarketStream creates the WebSocket daily-bar stream.
func ProvideMarketStream(cfg *config.Config) repository.MarketStream {
	return stream.New(
		cfg.Stream.APIKey,
		cfg.Stream.WebSocketURL,
		cfg.Stream.Symbols,
		cfg.Stream.Exchange,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
	)
}

// ProvideRedisCache creates the Redis cache client, or nil when Redis is
// disabled in config.
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
	return pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("stockpulse"),
	)
}

// ProvideCache returns the cache service: layered (memory over Redis) when
// Redis is available, in-process memory otherwise.
func ProvideCache(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache()
	}
	return pkgcache.NewLayeredCache(rc)
}

// ProvideEngineer creates the feature engineer.
func ProvideEngineer() *features.Engineer {
	return features.NewEngineer()
}

// ProvideForecaster creates the layered multi-horizon forecaster.
func ProvideForecaster(
	engineer *features.Engineer,
	artifacts repository.ArtifactStore,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) domservice.HorizonForecaster {
	return forecast.NewEngine(engineer, artifacts, cfg.Forecast, l, m)
}

// ProvideSignalEvaluator creates the rule-based signal generator.
func ProvideSignalEvaluator(engineer *features.Engineer) domservice.SignalEvaluator {
	return signals.NewGenerator(engineer)
}

// ProvideModelTrainer creates the training use case.
func ProvideModelTrainer(
	engineer *features.Engineer,
	artifacts repository.ArtifactStore,
	cacheSvc pkgcache.Service,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) domservice.ModelTrainer {
	trainer := forecast.NewTrainer(cfg.Forecast, l)
	return usecase.NewTrainUseCase(engineer, trainer, artifacts, cacheSvc, cfg.Forecast, l, m)
}

// ProvideTrainJob creates the queue job that runs background training.
func ProvideTrainJob(store repository.CandleStore, trainer domservice.ModelTrainer, l *applogger.Logger) *usecase.TrainJob {
	return usecase.NewTrainJob(store, trainer, l)
}

// ProvideQueue creates the Redis-backed training queue, or nil when Redis is
// disabled.
func ProvideQueue(l *applogger.Logger, rc *pkgcache.RedisCache, job *usecase.TrainJob) *pkgqueue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := pkgqueue.NewRedisQueue(l, &pkgqueue.QueueConfig{
		Workers:    2,
		QueueSize:  100,
		RetryLimit: 3,
		RetryDelay: 30 * time.Second,
	}, rc.Client(), pkgqueue.ModeProducerConsumer)
	q.RegisterJob(job)
	return q
}

// ProvideQueueService adapts the queue to its publishing interface, keeping a
// disabled queue as a true nil.
func ProvideQueueService(q *pkgqueue.RedisQueue) pkgqueue.QueueService {
	if q == nil {
		return nil
	}
	return q
}

// ProvideAnalyzer creates the forecast analyzer use case.
func ProvideAnalyzer(
	store repository.CandleStore,
	forecaster domservice.HorizonForecaster,
	evaluator domservice.SignalEvaluator,
	artifacts repository.ArtifactStore,
	cacheSvc pkgcache.Service,
	qs pkgqueue.QueueService,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.AnalyzerUseCase {
	return usecase.NewAnalyzerUseCase(store, forecaster, evaluator, artifacts, cacheSvc, qs, cfg.Forecast, l, m)
}

// ProvideCandlesUseCase creates the candle retrieval use case.
func ProvideCandlesUseCase(store repository.CandleStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(store)
}

// ProvideBarProcessor creates the bar processor use case.
func ProvideBarProcessor(
	pub repository.Publisher,
	store repository.CandleStore,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.BarProcessor {
	return usecase.NewBarProcessor(
		pub,
		store,
		m,
		cfg.Backend.Type,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvideBarCollector creates the bar collector use case.
func ProvideBarCollector(
	marketStream repository.MarketStream,
	processor *usecase.BarProcessor,
	m repository.Metrics,
) *usecase.BarCollector {
	// Build middleware pipeline between WebSocket and storage
	pipe := mid.NewBarPipeline(processor, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewBarCollector(marketStream, processor, m, pipe)
}

// ProvideKafkaBarsHandler registers the handler for the bars topic.
func ProvideKafkaBarsHandler(store repository.CandleStore, m repository.Metrics, cfg *config.Config) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.Topic, store, m)
}

// ProvideRateLimiter creates the API rate limiter.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHealthHandler creates the health endpoint handler.
func ProvideHealthHandler(l *applogger.Logger, collector *usecase.BarCollector, store repository.CandleStore) *api.HealthHandler {
	return api.NewHealthHandler(l, collector, store)
}

// ProvideHTTPHandler creates the forecasting API handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	analyzer *usecase.AnalyzerUseCase,
	candles *usecase.CandlesUseCase,
	health *api.HealthHandler,
	qs pkgqueue.QueueService,
	limiter *ratelimit.Limiter,
) xhttp.Handler {
	return api.NewForecastHandler(l, analyzer, candles, health, qs, limiter)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.BarCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaBarsHandler,
	chClient *pkgch.Client,
	q *pkgqueue.RedisQueue,
	httpHandler xhttp.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, l, collector, consumer, kh, chClient, q, httpHandler)
	// attach bar processor to app for closing resources via collector
	if collector != nil {
		app.BarProc = collector.Processor()
	}
	return app
}
