package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	domsvc "DealWatch/internal/domain/service"
	"DealWatch/internal/handler/api"
	internalrepo "DealWatch/internal/repository"
	"DealWatch/internal/service/haltfeed"
	"DealWatch/internal/services/assess"
	"DealWatch/internal/services/fingerprint"
	"DealWatch/internal/usecase"
	"DealWatch/pkg/cache"
	pkgch "DealWatch/pkg/clickhouse"
	"DealWatch/pkg/config"
	xhttp "DealWatch/pkg/http"
	pkgkafka "DealWatch/pkg/kafka"
	applogger "DealWatch/pkg/logger"
	"DealWatch/pkg/metrics"
	"DealWatch/pkg/postgres"
	"DealWatch/pkg/queue"
	"DealWatch/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvidePostgresClient creates the Postgres client and ensures the schema.
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, error) {
	client, err := postgres.NewClient(
		postgres.WithHost(cfg.Postgres.Host),
		postgres.WithPort(cfg.Postgres.Port),
		postgres.WithDatabase(cfg.Postgres.Database),
		postgres.WithCredentials(cfg.Postgres.User, cfg.Postgres.Password),
		postgres.WithSSLMode(cfg.Postgres.SSLMode),
		postgres.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return client, nil
}

// ProvideClickHouseClient creates the audit ClickHouse client and ensures the
// history tables. Audit is optional: no host configured means no client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.ClickHouse.Host == "" {
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.AuditDDL(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedisClient creates the shared Redis connection for the job queue.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideCache creates the layered memory+Redis cache. Redis disabled means
// no cache layer at all.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
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
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc), nil
}

// ProvideFingerprintStore fronts Postgres with the layered cache when Redis
// is available.
func ProvideFingerprintStore(pg *postgres.Client, c cache.Service, cfg *config.Config) domrepo.FingerprintStore {
	store := internalrepo.NewPostgresFingerprintStore(pg.DB())
	if c == nil {
		return store
	}
	return internalrepo.NewCachedFingerprintStore(store, c, cfg.Redis.FingerprintTTL)
}

// ProvideRunStore creates the run store.
func ProvideRunStore(pg *postgres.Client) domrepo.RunStore {
	return internalrepo.NewPostgresRunStore(pg.DB())
}

// ProvidePredictionStore creates the prediction store.
func ProvidePredictionStore(pg *postgres.Client) domrepo.PredictionStore {
	return internalrepo.NewPostgresPredictionStore(pg.DB())
}

// ProvideCalibrationStore creates the calibration report store.
func ProvideCalibrationStore(pg *postgres.Client) domrepo.CalibrationStore {
	return internalrepo.NewPostgresCalibrationStore(pg.DB())
}

// ProvideSignalWeightStore creates the signal weight store.
func ProvideSignalWeightStore(pg *postgres.Client) domrepo.SignalWeightStore {
	return internalrepo.NewPostgresSignalWeightStore(pg.DB())
}

// ProvideReviewStore creates the review queue store.
func ProvideReviewStore(pg *postgres.Client) domrepo.ReviewStore {
	return internalrepo.NewPostgresReviewStore(pg.DB())
}

// ProvideContextProvider reads deal contexts from the ingester's tables.
func ProvideContextProvider(pg *postgres.Client) domrepo.ContextProvider {
	return internalrepo.NewPostgresContextProvider(pg.DB())
}

// ProvideAuditSink creates the append-only audit sink.
func ProvideAuditSink(ch *pkgch.Client, cfg *config.Config) domrepo.AuditSink {
	if ch == nil {
		return internalrepo.NoopAuditSink{}
	}
	return internalrepo.NewClickHouseAuditSink(ch, cfg.ClickHouse.Database)
}

// ProvideEventPublisher creates the cycle events publisher.
func ProvideEventPublisher(cfg *config.Config) (domrepo.EventPublisher, error) {
	if !cfg.Events.Enabled {
		return internalrepo.NoopEventPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Events.Brokers),
		pkgkafka.WithCompression(cfg.Events.Compression),
		pkgkafka.WithRequiredAcks(cfg.Events.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Events.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Events.WriteTimeout, cfg.Events.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("events producer: %w", err)
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Events.Topic), nil
}

// ProvideExecutor creates the HTTP assessment executor client.
func ProvideExecutor(cfg *config.Config) domsvc.AssessmentExecutor {
	return assess.NewHTTPExecutor(cfg.Executor.URL, cfg.Executor.Timeout)
}

// ProvideHasher creates the context hasher.
func ProvideHasher(cfg *config.Config) *fingerprint.Hasher {
	return fingerprint.NewHasher(fingerprint.HasherConfig{
		SpreadStep:      cfg.Detection.SpreadStep,
		ProbabilityStep: cfg.Detection.ProbabilityStep,
		RequiredFields:  cfg.Detection.RequiredFields,
	})
}

// ProvideClassifier creates the change classifier.
func ProvideClassifier(cfg *config.Config) *fingerprint.Classifier {
	return fingerprint.NewClassifier(fingerprint.ClassifierConfig{
		StructuralFields:     cfg.Detection.StructuralFields,
		EscalateNumericCount: cfg.Detection.EscalateNumericCount,
	})
}

// ProvideRouter creates the smart router.
func ProvideRouter(
	exec domsvc.AssessmentExecutor,
	runs domrepo.RunStore,
	calibration domrepo.CalibrationStore,
	weights domrepo.SignalWeightStore,
	m domrepo.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.Router {
	return usecase.NewRouter(exec, runs, calibration, weights, m, l,
		usecase.RouterConfig{
			Enabled:         cfg.Features.Router,
			ExecutorTimeout: cfg.Executor.Timeout,
			TierCosts:       tierCosts(cfg),
			ExecutorRPS:     cfg.Executor.RPS,
			MinPredictions:  cfg.Executor.MinPredictions,
			MaxPredictions:  cfg.Executor.MaxPredictions,
		},
		cfg.Features.Calibration, cfg.Features.Weighting)
}

func tierCosts(cfg *config.Config) map[models.Tier]float64 {
	return map[models.Tier]float64{
		models.TierCheap: cfg.Executor.TierCosts.Cheap,
		models.TierMid:   cfg.Executor.TierCosts.Mid,
		models.TierHigh:  cfg.Executor.TierCosts.High,
	}
}

// ProvideRegistry creates the prediction registry.
func ProvideRegistry(store domrepo.PredictionStore, m domrepo.Metrics, l *applogger.Logger, cfg *config.Config) *usecase.Registry {
	return usecase.NewRegistry(store, m, l, cfg.Features.Registry)
}

// ProvideCalibrator creates the calibration engine.
func ProvideCalibrator(
	predictions domrepo.PredictionStore,
	reports domrepo.CalibrationStore,
	reviews domrepo.ReviewStore,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.Calibrator {
	return usecase.NewCalibrator(predictions, reports, reviews, l,
		usecase.CalibrationConfig{
			Enabled:              cfg.Features.Calibration,
			OverconfidenceMargin: cfg.Calibration.OverconfidenceMargin,
			MinBucketSamples:     cfg.Calibration.MinBucketSamples,
			CorrectionWindow:     cfg.Calibration.CorrectionWindow,
		})
}

// ProvideWeighter creates the signal weighting engine.
func ProvideWeighter(predictions domrepo.PredictionStore, store domrepo.SignalWeightStore, l *applogger.Logger, cfg *config.Config) *usecase.Weighter {
	return usecase.NewWeighter(predictions, store, l,
		usecase.WeightsConfig{
			Enabled:           cfg.Features.Weighting,
			ActivationSamples: cfg.Weighting.ActivationSamples,
			BrierFloor:        cfg.Weighting.BrierFloor,
		})
}

// ProvideFlagger creates the review queue flagger.
func ProvideFlagger(predictions domrepo.PredictionStore, reviews domrepo.ReviewStore, m domrepo.Metrics, l *applogger.Logger, cfg *config.Config) *usecase.Flagger {
	return usecase.NewFlagger(predictions, reviews, m, l,
		usecase.FlaggerConfig{
			Enabled:               cfg.Features.Flagger,
			DisagreementWeight:    cfg.Flagger.DisagreementWeight,
			GradeChangeWeight:     cfg.Flagger.GradeChangeWeight,
			PoorBrierWeight:       cfg.Flagger.PoorBrierWeight,
			MilestoneWeight:       cfg.Flagger.MilestoneWeight,
			DegradedWeight:        cfg.Flagger.DegradedWeight,
			ScoreCeiling:          cfg.Flagger.ScoreCeiling,
			DisagreementThreshold: cfg.Flagger.DisagreementThreshold,
			BrierThreshold:        cfg.Flagger.BrierThreshold,
			BrierLookback:         cfg.Flagger.BrierLookback,
			EventWindow:           cfg.Flagger.EventWindow,
		})
}

// ProvideCycleRunner creates the daily cycle orchestrator.
func ProvideCycleRunner(
	provider domrepo.ContextProvider,
	hasher *fingerprint.Hasher,
	classifier *fingerprint.Classifier,
	router *usecase.Router,
	registry *usecase.Registry,
	flagger *usecase.Flagger,
	fingerprints domrepo.FingerprintStore,
	runs domrepo.RunStore,
	audit domrepo.AuditSink,
	publisher domrepo.EventPublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.CycleRunner {
	return usecase.NewCycleRunner(provider, hasher, classifier, router, registry, flagger,
		fingerprints, runs, audit, publisher, m, l,
		usecase.CycleConfig{
			Concurrency:      cfg.Cycle.Concurrency,
			DetectionEnabled: cfg.Features.Detection,
		})
}

// ProvideJobsPublisher creates the queue publisher used by the feed handler
// and the scheduler. Nil Redis means no queue; recomputes then run inline
// only when invoked through RunOnce paths.
func ProvideJobsPublisher(l *applogger.Logger, rc *redis.Client) queue.QueueService {
	if rc == nil {
		return nil
	}
	return queue.NewRedisPublisher(l, rc)
}

// ProvideJobsWorker creates the single-worker queue consumer that serializes
// the calibration, weights, and sweep recomputes.
func ProvideJobsWorker(
	l *applogger.Logger,
	rc *redis.Client,
	calibrator *usecase.Calibrator,
	weighter *usecase.Weighter,
	registry *usecase.Registry,
) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	jobs := []queue.Job{
		usecase.NewSweepJob(registry, l),
		usecase.NewCalibrationJob(calibrator, l),
		usecase.NewWeightsJob(weighter, l),
	}
	return queue.NewRedisConsumer(l, &queue.QueueConfig{Workers: 1, RetryLimit: 3}, rc, jobs)
}

// ProvideOutcomeHandler creates the shared outcome event handler.
func ProvideOutcomeHandler(registry *usecase.Registry, flagger *usecase.Flagger, jobs queue.QueueService, l *applogger.Logger, cfg *config.Config) *usecase.OutcomeHandler {
	return usecase.NewOutcomeHandler(cfg.Feed.Kafka.Topic, registry, flagger, jobs, l)
}

// ProvideKafkaConsumer creates the feed consumer when the backend is Kafka.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Feed.Backend != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Feed.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Feed.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Feed.Kafka.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Feed.Kafka.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Feed.Kafka.RetryMax, cfg.Feed.Kafka.BackoffMin, cfg.Feed.Kafka.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Feed.Kafka.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaFeedHandler adapts the outcome handler to the consumer.
func ProvideKafkaFeedHandler(h *usecase.OutcomeHandler, cfg *config.Config) pkgkafka.MessageHandler {
	if cfg.Feed.Backend != "kafka" {
		return nil
	}
	return h
}

// ProvideEventCollector creates the websocket feed collector when the
// backend is websocket.
func ProvideEventCollector(h *usecase.OutcomeHandler, m domrepo.Metrics, l *applogger.Logger, cfg *config.Config) *usecase.EventCollector {
	if cfg.Feed.Backend != "websocket" {
		return nil
	}
	stream := haltfeed.New(
		cfg.Feed.WebSocket.APIKey,
		cfg.Feed.WebSocket.URL,
		cfg.Feed.WebSocket.Channels,
		cfg.Feed.WebSocket.ReconnectDelay,
		cfg.Feed.WebSocket.PingInterval,
	)
	return usecase.NewEventCollector(stream, h, m, l)
}

// ProvideHTTPHandler creates the review surface handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	flagger *usecase.Flagger,
	registry *usecase.Registry,
	reviews domrepo.ReviewStore,
	runs domrepo.RunStore,
	calibration domrepo.CalibrationStore,
	weights domrepo.SignalWeightStore,
) xhttp.Handler {
	return api.NewReviewEchoHandler(l, flagger, registry, reviews, runs, calibration, weights)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.CycleRunner,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	collector *usecase.EventCollector,
	worker *queue.RedisQueue,
	jobs queue.QueueService,
	publisher domrepo.EventPublisher,
	pg *postgres.Client,
	ch *pkgch.Client,
	handler xhttp.Handler,
) *server.App {
	app := server.New(cfg, l, runner, consumer, kh, collector, worker, jobs, publisher, pg, ch)
	app.SetHTTPHandler(handler)
	return app
}
