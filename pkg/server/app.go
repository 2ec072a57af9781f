package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "DealWatch/internal/domain/repository"
	"DealWatch/internal/usecase"
	pkgch "DealWatch/pkg/clickhouse"
	"DealWatch/pkg/config"
	xhttp "DealWatch/pkg/http"
	pkgkafka "DealWatch/pkg/kafka"
	applogger "DealWatch/pkg/logger"
	"DealWatch/pkg/postgres"
	"DealWatch/pkg/queue"
	"DealWatch/pkg/util"
)

// App encapsulates the entire application lifecycle: the daily cycle
// scheduler, the outcome feed (Kafka or websocket), the recompute job
// worker, and the review HTTP surface.
type App struct {
	cfg       *config.Config
	logger    *applogger.Logger
	runner    *usecase.CycleRunner
	consumer  *pkgkafka.Consumer
	kh        pkgkafka.MessageHandler
	collector *usecase.EventCollector
	worker    *queue.RedisQueue
	jobs      queue.QueueService
	publisher domrepo.EventPublisher

	pgClient    *postgres.Client
	chClient    *pkgch.Client
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	runner *usecase.CycleRunner,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	collector *usecase.EventCollector,
	worker *queue.RedisQueue,
	jobs queue.QueueService,
	publisher domrepo.EventPublisher,
	pgClient *postgres.Client,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		runner:    runner,
		consumer:  consumer,
		kh:        kh,
		collector: collector,
		worker:    worker,
		jobs:      jobs,
		publisher: publisher,
		pgClient:  pgClient,
		chClient:  chClient,
	}
}

// SetHTTPHandler allows DI to inject the HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// RunOnce executes a single cycle for the given date and the follow-up
// maintenance jobs, then returns. Used for manual and backfill runs.
func (a *App) RunOnce(ctx context.Context, cycleDate string) error {
	summary, err := a.runner.Run(ctx, cycleDate)
	if err != nil {
		return err
	}
	a.enqueueMaintenance(ctx)
	a.logger.Info("single cycle done",
		applogger.String("cycle_date", summary.CycleDate),
		applogger.Int("deals", summary.Deals),
		applogger.Int("failed", summary.Failed))
	return nil
}

// Run starts all long-lived components and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Aggregated error logs go through the job queue in production.
	if a.jobs != nil && a.cfg.Environment == "production" {
		a.logger.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "logs.aggregated",
			Publisher:      a.jobs,
		})
	}

	// Recompute job worker
	if a.worker != nil {
		if err := a.worker.Start(); err != nil {
			a.logger.Error("queue worker start error", applogger.Error(err))
			return err
		}
		a.logger.Info("queue worker started")
	}

	// Outcome feed: exactly one backend runs
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.logger.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.logger.Info("outcome feed started",
			applogger.String("backend", "kafka"),
			applogger.String("topic", a.kh.Topic()))
	} else if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.logger.Error("event collector error", applogger.Error(err))
			}
		}()
		a.logger.Info("outcome feed started", applogger.String("backend", "websocket"))
	}

	// Daily cycle scheduler
	go a.schedule(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// schedule fires the cycle at the configured wall-clock time each day.
func (a *App) schedule(ctx context.Context) {
	runAt := a.cfg.Cycle.RunAt
	if runAt == "" {
		runAt = "06:30"
	}
	for {
		next := util.NextRunAt(time.Now(), runAt)
		a.logger.Info("next cycle scheduled", applogger.String("at", next.Format(time.RFC3339)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		cycleDate := util.CycleDate(time.Now())
		summary, err := a.runner.Run(ctx, cycleDate)
		if err != nil {
			a.logger.Error("cycle failed", applogger.String("cycle_date", cycleDate), applogger.Error(err))
			continue
		}
		a.enqueueMaintenance(ctx)
		a.logger.Info("cycle complete",
			applogger.String("cycle_date", summary.CycleDate),
			applogger.Int("deals", summary.Deals),
			applogger.Int("failed", summary.Failed))
	}
}

// enqueueMaintenance queues the sweep first so expiries land before the
// recomputes read the resolved set.
func (a *App) enqueueMaintenance(ctx context.Context) {
	if a.jobs == nil {
		return
	}
	for _, msgType := range []string{
		usecase.TypeRegistrySweep,
		usecase.TypeCalibrationRecompute,
		usecase.TypeWeightsRecompute,
	} {
		if err := a.jobs.PublishMessage(ctx, msgType, map[string]interface{}{"reason": "cycle"}); err != nil {
			a.logger.Warn("enqueue maintenance job failed",
				applogger.String("type", msgType), applogger.Error(err))
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.logger.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.logger.Warn("consumer stop error", applogger.Error(err))
		}
		cancel()
	}
	if a.worker != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.worker.Stop(stopCtx); err != nil {
			a.logger.Warn("queue worker stop error", applogger.Error(err))
		}
		cancel()
	}
	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("event publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.pgClient != nil {
		if err := a.pgClient.Close(); err != nil {
			a.logger.Warn("postgres close error", applogger.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	return nil
}
