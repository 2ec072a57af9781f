//go:build wireinject
// +build wireinject

package di

import (
	"DealWatch/pkg/config"
	"DealWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvidePostgresClient,
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideCache,

		// Stores
		ProvideContextProvider,
		ProvideFingerprintStore,
		ProvideRunStore,
		ProvidePredictionStore,
		ProvideCalibrationStore,
		ProvideSignalWeightStore,
		ProvideReviewStore,
		ProvideAuditSink,
		ProvideEventPublisher,

		// Detection and routing
		ProvideHasher,
		ProvideClassifier,
		ProvideExecutor,
		ProvideRouter,

		// Calibration loop
		ProvideRegistry,
		ProvideCalibrator,
		ProvideWeighter,
		ProvideFlagger,

		// Orchestration
		ProvideCycleRunner,
		ProvideJobsPublisher,
		ProvideJobsWorker,
		ProvideOutcomeHandler,
		ProvideKafkaConsumer,
		ProvideKafkaFeedHandler,
		ProvideEventCollector,

		// HTTP surface
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
