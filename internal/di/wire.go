//go:build wireinject
// +build wireinject

package di

import (
	"StockPulse/pkg/config"
	"StockPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideCache,

		// Repositories
		ProvideCandleStore,
		ProvideBarPublisher,
		ProvideArtifactStore,
		ProvideMarketStream,

		// Forecasting services
		ProvideEngineer,
		ProvideForecaster,
		ProvideSignalEvaluator,
		ProvideModelTrainer,
		ProvideTrainJob,
		ProvideQueue,
		ProvideQueueService,

		// Use cases
		ProvideAnalyzer,
		ProvideCandlesUseCase,
		ProvideBarProcessor,
		ProvideBarCollector,
		ProvideKafkaBarsHandler,

		// HTTP
		ProvideRateLimiter,
		ProvideHealthHandler,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
