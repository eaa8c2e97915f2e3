//go:build wireinject
// +build wireinject

package di

import (
	"SessionScope/pkg/config"
	"SessionScope/pkg/server"

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
		ProvideConsumerHook,
		ProvideRedisCache,

		// Repositories
		ProvideCandleStore,
		ProvideReportStore,
		ProvideReportPublisher,
		ProvideMarketSource,

		// Session services
		ProvideRegistry,
		ProvideBoundaryResolver,
		ProvideWindowExtractor,
		ProvideSessionAggregator,

		// Use cases
		ProvideSeriesCache,
		ProvideSeriesProvider,
		ProvideReportBuilder,
		ProvideReportJob,
		ProvideCandleIngestor,
		ProvideCandlesHandler,

		// Jobs and schedule
		ProvideJobQueue,
		ProvideScheduler,

		// HTTP
		ProvideReportsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
