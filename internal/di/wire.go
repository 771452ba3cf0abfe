//go:build wireinject
// +build wireinject

package di

import (
	"PairPulse/pkg/config"
	"PairPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Core engine
		ProvideTimeframes,
		ProvideTickBuffer,
		ProvideResampler,
		ProvideBus,
		ProvideAnalyticsEngine,
		ProvideAnalyticsDefaults,
		ProvideAlertEngine,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideRedisClient,
		ProvideRedisQueue,

		// Repositories
		ProvideTickStorage,
		ProvideTickPublisher,
		ProvideMarketStream,

		// Use cases
		ProvideTickArchiver,
		ProvideIngestor,
		ProvideTickCollector,
		ProvideKafkaTicksHandler,
		ProvideWarmStarter,
		ProvideAlertForwarder,
		ProvideMarketDataUseCase,
		ProvidePairAnalyticsUseCase,

		// HTTP
		ProvideLocalLimiter,
		ProvideRateLimiter,
		ProvideEndpointMetrics,
		ProvideHealthChecks,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
