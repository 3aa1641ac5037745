//go:build wireinject
// +build wireinject

package di

import (
	"FinPulse/pkg/config"
	"FinPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideProfileCache,
		ProvideNATSClient,
		ProvideClickHouseClient,

		// Repositories and providers
		ProvideSnapshotStore,
		ProvideMarketData,
		ProvideEmbedder,
		ProvideGenerator,
		ProvideSnapshotSink,
		ProvideSnapshotArchive,

		// Use cases
		ProvideSnapshotFetcher,
		ProvideQueryEngine,
		ProvidePipeline,
		ProvideHub,
		ProvideIngestionLoop,
		ProvideMarketViews,
		ProvideSnapshotArchiver,
		ProvideHeartbeatJob,

		// Delivery
		ProvideRateLimiter,
		ProvideMarketHandler,
		ProvideHTTPServer,
		ProvideKafkaConsumer,
		ProvideScheduler,

		// Application server
		ProvideClosers,
		ProvideApp,
	)
	return &server.App{}, nil
}
