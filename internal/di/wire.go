//go:build wireinject
// +build wireinject

package di

import (
	"PerpLens/pkg/config"
	"PerpLens/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideEventStorage,
		ProvideEventPublisher,
		ProvideHyperliquidStream,

		// Use cases
		ProvideFlowProcessor,
		ProvideFlowCollector,
		ProvideKafkaFlowHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
