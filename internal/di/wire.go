//go:build wireinject
// +build wireinject

package di

import (
	"StratTune/pkg/config"
	"StratTune/pkg/server"

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
		ProvideSQLiteClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,

		// Repositories
		ProvideStore,
		ProvideAuditPublisher,
		ProvideArchivePipeline,

		// Services
		ProvideNormalizer,
		ProvideStreamHub,

		// Use cases
		ProvideController,

		// HTTP
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
