//go:build wireinject
// +build wireinject

package di

import (
	"EntryGate/pkg/config"
	"EntryGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Condition storage
		ProvidePostgresClient,
		ProvideConditionStore,
		ProvideConditionService,

		// Decision sinks
		ProvideClickHouseClient,
		ProvideDecisionLog,
		ProvideKafkaProducer,
		ProvideDecisionPublisher,
		ProvideHub,

		// Evaluation
		ProvideEvaluationLoop,
		ProvidePipeline,
		ProvideKafkaConsumer,
		ProvideSnapshotHandler,
		ProvideFeed,

		// HTTP
		ProvideWriteLimiter,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
