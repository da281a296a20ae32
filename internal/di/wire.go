//go:build wireinject
// +build wireinject

package di

import (
	"FXEngine/internal/services/risk"
	"FXEngine/internal/usecase"
	"FXEngine/pkg/config"
	"FXEngine/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideRedisCache,
	ProvideClickHouseClient,
	ProvideQuoteBook,
	ProvideMarketData,
)

var signalSet = wire.NewSet(
	ProvideStructureAnalyzer,
	ProvideBOSFibAnalyzer,
	ProvideMomentumAnalyzer,
	ProvideAnalyzers,
	ProvideCacheService,
	ProvideSignalService,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		signalSet,

		// Risk and execution
		ProvideStateStore,
		ProvideRiskManager,
		ProvideBroker,
		ProvideDayBoundaryWatcher,

		// Event sinks
		ProvideDirectNotifier,
		ProvideNotifier,
		ProvideNotificationQueue,
		ProvideJournal,
		ProvideEventPublisher,
		ProvideEventRecorder,

		// Feeds
		ProvideNewsCalendar,
		ProvideNewsHandler,
		ProvideKafkaConsumer,
		ProvideQuoteCollector,

		ProvideOrchestrator,

		// HTTP
		ProvideBytesCache,
		ProvideAPIHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeSignalService builds just the signal pipeline for one-shot scans.
func InitializeSignalService(cfg *config.Config) (*usecase.SignalService, func(), error) {
	wire.Build(infraSet, signalSet)
	return nil, nil, nil
}

// InitializeRiskManager builds the risk manager over the configured state store.
func InitializeRiskManager(cfg *config.Config) (*risk.Manager, func(), error) {
	wire.Build(infraSet, ProvideStateStore, ProvideRiskManager)
	return nil, nil, nil
}
