//go:build wireinject
// +build wireinject

package di

import (
	"FinSight/internal/domain/repository"
	"FinSight/pkg/config"
	"FinSight/pkg/metrics"
	"FinSight/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
	ProvideRedisClient,
	ProvideCache,
	ProvideClickHouseClient,
	ProvideBarStore,
	ProvideModelStore,
	ProvideKafkaProducer,
	ProvideRecommendationPublisher,
	ProvideQueue,
)

var marketSet = wire.NewSet(
	ProvidePriceFeed,
	ProvideQuoteStream,
	ProvideHistoryUseCase,
)

var forecastSet = wire.NewSet(
	ProvideRegistry,
	ProvideExplainer,
	ProvideForecastUseCase,
	ProvideTrainUseCase,
	ProvideRecommendUseCase,
	ProvidePortfolioUseCase,
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		marketSet,
		forecastSet,
		ProvideKafkaConsumer,
		ProvideStocksHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
