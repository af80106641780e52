package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/OptimadeHarvester/cmd/server/factory"
	"github.com/OptimadeHarvester/internal/app"
	"github.com/OptimadeHarvester/internal/infra/tracing"
	transport "github.com/OptimadeHarvester/internal/transport/http"
	"github.com/OptimadeHarvester/pkg/config"
	"github.com/OptimadeHarvester/pkg/logging"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fx.Provide(
			// Config
			config.Load,

			// Infrastructure
			factory.NewMongoClient,
			factory.NewMongoRepository,
			fx.Annotate(
				factory.NewMainKafkaProducer,
				fx.ResultTags(`name:"main_producer"`),
			),
			fx.Annotate(
				factory.NewDLQProducer,
				fx.ResultTags(`name:"dlq_producer"`),
			),
			fx.Annotate(
				factory.NewKafkaConsumer,
				fx.ParamTags(``, `name:"dlq_producer"`, ``),
			),
			fx.Annotate(
				factory.NewEventProducer,
				fx.ParamTags(`name:"main_producer"`),
			),
			factory.NewStructureStore,

			// OPTIMADE
			factory.NewProviderCache,
			factory.NewResolver,
			factory.NewExecutor,
			factory.NewRegistryService,
			factory.NewSessionClient,
			factory.NewHarvestJobs,

			// Services
			factory.NewHarvestService,
			factory.NewStructureSyncService,
			factory.NewQueryService,
			factory.NewQueryAPI,

			// HTTP Server
			transport.NewHTTPServer,
		),
		fx.Invoke(
			SetupLogger,
			SetupTracer,
			WaitForReady,
			RegisterHooks,
			StartServer,
		),
	).Run()
}

func RegisterHooks(lc fx.Lifecycle, service *app.HarvestService, syncService *app.StructureSyncService) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go service.Start(ctx)
			syncService.Start(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			return nil
		},
	})
}

func SetupLogger(cfg *config.Config) {
	slog.SetDefault(logging.NewLogger(os.Stdout, cfg.LogLevel))
}

func SetupTracer(lc fx.Lifecycle, cfg *config.Config) error {
	shutdown, err := tracing.InitTracer(context.Background(), cfg.ServiceName)
	if err != nil {
		slog.Error("Failed to initialize tracer", "error", err)
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Info("Shutting down tracer provider")
			return shutdown(ctx)
		},
	})
	return nil
}

// WaitForReady blocks until MongoDB and the Kafka topic are usable.
func WaitForReady(cfg *config.Config, mongoClient *mongo.Client) error {
	waiter := app.NewReadinessWaiter(0,
		app.MongoCheck(mongoClient),
		app.KafkaCheck(cfg.KafkaBrokers, cfg.KafkaTopic),
	)
	return waiter.WaitForDependencies(context.Background())
}

func StartServer(lc fx.Lifecycle, server *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				slog.Info("Starting HTTP server", "address", server.Addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("HTTP server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
