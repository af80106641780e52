package factory

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/OptimadeHarvester/internal/app"
	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/engine"
	"github.com/OptimadeHarvester/internal/infra/gateway"
	"github.com/OptimadeHarvester/internal/infra/optimade"
	"github.com/OptimadeHarvester/internal/infra/queue"
	"github.com/OptimadeHarvester/internal/infra/repository"
	transport "github.com/OptimadeHarvester/internal/transport/http"
	"github.com/OptimadeHarvester/pkg/config"
	"go.mongodb.org/mongo-driver/mongo"
)

// NewMongoRepository creates a MongoDB repository.
func NewMongoRepository(client *mongo.Client, cfg *config.Config) (domain.Repository, error) {
	if cfg.MongoDBName == "" {
		return nil, errors.New("mongo database name not configured")
	}
	if cfg.MongoColl == "" {
		return nil, errors.New("mongo collection name not configured")
	}
	return repository.NewMongoRepository(client, cfg.MongoDBName, cfg.MongoColl)
}

// NewStructureStore opens the engine profile, or a log-only store when no
// storage root is configured.
func NewStructureStore(cfg *config.Config) (domain.StructureStore, error) {
	if cfg.StorageRoot == "" {
		slog.Warn("STORAGE_ROOT not set, engine sync runs as dry run")
		return gateway.NewLogStore(), nil
	}
	return engine.NewLocalEngine(cfg.StorageRoot, cfg.ProfileName)
}

// NewEventProducer wraps the Kafka producer as an EventProducer.
func NewEventProducer(p *queue.KafkaProducer) (domain.EventProducer, error) {
	if p == nil {
		return nil, errors.New("kafka producer is nil")
	}
	return p, nil
}

// NewHarvestService creates the harvest service with validation.
func NewHarvestService(
	client *optimade.Client,
	repo domain.Repository,
	eventProducer domain.EventProducer,
	jobs []app.HarvestJob,
	cfg *config.Config,
) (*app.HarvestService, error) {
	if repo == nil {
		return nil, errors.New("repository is nil")
	}
	if eventProducer == nil {
		return nil, errors.New("event producer is nil")
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > app.MaxPageSize {
		return nil, fmt.Errorf("invalid batch size: %d (must be 1-%d)", cfg.BatchSize, app.MaxPageSize)
	}
	if cfg.WorkerPoolSize <= 0 || cfg.WorkerPoolSize > 100 {
		return nil, fmt.Errorf("invalid worker pool size: %d (must be 1-100)", cfg.WorkerPoolSize)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("invalid poll interval: %s", cfg.PollInterval)
	}

	return app.NewHarvestService(
		client,
		repo,
		eventProducer,
		jobs,
		cfg.PollInterval,
		cfg.BatchSize,
		cfg.WorkerPoolSize,
	), nil
}

// NewStructureSyncService creates the engine sync service.
func NewStructureSyncService(consumer *queue.KafkaConsumer, store domain.StructureStore) (*app.StructureSyncService, error) {
	if consumer == nil {
		return nil, errors.New("kafka consumer is nil")
	}
	if store == nil {
		return nil, errors.New("structure store is nil")
	}
	return app.NewStructureSyncService(consumer, store), nil
}

// NewQueryService creates the query service backing the HTTP API.
func NewQueryService(client *optimade.Client) *app.QueryService {
	return app.NewQueryService(client)
}

// NewQueryAPI exposes the query service to the HTTP transport.
func NewQueryAPI(svc *app.QueryService) transport.QueryAPI {
	return svc
}
