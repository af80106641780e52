package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/metrics"
	"github.com/OptimadeHarvester/internal/infra/queue"
)

// EventConsumer delivers structure events. *queue.KafkaConsumer implements it.
type EventConsumer interface {
	Start(ctx context.Context, handler queue.MessageHandler)
	Close() error
}

// StructureSyncService stores every published structure in the engine profile.
type StructureSyncService struct {
	consumer EventConsumer
	store    domain.StructureStore
}

func NewStructureSyncService(consumer EventConsumer, store domain.StructureStore) *StructureSyncService {
	return &StructureSyncService{
		consumer: consumer,
		store:    store,
	}
}

func (s *StructureSyncService) Start(ctx context.Context) {
	slog.Info("Starting structure sync service (Kafka consumer)")
	go s.consumer.Start(ctx, s.handleEvent)
}

func (s *StructureSyncService) handleEvent(ctx context.Context, structure *domain.Structure) error {
	start := time.Now()
	slog.Debug("Consuming event for sync", "structure_id", structure.ID, "formula", structure.FormulaReduced)

	handle, created, err := s.store.StoreStructure(ctx, structure)
	metrics.SyncDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		slog.Error("Failed to store structure in engine", "structure_id", structure.ID, "error", err)
		metrics.SyncErrors.WithLabelValues(structure.Provider).Inc()
		return err
	}

	outcome := "updated"
	if created {
		outcome = "created"
	}
	slog.Info("Structure synced", "structure_id", structure.ID, "handle", handle, "outcome", outcome)
	metrics.SyncSuccess.WithLabelValues(structure.Provider, outcome).Inc()
	return nil
}

func (s *StructureSyncService) Stop() error {
	return s.consumer.Close()
}
