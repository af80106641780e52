package gateway

import (
	"context"
	"log/slog"

	"github.com/OptimadeHarvester/internal/domain"
)

// LogStore is a dry-run sync target: it logs each structure and keeps nothing.
// The server uses it when no engine storage root is configured.
type LogStore struct{}

var _ domain.StructureStore = (*LogStore)(nil)

func NewLogStore() *LogStore {
	return &LogStore{}
}

func (g *LogStore) StoreStructure(ctx context.Context, s *domain.Structure) (string, bool, error) {
	slog.Info("Engine sync (dry run)", "structure_id", s.ID, "provider", s.Provider, "formula", s.FormulaReduced, "nsites", len(s.Sites))
	return s.ID, false, nil
}
