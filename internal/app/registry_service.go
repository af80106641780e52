package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/optimade"
)

// RegistryService rebuilds the local provider cache from the providers index.
type RegistryService struct {
	querier   optimade.Querier
	resolver  optimade.URLResolver
	cache     domain.ProviderCache
	indexURLs []string
}

func NewRegistryService(querier optimade.Querier, resolver optimade.URLResolver, cache domain.ProviderCache, indexURLs []string) *RegistryService {
	return &RegistryService{
		querier:   querier,
		resolver:  resolver,
		cache:     cache,
		indexURLs: indexURLs,
	}
}

// Refresh fetches every reachable provider database and rewrites the cache.
// The cache is left untouched when nothing resolved.
func (s *RegistryService) Refresh(ctx context.Context) ([]domain.Provider, error) {
	providers, err := optimade.FetchProviders(ctx, s.querier, s.resolver, s.indexURLs)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, errors.New("no provider database resolved, keeping existing cache")
	}
	if err := s.cache.Save(providers); err != nil {
		return nil, fmt.Errorf("failed to save provider cache: %w", err)
	}
	slog.Info("Provider cache refreshed", "providers", len(providers))
	return providers, nil
}

// Load returns the cached providers.
func (s *RegistryService) Load() (map[string]domain.Provider, error) {
	return s.cache.Load()
}
