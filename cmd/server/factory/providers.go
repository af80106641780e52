package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/OptimadeHarvester/internal/app"
	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/cache"
	"github.com/OptimadeHarvester/internal/infra/converter"
	"github.com/OptimadeHarvester/internal/infra/optimade"
	"github.com/OptimadeHarvester/pkg/config"
)

// NewProviderCache opens the provider cache file.
func NewProviderCache(cfg *config.Config) (domain.ProviderCache, error) {
	if cfg.ProviderCachePath == "" {
		return nil, errors.New("provider cache path not configured")
	}
	return cache.NewFileProviderCache(cfg.ProviderCachePath), nil
}

// NewResolver creates the versioned base URL resolver.
func NewResolver(cfg *config.Config) *optimade.Resolver {
	return optimade.NewResolver(cfg.QueryTimeout, cfg.ProbeTimeout)
}

// NewExecutor creates the query executor.
func NewExecutor(cfg *config.Config) *optimade.Executor {
	return optimade.NewExecutor(cfg.QueryTimeout)
}

// NewRegistryService creates the provider cache refresher.
func NewRegistryService(cfg *config.Config, executor *optimade.Executor, resolver *optimade.Resolver, providerCache domain.ProviderCache) *app.RegistryService {
	return app.NewRegistryService(executor, resolver, providerCache, cfg.ProviderIndexURLs)
}

// NewSessionClient builds the query session over the cached providers. A
// missing cache is rebuilt from the providers index once.
func NewSessionClient(cfg *config.Config, registry *app.RegistryService, executor *optimade.Executor, resolver *optimade.Resolver) (*optimade.Client, error) {
	providers, err := registry.Load()
	if errors.Is(err, domain.ErrNotFound) {
		slog.Info("Provider cache missing, fetching providers index", "path", cfg.ProviderCachePath)
		if _, err = registry.Refresh(context.Background()); err == nil {
			providers, err = registry.Load()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}

	opts := []optimade.ClientOption{optimade.WithTimeout(cfg.QueryTimeout)}
	if cfg.EmailAddress != "" {
		opts = append(opts, optimade.WithEmailAddress(cfg.EmailAddress))
	}
	slog.Info("Loaded providers", "count", len(providers))
	return optimade.NewClient(providers, resolver, executor, converter.NewOptimadeConverter(), opts...), nil
}

// NewHarvestJobs turns configured jobs into harvest jobs, skipping those that
// name an unknown provider or converter.
func NewHarvestJobs(cfg *config.Config, client *optimade.Client) ([]app.HarvestJob, error) {
	var jobs []app.HarvestJob
	for _, j := range cfg.HarvestJobs {
		if _, err := client.Provider(j.Provider); err != nil {
			slog.Warn("Skipping harvest job", "provider", j.Provider, "error", err)
			continue
		}
		conv, err := converter.Get(j.Converter)
		if err != nil {
			slog.Warn("Skipping harvest job", "provider", j.Provider, "error", err)
			continue
		}
		jobs = append(jobs, app.HarvestJob{
			Provider:   j.Provider,
			Filter:     j.Filter,
			MaxResults: j.MaxResults,
			Converter:  conv,
		})
		slog.Info("Registered harvest job", "provider", j.Provider, "filter", j.Filter, "max_results", j.MaxResults)
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("no valid harvest jobs configured")
	}
	return jobs, nil
}
