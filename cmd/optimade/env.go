package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/OptimadeHarvester/cmd/server/factory"
	"github.com/OptimadeHarvester/internal/app"
	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/optimade"
	"github.com/OptimadeHarvester/pkg/config"
	"github.com/google/subcommands"
)

// env is handed to every command through subcommands.Execute.
type env struct {
	cfg    *config.Config
	out    io.Writer
	logger *slog.Logger
}

// extractEnv finds the env among Execute's extra arguments.
func extractEnv(args []interface{}) (*env, bool) {
	for _, a := range args {
		if e, ok := a.(*env); ok {
			return e, true
		}
	}
	return nil, false
}

func (e *env) registry() (*app.RegistryService, error) {
	providerCache, err := factory.NewProviderCache(e.cfg)
	if err != nil {
		return nil, err
	}
	return factory.NewRegistryService(e.cfg, factory.NewExecutor(e.cfg), factory.NewResolver(e.cfg), providerCache), nil
}

func (e *env) client() (*optimade.Client, error) {
	registry, err := e.registry()
	if err != nil {
		return nil, err
	}
	return factory.NewSessionClient(e.cfg, registry, factory.NewExecutor(e.cfg), factory.NewResolver(e.cfg))
}

func exitStatus(err error) subcommands.ExitStatus {
	if errors.Is(err, domain.ErrUsage) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}
