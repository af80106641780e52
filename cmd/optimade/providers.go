package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"
)

type providersCommand struct{}

var _ subcommands.Command = &providersCommand{}

func (*providersCommand) Name() string     { return "providers" }
func (*providersCommand) Synopsis() string { return "list the cached provider databases." }
func (*providersCommand) Usage() string {
	return `providers:
  Print id, name and base URL of every cached provider.
`
}
func (*providersCommand) SetFlags(*flag.FlagSet) {}

func (c *providersCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e, ok := extractEnv(args)
	if !ok {
		return subcommands.ExitFailure
	}
	client, err := e.client()
	if err != nil {
		e.logger.Error("Failed to load providers", "error", err)
		return exitStatus(err)
	}

	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBASE URL")
	for _, p := range client.Providers() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.BaseURL)
	}
	if err := w.Flush(); err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type refreshCommand struct{}

var _ subcommands.Command = &refreshCommand{}

func (*refreshCommand) Name() string     { return "refresh-providers" }
func (*refreshCommand) Synopsis() string { return "rebuild the provider cache from the providers index." }
func (*refreshCommand) Usage() string {
	return `refresh-providers:
  Fetch the providers index, follow every child database link and rewrite
  the provider cache. The cache is kept when no database resolves.
`
}
func (*refreshCommand) SetFlags(*flag.FlagSet) {}

func (c *refreshCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e, ok := extractEnv(args)
	if !ok {
		return subcommands.ExitFailure
	}
	registry, err := e.registry()
	if err != nil {
		e.logger.Error("Failed to open provider cache", "error", err)
		return exitStatus(err)
	}
	providers, err := registry.Refresh(ctx)
	if err != nil {
		e.logger.Error("Failed to refresh providers", "error", err)
		return exitStatus(err)
	}
	fmt.Fprintf(e.out, "%d providers written to %s\n", len(providers), e.cfg.ProviderCachePath)
	return subcommands.ExitSuccess
}
