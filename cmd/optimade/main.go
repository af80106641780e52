// Command optimade queries OPTIMADE providers and manages the local engine
// profile from the command line.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/OptimadeHarvester/pkg/config"
	"github.com/OptimadeHarvester/pkg/logging"
	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&providersCommand{}, "providers")
	subcommands.Register(&refreshCommand{}, "providers")
	subcommands.Register(&countCommand{}, "query")
	subcommands.Register(&structuresCommand{}, "query")
	subcommands.Register(&bootstrapCommand{}, "engine")

	flag.Parse()

	cfg := config.Load()
	logger := logging.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	status := subcommands.Execute(ctx, &env{cfg: cfg, out: os.Stdout, logger: logger})
	stop()
	os.Exit(int(status))
}
