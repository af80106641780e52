package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/OptimadeHarvester/internal/infra/engine"
	"github.com/google/subcommands"
)

type bootstrapCommand struct {
	profile     string
	wipe        bool
	computer    bool
	code        bool
	sssp        bool
	silicon     bool
	cpus        int
	executable  string
	cutoffsPath string
}

var _ subcommands.Command = &bootstrapCommand{}

func (*bootstrapCommand) Name() string     { return "bootstrap" }
func (*bootstrapCommand) Synopsis() string { return "populate a local engine profile." }
func (*bootstrapCommand) Usage() string {
	return `bootstrap [flags]:
  Open (or create) the engine profile under STORAGE_ROOT and add the
  requested computer, code, pseudopotential family and silicon structure.
  Running it again reuses what is already there.
`
}

func (c *bootstrapCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.profile, "profile", "", "profile name (default PROFILE_NAME or "+engine.DefaultProfile+")")
	f.BoolVar(&c.wipe, "wipe", false, "remove the profile before populating it")
	f.BoolVar(&c.computer, "computer", true, "add the local computer")
	f.BoolVar(&c.code, "code", false, "add the code, looking the executable up on PATH")
	f.BoolVar(&c.sssp, "sssp", false, "add the SSSP pseudopotential family")
	f.BoolVar(&c.silicon, "si", false, "add the silicon test structure")
	f.IntVar(&c.cpus, "cpus", 0, "MPI processes per machine (default min(2, physical cores))")
	f.StringVar(&c.executable, "exe", engine.DefaultExecutable, "code executable")
	f.StringVar(&c.cutoffsPath, "cutoffs", "", "SSSP metadata JSON with per-element cutoffs")
}

func (c *bootstrapCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e, ok := extractEnv(args)
	if !ok {
		return subcommands.ExitFailure
	}
	profile := c.profile
	if profile == "" {
		profile = e.cfg.ProfileName
	}

	loaded, err := engine.Bootstrap(ctx, engine.Options{
		StorageRoot:    e.cfg.StorageRoot,
		Profile:        profile,
		WipePrevious:   c.wipe,
		AddComputer:    c.computer,
		AddCode:        c.code,
		AddSssp:        c.sssp,
		AddStructureSi: c.silicon,
		CPUCount:       c.cpus,
		Executable:     c.executable,
		CutoffsPath:    c.cutoffsPath,
	})
	if err != nil {
		e.logger.Error("Bootstrap failed", "error", err)
		return exitStatus(err)
	}

	fmt.Fprintf(e.out, "profile\t%s\n", loaded.Engine.Profile())
	fmt.Fprintf(e.out, "workdir\t%s\n", loaded.WorkDir)
	fmt.Fprintf(e.out, "cpus\t%d\n", loaded.CPUCount)
	if loaded.Computer != nil {
		fmt.Fprintf(e.out, "computer\t%s\t%s\n", loaded.Computer.Label, loaded.Computer.UUID)
	}
	if loaded.Code != nil {
		fmt.Fprintf(e.out, "code\t%s\t%s\n", loaded.Code.FullLabel(), loaded.Code.UUID)
	}
	if loaded.Pseudos != nil {
		fmt.Fprintf(e.out, "pseudos\t%s\t%s\n", loaded.Pseudos.Label, loaded.Pseudos.UUID)
	}
	if loaded.Structure != nil {
		fmt.Fprintf(e.out, "structure\t%s\t%s\n", loaded.Structure.Structure.ID, loaded.Structure.UUID)
	}
	return subcommands.ExitSuccess
}
