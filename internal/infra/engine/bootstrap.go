package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/shirou/gopsutil/v4/cpu"
)

const (
	DefaultProfile    = "temp_profile"
	DefaultExecutable = "pw.x"
	ComputerLabel     = "local_direct"
)

// Options selects what Bootstrap puts into the profile.
type Options struct {
	StorageRoot  string
	Profile      string
	WipePrevious bool

	AddComputer    bool
	AddCode        bool
	AddSssp        bool
	AddStructureSi bool

	// CPUCount defaults to min(2, physical cores).
	CPUCount int
	// Executable is looked up on PATH when AddCode is set.
	Executable string
	Sssp       SsspConfiguration
	// CutoffsPath is an SSSP metadata JSON file keyed by element.
	CutoffsPath string
}

// Loaded is what Bootstrap produced. Nil members were not requested.
type Loaded struct {
	Engine    *LocalEngine
	Computer  *Computer
	Code      *Code
	Pseudos   *PseudoFamily
	Structure *StoredStructure
	CPUCount  int
	WorkDir   string
	ExecPath  string
}

// Bootstrap opens a profile and populates it. Every step is get-or-create, so
// calling it repeatedly with WipePrevious unset creates no duplicates.
func Bootstrap(ctx context.Context, opts Options) (*Loaded, error) {
	if opts.Profile == "" {
		opts.Profile = DefaultProfile
	}
	if opts.Executable == "" {
		opts.Executable = DefaultExecutable
	}
	if opts.Sssp == (SsspConfiguration{}) {
		opts.Sssp = DefaultSssp
	}

	eng, err := NewLocalEngine(opts.StorageRoot, opts.Profile)
	if err != nil {
		return nil, err
	}
	if opts.WipePrevious {
		if err := eng.Wipe(); err != nil {
			return nil, err
		}
	}

	loaded := &Loaded{
		Engine:   eng,
		CPUCount: opts.CPUCount,
		WorkDir:  eng.WorkDir(),
	}
	if loaded.CPUCount <= 0 {
		loaded.CPUCount = defaultCPUCount()
	}

	if opts.AddCode {
		path, err := exec.LookPath(opts.Executable)
		if err != nil {
			return nil, fmt.Errorf("%s not found in PATH: %w", opts.Executable, err)
		}
		loaded.ExecPath = path
	}

	if opts.AddComputer {
		res, err := eng.EnsureComputer(ctx, Computer{
			Label:              ComputerLabel,
			Description:        "local computer with direct scheduler",
			Hostname:           "localhost",
			WorkDir:            loaded.WorkDir,
			TransportType:      "core.local",
			SchedulerType:      "core.direct",
			MPIProcsPerMachine: loaded.CPUCount,
		})
		if err != nil {
			return nil, err
		}
		logUpsert("computer", res.Handle.Label, res.Created)
		loaded.Computer = &res.Handle
	}

	if opts.AddCode && loaded.Computer != nil {
		res, err := eng.EnsureCode(ctx, Code{
			Label:       opts.Executable,
			Description: opts.Executable + " code on local computer",
			InputPlugin: "quantumespresso.pw",
			Computer:    loaded.Computer.Label,
			ExecPath:    loaded.ExecPath,
			PrependText: "export OMP_NUM_THREADS=1",
		})
		if err != nil {
			return nil, err
		}
		logUpsert("code", res.Handle.FullLabel(), res.Created)
		loaded.Code = &res.Handle
	}

	if opts.AddSssp {
		cutoffs, err := LoadCutoffs(opts.CutoffsPath)
		if err != nil {
			return nil, err
		}
		res, err := eng.EnsurePseudoFamily(ctx, opts.Sssp, cutoffs)
		if err != nil {
			return nil, err
		}
		logUpsert("pseudo family", res.Handle.Label, res.Created)
		loaded.Pseudos = &res.Handle
	}

	if opts.AddStructureSi {
		si := SiliconStructure()
		if _, _, err := eng.StoreStructure(ctx, &si); err != nil {
			return nil, err
		}
		stored, err := eng.Structure(ctx, si.ID)
		if err != nil {
			return nil, err
		}
		loaded.Structure = &stored
	}

	return loaded, nil
}

// LoadCutoffs reads the cutoff_wfc and cutoff_rho of every element from an SSSP
// metadata file. An empty path yields no cutoffs.
func LoadCutoffs(path string) (map[string]Cutoff, error) {
	if path == "" {
		return map[string]Cutoff{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSSP metadata: %w", err)
	}
	var cutoffs map[string]Cutoff
	if err := json.Unmarshal(data, &cutoffs); err != nil {
		return nil, fmt.Errorf("failed to parse SSSP metadata %s: %w", path, err)
	}
	return cutoffs, nil
}

// SiliconStructure is the two-atom diamond silicon primitive cell.
func SiliconStructure() domain.Structure {
	s := domain.Structure{
		ID:             "local/si",
		Provider:       "local",
		ExternalID:     "si",
		FormulaReduced: "Si",
		Elements:       []string{"Si"},
		Cell: [3][3]float64{
			{3.7881476451529, 0.0, 0.0},
			{1.8940738225764, 3.2806320939886, 0.0},
			{1.8940738225764, 1.0935440313296, 3.0930096003167},
		},
		PBC: [3]bool{true, true, true},
		Sites: []domain.Site{
			{Symbol: "Si", Kind: "Si", Position: [3]float64{0, 0, 0}},
			{Symbol: "Si", Kind: "Si", Position: [3]float64{1.8940738225764, 1.0935440313296, 0.77325240007918}},
		},
	}
	s.ContentHash = s.ComputeHash()
	return s
}

func defaultCPUCount() int {
	n, err := cpu.Counts(false)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	return min(2, n)
}

func logUpsert(kind, label string, created bool) {
	if created {
		slog.Info("Created "+kind, "label", label)
		return
	}
	slog.Debug("Reusing existing "+kind, "label", label)
}
