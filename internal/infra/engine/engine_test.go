package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *LocalEngine {
	t.Helper()
	eng, err := NewLocalEngine(t.TempDir(), "test")
	require.NoError(t, err)
	return eng
}

func TestNewLocalEngine_RequiresRootAndProfile(t *testing.T) {
	_, err := NewLocalEngine("", "p")
	assert.ErrorIs(t, err, domain.ErrUsage)

	_, err = NewLocalEngine(t.TempDir(), "")
	assert.ErrorIs(t, err, domain.ErrUsage)
}

func TestEnsureComputer_GetOrCreate(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.EnsureComputer(ctx, Computer{Label: "local_direct", Hostname: "localhost", MPIProcsPerMachine: 2})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.NotEmpty(t, first.Handle.UUID)

	second, err := eng.EnsureComputer(ctx, Computer{Label: "local_direct", Hostname: "elsewhere"})
	require.NoError(t, err)
	assert.True(t, second.Found())
	assert.Equal(t, first.Handle, second.Handle, "existing computer is returned unchanged")
}

func TestEnsureCode_RequiresComputer(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.EnsureCode(ctx, Code{Label: "pw.x", Computer: "local_direct"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = eng.EnsureComputer(ctx, Computer{Label: "local_direct"})
	require.NoError(t, err)

	res, err := eng.EnsureCode(ctx, Code{Label: "pw.x", Computer: "local_direct", ExecPath: "/usr/bin/pw.x"})
	require.NoError(t, err)
	assert.True(t, res.Created)

	code, err := eng.Code(ctx, "pw.x@local_direct")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/pw.x", code.ExecPath)
}

func TestLookup_CorruptDocumentIsNotNotFound(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	path := eng.path(kindComputers, "broken")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, err := eng.Computer(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	_, err = eng.EnsureComputer(ctx, Computer{Label: "broken"})
	assert.Error(t, err, "a corrupt node is not silently recreated")
}

func TestStoreStructure(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	si := SiliconStructure()

	handle, created, err := eng.StoreStructure(ctx, &si)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := eng.StoreStructure(ctx, &si)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, handle, again)

	changed := si
	changed.Sites = append([]domain.Site(nil), si.Sites...)
	changed.Sites[1].Position[2] = 1.0
	changed.ContentHash = changed.ComputeHash()
	third, created, err := eng.StoreStructure(ctx, &changed)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, handle, third, "updates keep the node identity")

	stored, err := eng.Structure(ctx, si.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.Structure.Sites[1].Position[2])
}

func TestStoreStructure_KeyWithSlash(t *testing.T) {
	eng := newTestEngine(t)
	s := domain.Structure{ID: "mp/mp-149", Provider: "mp", ExternalID: "mp-149"}

	_, created, err := eng.StoreStructure(context.Background(), &s)
	require.NoError(t, err)
	assert.True(t, created)

	entries, err := os.ReadDir(filepath.Join(eng.Dir(), kindStructures))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mp%2Fmp-149.json", entries[0].Name())
}

func TestWipe(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	_, err := eng.EnsureComputer(ctx, Computer{Label: "local_direct"})
	require.NoError(t, err)

	require.NoError(t, eng.Wipe())

	_, err = eng.Computer(ctx, "local_direct")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSsspLabel(t *testing.T) {
	assert.Equal(t, "SSSP/1.1/PBE/efficiency", DefaultSssp.Label())
	assert.Equal(t, "SSSP/1.3/PBEsol/precision", SsspConfiguration{Version: "1.3", Functional: "PBEsol", Protocol: "precision"}.Label())
}

func TestBootstrap_Idempotent(t *testing.T) {
	root := t.TempDir()
	cutoffs := filepath.Join(root, "sssp.json")
	require.NoError(t, os.WriteFile(cutoffs, []byte(`{"Si":{"filename":"Si.pbe.UPF","cutoff_wfc":30,"cutoff_rho":240}}`), 0o644))

	opts := Options{
		StorageRoot:    root,
		AddComputer:    true,
		AddSssp:        true,
		AddStructureSi: true,
		CPUCount:       1,
		CutoffsPath:    cutoffs,
	}

	first, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)
	require.NotNil(t, first.Computer)
	require.NotNil(t, first.Pseudos)
	require.NotNil(t, first.Structure)
	assert.Nil(t, first.Code)
	assert.Equal(t, DefaultProfile, first.Engine.Profile())
	assert.Equal(t, 1, first.Computer.MPIProcsPerMachine)
	assert.Equal(t, "SSSP/1.1/PBE/efficiency", first.Pseudos.Label)
	assert.Equal(t, Cutoff{Wavefunction: 30, ChargeDensity: 240}, first.Pseudos.Cutoffs["Si"])
	assert.Len(t, first.Structure.Structure.Sites, 2)

	second, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first.Computer.UUID, second.Computer.UUID)
	assert.Equal(t, first.Pseudos.UUID, second.Pseudos.UUID)
	assert.Equal(t, first.Structure.UUID, second.Structure.UUID)

	opts.WipePrevious = true
	wiped, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)
	assert.NotEqual(t, first.Computer.UUID, wiped.Computer.UUID)
}

func TestBootstrap_CodeNeedsExecutable(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := Bootstrap(context.Background(), Options{
		StorageRoot: t.TempDir(),
		AddComputer: true,
		AddCode:     true,
		Executable:  "pw.x",
	})
	assert.ErrorContains(t, err, "pw.x not found in PATH")

	loaded, err := Bootstrap(context.Background(), Options{StorageRoot: t.TempDir(), AddComputer: true})
	require.NoError(t, err)
	assert.Empty(t, loaded.ExecPath)
	assert.GreaterOrEqual(t, loaded.CPUCount, 1)
	assert.LessOrEqual(t, loaded.CPUCount, 2)
}

func TestBootstrap_CodeFromPath(t *testing.T) {
	bin := t.TempDir()
	exe := filepath.Join(bin, "pw.x")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	t.Setenv("PATH", bin)

	loaded, err := Bootstrap(context.Background(), Options{StorageRoot: t.TempDir(), AddComputer: true, AddCode: true})
	require.NoError(t, err)
	require.NotNil(t, loaded.Code)
	assert.Equal(t, exe, loaded.Code.ExecPath)
	assert.Equal(t, "pw.x@local_direct", loaded.Code.FullLabel())
}
