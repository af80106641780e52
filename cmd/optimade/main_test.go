package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/optimade/mockprovider"
	"github.com/OptimadeHarvester/pkg/config"
	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T, baseURL string) (*env, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "providers.json")
	data, err := json.Marshal([]domain.Provider{{ID: "mock", Name: "Mock", BaseURL: baseURL}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cachePath, data, 0o644))

	out := &bytes.Buffer{}
	return &env{
		cfg: &config.Config{
			ProviderCachePath: cachePath,
			QueryTimeout:      time.Second,
			ProbeTimeout:      time.Second,
			StorageRoot:       dir,
			ProfileName:       "cli",
		},
		out:    out,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, out
}

func run(t *testing.T, cmd subcommands.Command, e *env, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	require.NoError(t, fs.Parse(args))
	return cmd.Execute(context.Background(), fs, e)
}

func newMockServer(t *testing.T, n int) *httptest.Server {
	t.Helper()
	records := make([]json.RawMessage, 0, n+1)
	for i := 0; i < n; i++ {
		records = append(records, mockprovider.Silicon(fmt.Sprintf("si-%d", i)))
	}
	records = append(records, mockprovider.Disordered("bad"))
	server := httptest.NewServer(mockprovider.New(mockprovider.Options{
		Versions:  []string{"1"},
		APIPrefix: "/v1",
		Records:   records,
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStructuresCommand_WritesJSONLines(t *testing.T) {
	server := newMockServer(t, 5)
	e, out := newTestEnv(t, server.URL)

	status := run(t, &structuresCommand{}, e, "-max", "3", "-batch", "2", "mock")
	require.Equal(t, subcommands.ExitSuccess, status)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	var first domain.Structure
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "mock", first.Provider)
	assert.Equal(t, "si-0", first.ExternalID)
}

func TestStructuresCommand_SkipsUnconvertible(t *testing.T) {
	server := newMockServer(t, 2)
	e, out := newTestEnv(t, server.URL)

	status := run(t, &structuresCommand{}, e, "-max", "0", "mock")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 2)
}

func TestStructuresCommand_UsageErrors(t *testing.T) {
	e, _ := newTestEnv(t, "http://127.0.0.1:1")

	assert.Equal(t, subcommands.ExitUsageError, run(t, &structuresCommand{}, e))
	assert.Equal(t, subcommands.ExitUsageError, run(t, &structuresCommand{}, e, "-converter", "nope", "mock"))
}

func TestCountCommand_PerProvider(t *testing.T) {
	server := newMockServer(t, 4)
	e, out := newTestEnv(t, server.URL)

	status := run(t, &countCommand{}, e, "-filter", `elements HAS "Si"`, "mock")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Equal(t, "mock\t5\n", out.String())
}

func TestCountCommand_UnknownProviderFails(t *testing.T) {
	server := newMockServer(t, 1)
	e, _ := newTestEnv(t, server.URL)

	assert.Equal(t, subcommands.ExitFailure, run(t, &countCommand{}, e, "missing"))
}

func TestProvidersCommand(t *testing.T) {
	e, out := newTestEnv(t, "https://example.org/optimade")

	require.Equal(t, subcommands.ExitSuccess, run(t, &providersCommand{}, e))
	assert.Contains(t, out.String(), "mock")
	assert.Contains(t, out.String(), "https://example.org/optimade")
}

func TestBootstrapCommand(t *testing.T) {
	e, out := newTestEnv(t, "")

	require.Equal(t, subcommands.ExitSuccess, run(t, &bootstrapCommand{}, e, "-si", "-cpus", "1"))
	assert.Contains(t, out.String(), "profile\tcli\n")
	assert.Contains(t, out.String(), "cpus\t1\n")
	assert.Contains(t, out.String(), "computer\tlocal_direct\t")
	assert.Contains(t, out.String(), "structure\tlocal/si\t")

	e.cfg.StorageRoot = ""
	assert.Equal(t, subcommands.ExitUsageError, run(t, &bootstrapCommand{}, e))
}
