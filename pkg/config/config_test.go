package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Env(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("PROVIDERS_URLS", "https://index.example.org/v1/links")
	t.Setenv("QUERY_TIMEOUT", "30")
	t.Setenv("PROBE_TIMEOUT", "2s")
	t.Setenv("HARVEST_JOBS_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://index.example.org/v1/links"}, cfg.ProviderIndexURLs)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, "optimade_structures", cfg.KafkaTopic)
	assert.Equal(t, DefaultHarvestJobs(), cfg.HarvestJobs)
}

func TestLoadHarvestJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- provider: mp
  filter: 'elements HAS "Si"'
  max_results: 50
- provider: cod
  converter: lenient
`), 0o644))

	jobs, err := LoadHarvestJobs(path)
	require.NoError(t, err)
	assert.Equal(t, []HarvestJob{
		{Provider: "mp", Filter: `elements HAS "Si"`, MaxResults: 50},
		{Provider: "cod", Converter: "lenient"},
	}, jobs)
}

func TestLoadHarvestJobs_Invalid(t *testing.T) {
	dir := t.TempDir()

	noProvider := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(noProvider, []byte("- filter: nsites=2\n"), 0o644))
	_, err := LoadHarvestJobs(noProvider)
	assert.ErrorContains(t, err, "no provider")

	garbage := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(garbage, []byte("provider: [\n"), 0o644))
	_, err = LoadHarvestJobs(garbage)
	assert.Error(t, err)
}
