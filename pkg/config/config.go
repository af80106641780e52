package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// HarvestJob is one periodic harvest of a provider.
type HarvestJob struct {
	Provider   string `yaml:"provider"`
	Filter     string `yaml:"filter"`
	MaxResults int    `yaml:"max_results"`
	Converter  string `yaml:"converter"`
}

type Config struct {
	ServerPort        string
	LogLevel          string
	MongoURI          string
	MongoDBName       string
	MongoColl         string
	PollInterval      time.Duration
	BatchSize         int
	WorkerPoolSize    int
	KafkaBrokers      []string
	KafkaTopic        string
	KafkaDLQTopic     string
	ProviderCachePath string
	ProviderIndexURLs []string
	QueryTimeout      time.Duration
	ProbeTimeout      time.Duration
	EmailAddress      string
	StorageRoot       string
	ProfileName       string
	HarvestJobsPath   string
	HarvestJobs       []HarvestJob
	ServiceName       string
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://mongodb:27017"),
		MongoDBName:       getEnv("MONGO_DB_NAME", "optimade"),
		MongoColl:         getEnv("MONGO_COLLECTION", "structures"),
		PollInterval:      getDurationEnv("POLL_INTERVAL", 6*time.Hour),
		BatchSize:         getIntEnv("BATCH_SIZE", 20),
		WorkerPoolSize:    getIntEnv("WORKER_POOL_SIZE", 4),
		KafkaBrokers:      getListEnv("KAFKA_BROKERS", []string{"kafka:29092"}),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "optimade_structures"),
		KafkaDLQTopic:     getEnv("KAFKA_DLQ_TOPIC", "optimade_structures_dlq"),
		ProviderCachePath: getEnv("PROVIDER_CACHE_PATH", "config/optimade_providers.json"),
		ProviderIndexURLs: getListEnv("PROVIDERS_URLS", nil),
		QueryTimeout:      getDurationEnv("QUERY_TIMEOUT", 20*time.Second),
		ProbeTimeout:      getDurationEnv("PROBE_TIMEOUT", 5*time.Second),
		EmailAddress:      getEnv("OPTIMADE_EMAIL", ""),
		StorageRoot:       getEnv("STORAGE_ROOT", ""),
		ProfileName:       getEnv("PROFILE_NAME", "temp_profile"),
		HarvestJobsPath:   getEnv("HARVEST_JOBS_PATH", "config/harvest_jobs.yaml"),
		ServiceName:       getEnv("OTEL_SERVICE_NAME", "optimade-harvester"),
	}
	cfg.HarvestJobs = loadHarvestJobs(cfg.HarvestJobsPath)
	return cfg
}

// DefaultHarvestJobs is used when no jobs file can be read.
func DefaultHarvestJobs() []HarvestJob {
	return []HarvestJob{
		{Provider: "mp", Filter: `elements HAS "Si" AND nelements=1`, MaxResults: 100},
	}
}

func loadHarvestJobs(path string) []HarvestJob {
	jobs, err := LoadHarvestJobs(path)
	if err != nil {
		slog.Warn("Could not load harvest jobs, using default job", "path", path, "error", err)
		return DefaultHarvestJobs()
	}
	return jobs
}

// LoadHarvestJobs reads a YAML list of harvest jobs. Jobs without a provider
// are rejected.
func LoadHarvestJobs(path string) ([]HarvestJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var jobs []HarvestJob
	if err := yaml.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	for i, job := range jobs {
		if job.Provider == "" {
			return nil, fmt.Errorf("%s: job %d has no provider", path, i)
		}
		if job.MaxResults < 0 {
			return nil, fmt.Errorf("%s: job %d has negative max_results", path, i)
		}
	}
	return jobs, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Plain integers are seconds.
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}

// getListEnv splits a comma-separated value, dropping empty items.
func getListEnv(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
