package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/OptimadeHarvester/internal/domain"
)

// FileProviderCache keeps the provider list in a single JSON file. The file is
// read-only during queries and only ever replaced as a whole.
type FileProviderCache struct {
	path string
}

var _ domain.ProviderCache = (*FileProviderCache)(nil)

func NewFileProviderCache(path string) *FileProviderCache {
	return &FileProviderCache{path: path}
}

// Load reads the cache and indexes providers by id. A missing file matches
// domain.ErrNotFound.
func (c *FileProviderCache) Load() (map[string]domain.Provider, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("provider cache %s: %w", c.path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read provider cache: %w", err)
	}

	var providers []domain.Provider
	if err := json.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("failed to decode provider cache %s: %w", c.path, err)
	}

	byID := make(map[string]domain.Provider, len(providers))
	for _, p := range providers {
		if p.ID == "" {
			slog.Warn("Skipping provider without id", "path", c.path, "name", p.Name)
			continue
		}
		byID[p.ID] = p
	}
	return byID, nil
}

// Save regenerates the cache file from scratch through a temp file and rename.
func (c *FileProviderCache) Save(providers []domain.Provider) error {
	if providers == nil {
		providers = []domain.Provider{}
	}
	data, err := json.MarshalIndent(providers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode providers: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to remove temp cache file", "path", tmp.Name(), "error", err)
		}
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write provider cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close provider cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace provider cache: %w", err)
	}

	slog.Info("Provider cache rewritten", "path", c.path, "providers", len(providers))
	return nil
}
