package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProviderCache_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "optimade_providers.json")
	c := NewFileProviderCache(path)

	providers := []domain.Provider{
		{ID: "mp", Name: "Materials Project", BaseURL: "https://optimade.materialsproject.org/v1"},
		{ID: "cod", Name: "COD", BaseURL: "https://www.crystallography.net/cod/optimade/v1"},
	}
	require.NoError(t, c.Save(providers))

	loaded, err := c.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
	assert.Equal(t, "Materials Project", loaded["mp"].Name)

	// Saving again replaces the file entirely.
	require.NoError(t, c.Save([]domain.Provider{{ID: "odbx", Name: "odbx"}}))
	loaded, err = c.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.Contains(t, loaded, "odbx")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileProviderCache_MissingFileIsNotFound(t *testing.T) {
	c := NewFileProviderCache(filepath.Join(t.TempDir(), "absent.json"))

	_, err := c.Load()
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFileProviderCache_CorruptFileIsNotNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileProviderCache(path).Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}
