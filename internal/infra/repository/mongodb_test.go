package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMongoRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	mongodbContainer, err := mongodb.Run(ctx, "mongo:6")
	require.NoError(t, err)
	defer func() {
		if err := mongodbContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}()

	endpoint, err := mongodbContainer.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	require.NoError(t, err)
	defer func() {
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("failed to disconnect client: %s", err)
		}
	}()

	repo, err := repository.NewMongoRepository(client, "test_optimade", "structures")
	require.NoError(t, err)

	t.Run("Upsert and GetLastFetched", func(t *testing.T) {
		older := &domain.Structure{
			ID:             "mp/mp-1",
			Provider:       "mp",
			ExternalID:     "mp-1",
			FormulaReduced: "Cs",
			FetchedAt:      time.Now().Add(-time.Hour).Truncate(time.Millisecond).UTC(),
			ContentHash:    "hash1",
		}
		newer := &domain.Structure{
			ID:             "mp/mp-149",
			Provider:       "mp",
			ExternalID:     "mp-149",
			FormulaReduced: "Si",
			Elements:       []string{"Si"},
			Cell:           [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
			PBC:            [3]bool{true, true, true},
			Sites:          []domain.Site{{Symbol: "Si", Kind: "Si", Position: [3]float64{0.25, 0.25, 0.25}}},
			FetchedAt:      time.Now().Truncate(time.Millisecond).UTC(),
			ContentHash:    "hash149",
		}

		require.NoError(t, repo.Upsert(ctx, older))
		require.NoError(t, repo.Upsert(ctx, newer))

		fetched, err := repo.GetLastFetched(ctx, "mp")
		require.NoError(t, err)
		assert.Equal(t, newer.ID, fetched.ID)
		assert.Equal(t, newer.Cell, fetched.Cell)
		assert.Equal(t, newer.Sites, fetched.Sites)
		assert.WithinDuration(t, newer.FetchedAt, fetched.FetchedAt, time.Millisecond)
	})

	t.Run("GetLastFetched unknown provider", func(t *testing.T) {
		_, err := repo.GetLastFetched(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("BulkUpsert and GetContentHashes", func(t *testing.T) {
		structures := []domain.Structure{
			{ID: "cod/1", Provider: "cod", ExternalID: "1", ContentHash: "h1", FetchedAt: time.Now()},
			{ID: "cod/2", Provider: "cod", ExternalID: "2", ContentHash: "h2", FetchedAt: time.Now()},
		}

		require.NoError(t, repo.BulkUpsert(ctx, structures))

		hashes, err := repo.GetContentHashes(ctx, []string{"cod/1", "cod/2", "non-existent"})
		require.NoError(t, err)
		assert.Equal(t, "h1", hashes["cod/1"])
		assert.Equal(t, "h2", hashes["cod/2"])
		assert.Len(t, hashes, 2)

		n, err := repo.CountByProvider(ctx, "cod")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}
