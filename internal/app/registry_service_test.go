package app

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/optimade"
	"github.com/OptimadeHarvester/internal/infra/optimade/mockprovider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegistryService_RefreshSavesResolvedDatabases(t *testing.T) {
	db := httptest.NewServer(mockprovider.New(mockprovider.Options{Versions: []string{"1"}, APIPrefix: "/v1"}))
	defer db.Close()
	provider := httptest.NewServer(mockprovider.New(mockprovider.Options{
		Versions:  []string{"1"},
		APIPrefix: "/v1",
		Links:     []json.RawMessage{mockprovider.Link("main", "child", db.URL)},
	}))
	defer provider.Close()
	index := httptest.NewServer(mockprovider.New(mockprovider.Options{
		Links: []json.RawMessage{mockprovider.Link("mock", "external", provider.URL)},
	}))
	defer index.Close()

	cache := new(MockProviderCache)
	cache.On("Save", mock.MatchedBy(func(ps []domain.Provider) bool {
		return len(ps) == 1 && ps[0].ID == "main" && ps[0].BaseURL == db.URL+"/v1"
	})).Return(nil)

	svc := NewRegistryService(optimade.NewExecutor(time.Second), optimade.NewResolver(time.Second, time.Second), cache, []string{index.URL + "/links"})
	providers, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, providers, 1)
	cache.AssertExpectations(t)
}

func TestRegistryService_KeepsCacheWhenNothingResolves(t *testing.T) {
	index := httptest.NewServer(mockprovider.New(mockprovider.Options{}))
	defer index.Close()

	cache := new(MockProviderCache)
	svc := NewRegistryService(optimade.NewExecutor(time.Second), optimade.NewResolver(time.Second, time.Second), cache, []string{index.URL + "/links"})

	_, err := svc.Refresh(context.Background())
	assert.Error(t, err)
	cache.AssertNotCalled(t, "Save", mock.Anything)
}
