package app

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/converter"
	"github.com/OptimadeHarvester/internal/infra/optimade"
	"github.com/OptimadeHarvester/internal/infra/optimade/mockprovider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryService_Structures(t *testing.T) {
	client, srv := newMockSession(t,
		mockprovider.Silicon("a"),
		mockprovider.Disordered("b"),
		mockprovider.Silicon("c"),
		mockprovider.Silicon("d"),
	)
	svc := NewQueryService(client)

	page, err := svc.Structures(context.Background(), "mock", "", 2, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"mock/a", "mock/c"}, ids(page.Structures))
	assert.Equal(t, 3, page.Offset)
	assert.Equal(t, 1, page.Skipped)
	require.Len(t, srv.RequestsTo("/structures"), 1)
	assert.Equal(t, "2", srv.RequestsTo("/structures")[0].Get("page_limit"))
}

func TestQueryService_StructuresRejectsBadBounds(t *testing.T) {
	client, srv := newMockSession(t)
	svc := NewQueryService(client)

	_, err := svc.Structures(context.Background(), "mock", "", MaxPageSize+1, 0)
	assert.ErrorIs(t, err, domain.ErrUsage)
	_, err = svc.Structures(context.Background(), "mock", "", -1, 0)
	assert.ErrorIs(t, err, domain.ErrUsage)
	assert.Empty(t, srv.Requests())
}

func TestQueryService_CountAllSkipsFailingProviders(t *testing.T) {
	alive := httptest.NewServer(mockprovider.New(mockprovider.Options{
		APIPrefix: "/v1",
		Records:   []json.RawMessage{mockprovider.Silicon("a"), mockprovider.Silicon("b")},
	}))
	defer alive.Close()
	dead := httptest.NewServer(mockprovider.New(mockprovider.Options{}))
	deadURL := dead.URL + "/v1"
	dead.Close()

	client := optimade.NewClient(map[string]domain.Provider{
		"alive": {ID: "alive", BaseURL: alive.URL + "/v1"},
		"dead":  {ID: "dead", BaseURL: deadURL},
	}, passthroughResolver{}, optimade.NewExecutor(time.Second), converter.NewOptimadeConverter())

	result := NewQueryService(client).CountAll(context.Background(), `elements HAS "Si"`)

	assert.Equal(t, map[string]int{"alive": 2}, result.Counts)
	assert.Equal(t, 2, result.Total)
	require.Contains(t, result.Skipped, "dead")
	assert.Contains(t, result.Skipped["dead"], deadURL)
}

func TestSkipReason(t *testing.T) {
	assert.Equal(t, "unresolved", skipReason(domain.ErrUnresolved))
	assert.Equal(t, "transport", skipReason(&optimade.QueryError{URL: "u", Err: context.DeadlineExceeded}))
	assert.Equal(t, "not_found", skipReason(domain.ErrNotFound))
	assert.Equal(t, "rejected", skipReason(assert.AnError))
}
