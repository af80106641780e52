package app

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/converter"
	"github.com/OptimadeHarvester/internal/infra/optimade"
	"github.com/OptimadeHarvester/internal/infra/optimade/mockprovider"
	"github.com/OptimadeHarvester/internal/infra/queue"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

var _ domain.Repository = (*MockRepository)(nil)

func (m *MockRepository) Upsert(ctx context.Context, structure *domain.Structure) error {
	args := m.Called(ctx, structure)
	return args.Error(0)
}

func (m *MockRepository) BulkUpsert(ctx context.Context, structures []domain.Structure) error {
	// Copy: the caller reuses the batch slice.
	args := m.Called(ctx, append([]domain.Structure(nil), structures...))
	return args.Error(0)
}

func (m *MockRepository) GetLastFetched(ctx context.Context, provider string) (*domain.Structure, error) {
	args := m.Called(ctx, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Structure), args.Error(1)
}

func (m *MockRepository) CountByProvider(ctx context.Context, provider string) (int64, error) {
	args := m.Called(ctx, provider)
	return args.Get(0).(int64), args.Error(1)
}

// allowStoredReport accepts the bookkeeping reads issued after every harvest.
func (m *MockRepository) allowStoredReport() {
	m.On("CountByProvider", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()
	m.On("GetLastFetched", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound).Maybe()
}

func (m *MockRepository) GetContentHashes(ctx context.Context, ids []string) (map[string]string, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type MockEventProducer struct {
	mock.Mock
}

var _ domain.EventProducer = (*MockEventProducer)(nil)

func (m *MockEventProducer) Publish(ctx context.Context, structure *domain.Structure) error {
	args := m.Called(ctx, structure)
	return args.Error(0)
}

func (m *MockEventProducer) PublishBatch(ctx context.Context, structures []domain.Structure) error {
	args := m.Called(ctx, append([]domain.Structure(nil), structures...))
	return args.Error(0)
}

func (m *MockEventProducer) Close() error {
	return m.Called().Error(0)
}

type MockStructureStore struct {
	mock.Mock
}

func (m *MockStructureStore) StoreStructure(ctx context.Context, structure *domain.Structure) (string, bool, error) {
	args := m.Called(ctx, structure)
	return args.String(0), args.Bool(1), args.Error(2)
}

type MockProviderCache struct {
	mock.Mock
}

func (m *MockProviderCache) Load() (map[string]domain.Provider, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Provider), args.Error(1)
}

func (m *MockProviderCache) Save(providers []domain.Provider) error {
	return m.Called(providers).Error(0)
}

type MockEventConsumer struct {
	mock.Mock
	events []domain.Structure
}

func (m *MockEventConsumer) Start(ctx context.Context, handler queue.MessageHandler) {
	m.Called(ctx)
	for i := range m.events {
		_ = handler(ctx, &m.events[i])
	}
}

func (m *MockEventConsumer) Close() error {
	return m.Called().Error(0)
}

// passthroughResolver treats every base URL as already versioned.
type passthroughResolver struct{}

func (passthroughResolver) Resolve(_ context.Context, baseURL string) (string, error) {
	return baseURL, nil
}

// countingResolver is a passthroughResolver that counts resolutions.
type countingResolver struct {
	calls atomic.Int32
}

func (r *countingResolver) Resolve(_ context.Context, baseURL string) (string, error) {
	r.calls.Add(1)
	return baseURL, nil
}

// newMockSession serves records from a mock provider registered as "mock".
func newMockSession(t *testing.T, records ...json.RawMessage) (*optimade.Client, *mockprovider.Server) {
	t.Helper()
	srv := mockprovider.New(mockprovider.Options{APIPrefix: "/v1", Records: records})
	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)

	client := optimade.NewClient(
		map[string]domain.Provider{"mock": {ID: "mock", BaseURL: server.URL + "/v1"}},
		passthroughResolver{},
		optimade.NewExecutor(time.Second),
		converter.NewOptimadeConverter(),
	)
	return client, srv
}
