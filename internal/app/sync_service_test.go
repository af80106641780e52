package app

import (
	"context"
	"errors"
	"testing"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStructureSyncService_HandleEvent(t *testing.T) {
	store := new(MockStructureStore)
	s := &domain.Structure{ID: "mp/1", Provider: "mp"}
	store.On("StoreStructure", mock.Anything, s).Return("uuid-1", true, nil).Once()

	svc := NewStructureSyncService(new(MockEventConsumer), store)
	require.NoError(t, svc.handleEvent(context.Background(), s))
	store.AssertExpectations(t)
}

func TestStructureSyncService_HandleEventError(t *testing.T) {
	store := new(MockStructureStore)
	store.On("StoreStructure", mock.Anything, mock.Anything).Return("", false, errors.New("disk full"))

	svc := NewStructureSyncService(new(MockEventConsumer), store)
	assert.EqualError(t, svc.handleEvent(context.Background(), &domain.Structure{ID: "mp/1", Provider: "mp"}), "disk full")
}

func TestStructureSyncService_StoresIntoEngineProfile(t *testing.T) {
	eng, err := engine.NewLocalEngine(t.TempDir(), "sync")
	require.NoError(t, err)

	si := engine.SiliconStructure()
	consumer := &MockEventConsumer{events: []domain.Structure{si, si}}
	consumer.On("Start", mock.Anything).Return()
	consumer.On("Close").Return(nil)

	svc := NewStructureSyncService(consumer, eng)
	// Start runs the consumer on its own goroutine; drive it directly.
	consumer.Start(context.Background(), svc.handleEvent)
	require.NoError(t, svc.Stop())

	stored, err := eng.Structure(context.Background(), si.ID)
	require.NoError(t, err)
	assert.Equal(t, si.ContentHash, stored.Structure.ContentHash)
	consumer.AssertExpectations(t)
}
