package mocks

import (
	"encoding/json"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockConverter struct {
	mock.Mock
}

func (m *MockConverter) Convert(provider string, record json.RawMessage) (domain.Structure, error) {
	args := m.Called(provider, record)

	var structure domain.Structure
	if args.Get(0) != nil {
		structure = args.Get(0).(domain.Structure)
	}
	return structure, args.Error(1)
}
