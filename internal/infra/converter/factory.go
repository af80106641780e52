package converter

import (
	"fmt"

	"github.com/OptimadeHarvester/internal/domain"
)

// Get returns the converter registered under name.
// An empty name selects the OPTIMADE structure converter.
func Get(name string) (domain.Converter, error) {
	switch name {
	case "", OptimadeName:
		return NewOptimadeConverter(), nil
	case LenientName:
		return NewLenientConverter(), nil
	default:
		return nil, fmt.Errorf("converter not found: %s", name)
	}
}
