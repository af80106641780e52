package domain

import "encoding/json"

// Converter turns one raw provider record into a Structure.
type Converter interface {
	Convert(provider string, record json.RawMessage) (Structure, error)
}
