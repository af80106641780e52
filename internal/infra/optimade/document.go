package optimade

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is a decoded OPTIMADE response. Top-level members stay raw so the
// body is passed through without schema validation.
type Document map[string]json.RawMessage

// Meta is the subset of the response "meta" member the client reads.
type Meta struct {
	APIVersion        string `json:"api_version"`
	DataReturned      *int   `json:"data_returned"`
	DataAvailable     *int   `json:"data_available"`
	MoreDataAvailable bool   `json:"more_data_available"`
}

// Has reports whether the top-level member is present.
func (d Document) Has(member string) bool {
	_, ok := d[member]
	return ok
}

// HasErrors reports whether the provider returned an "errors" member.
func (d Document) HasErrors() bool {
	raw, ok := d["errors"]
	return ok && !isNull(raw)
}

// Meta decodes the "meta" member. A missing member yields a zero Meta.
func (d Document) Meta() (Meta, error) {
	var meta Meta
	raw, ok := d["meta"]
	if !ok || isNull(raw) {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}, fmt.Errorf("failed to decode meta: %w", err)
	}
	return meta, nil
}

// Records returns the entries of the "data" member. A single resource object
// is returned as a one-element slice.
func (d Document) Records() ([]json.RawMessage, error) {
	raw, ok := d["data"]
	if !ok || isNull(raw) {
		return nil, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return []json.RawMessage{raw}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	return records, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
