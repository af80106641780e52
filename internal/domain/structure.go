package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Structure is the normalized crystal structure produced from a provider record.
type Structure struct {
	ID               string        `json:"id" bson:"_id"`
	Provider         string        `json:"provider" bson:"provider"`
	ExternalID       string        `json:"external_id" bson:"external_id"`
	FormulaReduced   string        `json:"chemical_formula_reduced" bson:"chemical_formula_reduced"`
	FormulaHill      string        `json:"chemical_formula_hill,omitempty" bson:"chemical_formula_hill,omitempty"`
	FormulaAnonymous string        `json:"chemical_formula_anonymous,omitempty" bson:"chemical_formula_anonymous,omitempty"`
	Elements         []string      `json:"elements" bson:"elements"`
	Cell             [3][3]float64 `json:"cell" bson:"cell"`
	PBC              [3]bool       `json:"pbc" bson:"pbc"`
	Sites            []Site        `json:"sites" bson:"sites"`
	LastModified     time.Time     `json:"last_modified" bson:"last_modified"`
	FetchedAt        time.Time     `json:"fetched_at" bson:"fetched_at"`
	ContentHash      string        `json:"content_hash" bson:"content_hash"`
}

// Site is one atom of a structure.
type Site struct {
	Symbol   string     `json:"symbol" bson:"symbol"`
	Kind     string     `json:"kind" bson:"kind"`
	Position [3]float64 `json:"position" bson:"position"`
}

// ComputeHash generates a deterministic hash of the structure's physical content.
// FetchedAt and LastModified are excluded so a re-fetch of identical data hashes the same.
func (s *Structure) ComputeHash() string {
	hasher := sha256.New()
	hasher.Write([]byte(s.Provider))
	hasher.Write([]byte(s.ExternalID))
	fmt.Fprintf(hasher, "%s|%s|%s|", s.FormulaReduced, s.FormulaHill, s.FormulaAnonymous)
	fmt.Fprintf(hasher, "%s|", strings.Join(s.Elements, ","))
	fmt.Fprintf(hasher, "%t,%t,%t|", s.PBC[0], s.PBC[1], s.PBC[2])
	for _, row := range s.Cell {
		fmt.Fprintf(hasher, "%.10f,%.10f,%.10f;", row[0], row[1], row[2])
	}
	for _, site := range s.Sites {
		fmt.Fprintf(hasher, "%s:%s:%.10f,%.10f,%.10f;", site.Kind, site.Symbol, site.Position[0], site.Position[1], site.Position[2])
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Provider is an OPTIMADE database provider as stored in the local provider cache.
type Provider struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	BaseURL     string `json:"base_url"`
	Homepage    string `json:"homepage"`
}

// StructureWriter handles structure persistence operations.
type StructureWriter interface {
	Upsert(ctx context.Context, structure *Structure) error
	BulkUpsert(ctx context.Context, structures []Structure) error
}

// StructureReader handles structure retrieval operations.
type StructureReader interface {
	GetLastFetched(ctx context.Context, provider string) (*Structure, error)
	CountByProvider(ctx context.Context, provider string) (int64, error)
}

// HashReader handles content hash retrieval for deduplication.
type HashReader interface {
	GetContentHashes(ctx context.Context, ids []string) (map[string]string, error)
}

// Repository is the composite persistence interface used by the harvester.
type Repository interface {
	StructureWriter
	StructureReader
	HashReader
}

// ProviderCache reads and fully rewrites the local provider cache.
type ProviderCache interface {
	Load() (map[string]Provider, error)
	Save(providers []Provider) error
}

// EventProducer publishes structure events to a queue.
type EventProducer interface {
	Publish(ctx context.Context, structure *Structure) error
	PublishBatch(ctx context.Context, structures []Structure) error
	Close() error
}

// StructureStore is the slice of the workflow engine the sync service needs.
type StructureStore interface {
	StoreStructure(ctx context.Context, structure *Structure) (handle string, created bool, err error)
}
