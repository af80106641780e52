package converter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
)

const (
	OptimadeName = "optimade"
	LenientName  = "lenient"
)

// Features that describe structures a plain cell + sites model cannot hold.
var unsupportedFeatures = map[string]bool{
	"disorder":       true,
	"implicit_atoms": true,
	"assemblies":     true,
}

type structureResource struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Attributes *structureAttributes `json:"attributes"`
}

type structureAttributes struct {
	ChemicalFormulaReduced   string       `json:"chemical_formula_reduced"`
	ChemicalFormulaHill      string       `json:"chemical_formula_hill"`
	ChemicalFormulaAnonymous string       `json:"chemical_formula_anonymous"`
	Elements                 []string     `json:"elements"`
	NSites                   *int         `json:"nsites"`
	LatticeVectors           [][]*float64 `json:"lattice_vectors"`
	CartesianSitePositions   [][]*float64 `json:"cartesian_site_positions"`
	SpeciesAtSites           []string     `json:"species_at_sites"`
	Species                  []species    `json:"species"`
	DimensionTypes           []int        `json:"dimension_types"`
	StructureFeatures        []string     `json:"structure_features"`
	LastModified             string       `json:"last_modified"`
}

type species struct {
	Name            string    `json:"name"`
	ChemicalSymbols []string  `json:"chemical_symbols"`
	Concentration   []float64 `json:"concentration"`
}

// OptimadeConverter turns OPTIMADE structure resources into domain.Structure.
type OptimadeConverter struct {
	lenient bool
}

// NewOptimadeConverter returns the strict converter: the species list is
// required and nsites must match the site arrays.
func NewOptimadeConverter() *OptimadeConverter {
	return &OptimadeConverter{}
}

// NewLenientConverter tolerates a missing species list (kind names are used
// as element symbols) and a stale nsites.
func NewLenientConverter() *OptimadeConverter {
	return &OptimadeConverter{lenient: true}
}

func (c *OptimadeConverter) Convert(provider string, record json.RawMessage) (domain.Structure, error) {
	var res structureResource
	if err := json.Unmarshal(record, &res); err != nil {
		return domain.Structure{}, fmt.Errorf("%w: %v", domain.ErrConversion, err)
	}
	if res.ID == "" {
		return domain.Structure{}, fmt.Errorf("%w: record without id", domain.ErrConversion)
	}
	if res.Type != "" && res.Type != "structures" {
		return domain.Structure{}, c.fail(res.ID, "unexpected type %q", res.Type)
	}
	attrs := res.Attributes
	if attrs == nil {
		return domain.Structure{}, c.fail(res.ID, "no attributes")
	}

	for _, feature := range attrs.StructureFeatures {
		if unsupportedFeatures[feature] {
			return domain.Structure{}, c.fail(res.ID, "unsupported structure feature %q", feature)
		}
	}

	cell, err := toCell(attrs.LatticeVectors)
	if err != nil {
		return domain.Structure{}, c.fail(res.ID, "lattice_vectors: %v", err)
	}

	n := len(attrs.CartesianSitePositions)
	if n == 0 {
		return domain.Structure{}, c.fail(res.ID, "no cartesian_site_positions")
	}
	if len(attrs.SpeciesAtSites) != n {
		return domain.Structure{}, c.fail(res.ID, "species_at_sites has %d entries for %d sites", len(attrs.SpeciesAtSites), n)
	}
	if attrs.NSites != nil && *attrs.NSites != n && !c.lenient {
		return domain.Structure{}, c.fail(res.ID, "nsites %d does not match %d positions", *attrs.NSites, n)
	}

	symbols, err := c.kindSymbols(attrs)
	if err != nil {
		return domain.Structure{}, c.fail(res.ID, "%v", err)
	}

	sites := make([]domain.Site, n)
	for i, raw := range attrs.CartesianSitePositions {
		pos, err := toVector(raw)
		if err != nil {
			return domain.Structure{}, c.fail(res.ID, "site %d: %v", i, err)
		}
		kind := attrs.SpeciesAtSites[i]
		symbol, ok := symbols[kind]
		if !ok {
			return domain.Structure{}, c.fail(res.ID, "site %d: species %q not defined", i, kind)
		}
		sites[i] = domain.Site{Symbol: symbol, Kind: kind, Position: pos}
	}

	pbc := [3]bool{true, true, true}
	if len(attrs.DimensionTypes) == 3 {
		for i, d := range attrs.DimensionTypes {
			pbc[i] = d == 1
		}
	}

	return domain.Structure{
		ID:               provider + "/" + res.ID,
		Provider:         provider,
		ExternalID:       res.ID,
		FormulaReduced:   attrs.ChemicalFormulaReduced,
		FormulaHill:      attrs.ChemicalFormulaHill,
		FormulaAnonymous: attrs.ChemicalFormulaAnonymous,
		Elements:         attrs.Elements,
		Cell:             cell,
		PBC:              pbc,
		Sites:            sites,
		LastModified:     parseTimestamp(attrs.LastModified),
	}, nil
}

func (c *OptimadeConverter) fail(id, format string, args ...any) error {
	return fmt.Errorf("%w: record %s: %s", domain.ErrConversion, id, fmt.Sprintf(format, args...))
}

// kindSymbols maps species names to a single element symbol, rejecting
// partial occupancies and vacancies.
func (c *OptimadeConverter) kindSymbols(attrs *structureAttributes) (map[string]string, error) {
	symbols := make(map[string]string, len(attrs.Species))
	if len(attrs.Species) == 0 {
		if !c.lenient {
			return nil, fmt.Errorf("no species")
		}
		for _, kind := range attrs.SpeciesAtSites {
			symbols[kind] = kind
		}
		return symbols, nil
	}

	for _, sp := range attrs.Species {
		if len(sp.ChemicalSymbols) != 1 {
			return nil, fmt.Errorf("species %q has %d chemical symbols", sp.Name, len(sp.ChemicalSymbols))
		}
		if len(sp.Concentration) > 0 && (len(sp.Concentration) != 1 || sp.Concentration[0] != 1.0) {
			return nil, fmt.Errorf("species %q has partial occupancy", sp.Name)
		}
		symbol := sp.ChemicalSymbols[0]
		if symbol == "X" || symbol == "vacancy" {
			return nil, fmt.Errorf("species %q is a %s", sp.Name, symbol)
		}
		symbols[sp.Name] = symbol
	}
	return symbols, nil
}

func toCell(vectors [][]*float64) ([3][3]float64, error) {
	var cell [3][3]float64
	if len(vectors) != 3 {
		return cell, fmt.Errorf("expected 3 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		vec, err := toVector(v)
		if err != nil {
			return cell, fmt.Errorf("vector %d: %v", i, err)
		}
		cell[i] = vec
	}
	return cell, nil
}

func toVector(v []*float64) ([3]float64, error) {
	var out [3]float64
	if len(v) != 3 {
		return out, fmt.Errorf("expected 3 components, got %d", len(v))
	}
	for i, x := range v {
		if x == nil {
			return out, fmt.Errorf("component %d is null", i)
		}
		out[i] = *x
	}
	return out, nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
