package mockprovider

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Site places one atom in a structure record.
type Site struct {
	Symbol   string
	Position [3]float64
}

// StructureRecord builds an OPTIMADE structure resource with one species per element.
func StructureRecord(id, formula string, cell [3][3]float64, sites []Site) json.RawMessage {
	positions := make([][3]float64, len(sites))
	speciesAtSites := make([]string, len(sites))
	seen := map[string]bool{}
	var elements []string
	for i, site := range sites {
		positions[i] = site.Position
		speciesAtSites[i] = site.Symbol
		if !seen[site.Symbol] {
			seen[site.Symbol] = true
			elements = append(elements, site.Symbol)
		}
	}
	sort.Strings(elements)

	species := make([]map[string]any, 0, len(elements))
	for _, el := range elements {
		species = append(species, map[string]any{
			"name":             el,
			"chemical_symbols": []string{el},
			"concentration":    []float64{1.0},
		})
	}

	record := map[string]any{
		"id":   id,
		"type": "structures",
		"attributes": map[string]any{
			"chemical_formula_reduced": formula,
			"chemical_formula_hill":    formula,
			"elements":                 elements,
			"nelements":                len(elements),
			"nsites":                   len(sites),
			"lattice_vectors":          cell,
			"cartesian_site_positions": positions,
			"species_at_sites":         speciesAtSites,
			"species":                  species,
			"dimension_types":          []int{1, 1, 1},
			"nperiodic_dimensions":     3,
			"structure_features":       []string{},
			"last_modified":            time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(time.RFC3339),
		},
	}
	raw, err := json.Marshal(record)
	if err != nil {
		panic(err)
	}
	return raw
}

// SiliconCell is the two-atom diamond silicon primitive cell.
var SiliconCell = [3][3]float64{
	{3.7881476451529, 0.0, 0.0},
	{1.8940738225764, 3.2806320939886, 0.0},
	{1.8940738225764, 1.0935440313296, 3.0930096003167},
}

// Silicon returns a valid two-atom silicon record.
func Silicon(id string) json.RawMessage {
	return StructureRecord(id, "Si", SiliconCell, []Site{
		{Symbol: "Si", Position: [3]float64{0, 0, 0}},
		{Symbol: "Si", Position: [3]float64{1.8940738225764, 1.0935440313296, 0.77325240007918}},
	})
}

// Disordered returns a record the converter must reject.
func Disordered(id string) json.RawMessage {
	raw := map[string]any{}
	if err := json.Unmarshal(Silicon(id), &raw); err != nil {
		panic(err)
	}
	attrs := raw["attributes"].(map[string]any)
	attrs["structure_features"] = []string{"disorder"}
	attrs["lattice_vectors"] = nil
	out, err := json.Marshal(raw)
	if err != nil {
		panic(err)
	}
	return out
}

// Link builds a links-endpoint resource.
func Link(id, linkType, baseURL string) json.RawMessage {
	raw, err := json.Marshal(map[string]any{
		"id":   id,
		"type": "links",
		"attributes": map[string]any{
			"name":        strings.ToUpper(id),
			"description": "Mock database " + id,
			"base_url":    baseURL,
			"homepage":    map[string]string{"href": "https://example.org/" + id},
			"link_type":   linkType,
		},
	})
	if err != nil {
		panic(err)
	}
	return raw
}
