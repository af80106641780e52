package optimade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/OptimadeHarvester/internal/domain"
)

// DefaultProviderIndexURLs are the Materials-Consortia providers lists, tried in order.
var DefaultProviderIndexURLs = []string{
	"https://providers.optimade.org/v1/links",
	"https://raw.githubusercontent.com/Materials-Consortia/providers/master/src/links/v1/providers.json",
}

const childLinksFilter = `( link_type="child" OR type="child" )`

// linkURL accepts both plain string URLs and {"href": ...} link objects.
type linkURL string

func (u *linkURL) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*u = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = linkURL(s)
		return nil
	}
	var obj struct {
		Href string `json:"href"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*u = linkURL(obj.Href)
	return nil
}

type linkResource struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes linkAttributes `json:"attributes"`
}

type linkAttributes struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BaseURL     linkURL `json:"base_url"`
	Homepage    linkURL `json:"homepage"`
	LinkType    string  `json:"link_type"`
}

func decodeLinks(doc Document) []linkResource {
	records, err := doc.Records()
	if err != nil {
		return nil
	}
	links := make([]linkResource, 0, len(records))
	for _, raw := range records {
		var link linkResource
		if err := json.Unmarshal(raw, &link); err != nil {
			slog.Debug("Skipping malformed link resource", "error", err)
			continue
		}
		links = append(links, link)
	}
	return links
}

// FetchProviders walks the providers index and every provider's child links,
// returning one Provider per database whose versioned base URL resolves.
// Unreachable providers are logged and skipped.
func FetchProviders(ctx context.Context, q Querier, r URLResolver, indexURLs []string) ([]domain.Provider, error) {
	if len(indexURLs) == 0 {
		indexURLs = DefaultProviderIndexURLs
	}

	var index Document
	for _, indexURL := range indexURLs {
		doc, err := q.Query(ctx, indexURL, QueryRequest{Endpoint: String("")})
		if err != nil {
			slog.Warn("Providers index unavailable", "url", indexURL, "error", err)
			continue
		}
		if doc.HasErrors() || !doc.Has("data") {
			slog.Warn("Providers index returned no data", "url", indexURL)
			continue
		}
		index = doc
		break
	}
	if index == nil {
		return nil, errors.New("no valid providers found")
	}

	var roots []linkResource
	for _, link := range decodeLinks(index) {
		if link.Attributes.LinkType != "external" || link.Attributes.BaseURL == "" {
			continue
		}
		versioned, err := r.Resolve(ctx, string(link.Attributes.BaseURL))
		if err != nil || versioned == "" {
			slog.Info("Skipping provider without a versioned base URL", "provider", link.ID, "error", err)
			continue
		}
		link.Attributes.BaseURL = linkURL(versioned)
		roots = append(roots, link)
	}

	var providers []domain.Provider
	for _, root := range roots {
		doc, err := q.Query(ctx, string(root.Attributes.BaseURL), QueryRequest{
			Endpoint: String("/links"),
			Filter:   childLinksFilter,
		})
		if err != nil {
			slog.Warn("Failed to list child databases", "provider", root.ID, "error", err)
			continue
		}

		for _, child := range decodeLinks(doc) {
			if child.Attributes.LinkType != "child" && child.Type != "child" {
				continue
			}
			if child.Attributes.BaseURL == "" {
				continue
			}
			versioned, err := r.Resolve(ctx, string(child.Attributes.BaseURL))
			if err != nil || versioned == "" {
				slog.Info("Skipping database without a versioned base URL", "provider", root.ID, "database", child.ID, "error", err)
				continue
			}
			providers = append(providers, domain.Provider{
				ID:          child.ID,
				Name:        child.Attributes.Name,
				Description: child.Attributes.Description,
				BaseURL:     versioned,
				Homepage:    string(child.Attributes.Homepage),
			})
		}
	}

	slog.Info("Fetched OPTIMADE providers", "providers", len(roots), "databases", len(providers))
	return providers, nil
}
