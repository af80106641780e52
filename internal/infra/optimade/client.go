package optimade

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
)

// Client is one query session over the cached providers. Versioned base URLs
// are resolved on first use and reused until Invalidate is called.
type Client struct {
	providers map[string]domain.Provider
	resolver  URLResolver
	querier   Querier
	converter domain.Converter
	timeout   time.Duration
	email     string

	mu       sync.Mutex
	resolved map[string]string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout used by Client queries.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithEmailAddress sends email_address with every structure query.
func WithEmailAddress(email string) ClientOption {
	return func(c *Client) { c.email = email }
}

// NewClient creates a session client over providers keyed by id.
func NewClient(providers map[string]domain.Provider, resolver URLResolver, querier Querier, converter domain.Converter, opts ...ClientOption) *Client {
	c := &Client{
		providers: providers,
		resolver:  resolver,
		querier:   querier,
		converter: converter,
		timeout:   20 * time.Second,
		resolved:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers returns the cached providers sorted by id.
func (c *Client) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Provider looks up a cached provider by id.
func (c *Client) Provider(id string) (domain.Provider, error) {
	p, ok := c.providers[id]
	if !ok {
		return domain.Provider{}, fmt.Errorf("provider %q: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// BaseURL returns the versioned base URL of provider id, resolving it once per session.
func (c *Client) BaseURL(ctx context.Context, id string) (string, error) {
	p, err := c.Provider(id)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if u, ok := c.resolved[id]; ok {
		c.mu.Unlock()
		return u, nil
	}
	c.mu.Unlock()

	u, err := c.resolver.Resolve(ctx, p.BaseURL)
	if err != nil {
		return "", fmt.Errorf("provider %q: %w", id, err)
	}
	if u == "" {
		return "", fmt.Errorf("provider %q: %w", id, domain.ErrUnresolved)
	}

	c.mu.Lock()
	c.resolved[id] = u
	c.mu.Unlock()
	return u, nil
}

// Invalidate forgets the resolved base URL of provider id.
func (c *Client) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.resolved, id)
}

// CountStructures returns the number of structures matching filter without
// fetching any of them.
func (c *Client) CountStructures(ctx context.Context, id, filter string) (int, error) {
	baseURL, err := c.BaseURL(ctx, id)
	if err != nil {
		return 0, err
	}

	doc, err := c.querier.Query(ctx, baseURL, QueryRequest{
		Filter:         filter,
		PageLimit:      Int(1),
		ResponseFields: String(""),
		Timeout:        c.timeout,
	})
	if err != nil {
		return 0, err
	}

	meta, err := doc.Meta()
	if err != nil {
		return 0, fmt.Errorf("provider %q: %w", id, err)
	}
	if meta.DataReturned == nil {
		if doc.HasErrors() {
			return 0, fmt.Errorf("provider %q: query rejected: %s", id, string(doc["errors"]))
		}
		return 0, fmt.Errorf("provider %q: response has no meta.data_returned", id)
	}
	return *meta.DataReturned, nil
}

// Structures opens a stream over provider id. Resolution failures are returned
// immediately; query failures surface through the stream's Err.
func (c *Client) Structures(ctx context.Context, id, filter string, opts StreamOptions) (*StructureStream, error) {
	baseURL, err := c.BaseURL(ctx, id)
	if err != nil {
		return nil, err
	}
	if opts.Timeout == 0 {
		opts.Timeout = c.timeout
	}
	if opts.EmailAddress == "" {
		opts.EmailAddress = c.email
	}
	conv := c.converter
	if opts.Converter != nil {
		conv = opts.Converter
	}
	return NewStructureStream(c.querier, conv, id, baseURL, filter, opts), nil
}
