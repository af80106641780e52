package optimade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/metrics"
	"github.com/sony/gobreaker"
)

const (
	// StructuresEndpoint is the collection queried when no endpoint is given.
	StructuresEndpoint = "/structures"

	DefaultResponseFormat = "json"
	DefaultQueryTimeout   = 10 * time.Second
)

// DefaultStructureFields bounds the response size of structure queries while
// keeping every attribute the converter reads.
var DefaultStructureFields = []string{
	"structure_features",
	"chemical_formula_anonymous",
	"chemical_formula_descriptive",
	"chemical_formula_hill",
	"chemical_formula_reduced",
	"elements",
	"nsites",
	"lattice_vectors",
	"species",
	"cartesian_site_positions",
	"species_at_sites",
	"nelements",
	"nperiodic_dimensions",
	"last_modified",
	"elements_ratios",
	"dimension_types",
}

// QueryRequest describes one GET against a provider. Pointer fields distinguish
// "unset" from an explicit zero value.
type QueryRequest struct {
	// Endpoint nil means StructuresEndpoint; an explicit "" means no endpoint suffix.
	Endpoint *string
	Filter   string
	Sort     []string
	// ResponseFormat defaults to "json".
	ResponseFormat string
	// ResponseFields nil injects DefaultStructureFields on the structures endpoint;
	// an explicit "" omits the parameter.
	ResponseFields *string
	EmailAddress   *string
	PageLimit      *int
	PageOffset     *int
	PageNumber     *int
	Timeout        time.Duration
}

// String returns a pointer to s, for QueryRequest fields.
func String(s string) *string { return &s }

// Int returns a pointer to i, for QueryRequest fields.
func Int(i int) *int { return &i }

func (r QueryRequest) validate() error {
	if r.PageOffset != nil && r.PageNumber != nil {
		return fmt.Errorf("%w: page_offset and page_number are mutually exclusive", domain.ErrUsage)
	}
	if r.PageLimit != nil && *r.PageLimit < 0 {
		return fmt.Errorf("%w: negative page_limit %d", domain.ErrUsage, *r.PageLimit)
	}
	if r.PageOffset != nil && *r.PageOffset < 0 {
		return fmt.Errorf("%w: negative page_offset %d", domain.ErrUsage, *r.PageOffset)
	}
	if r.PageNumber != nil && *r.PageNumber < 0 {
		return fmt.Errorf("%w: negative page_number %d", domain.ErrUsage, *r.PageNumber)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", domain.ErrUsage, r.Timeout)
	}
	return nil
}

// QueryError is a transport or decode failure for a single request URL.
type QueryError struct {
	URL string
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("optimade: %s: url %s: %v", e.Op, e.URL, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{domain.ErrTransport, e.Err}
}

// Querier performs one OPTIMADE query against a versioned base URL.
type Querier interface {
	Query(ctx context.Context, baseURL string, req QueryRequest) (Document, error)
}

// BuildURL assembles the complete request URL for req. It fails with
// domain.ErrUsage before anything touches the network.
func BuildURL(baseURL string, req QueryRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	endpoint := StructuresEndpoint
	if req.Endpoint != nil {
		endpoint = ""
		if *req.Endpoint != "" {
			// Always exactly one leading slash, whatever the caller passed.
			endpoint = "/" + strings.Trim(*req.Endpoint, "/")
		}
	}

	var q orderedQuery
	if req.Filter != "" {
		q.add("filter", req.Filter)
	}
	if len(req.Sort) > 0 {
		q.add("sort", strings.Join(req.Sort, ","))
	}

	format := req.ResponseFormat
	if format == "" {
		format = DefaultResponseFormat
	}
	q.add("response_format", format)

	switch {
	case req.ResponseFields != nil:
		if *req.ResponseFields != "" {
			q.add("response_fields", *req.ResponseFields)
		}
	case endpoint == StructuresEndpoint:
		q.add("response_fields", strings.Join(DefaultStructureFields, ","))
	}

	if req.EmailAddress != nil {
		q.add("email_address", *req.EmailAddress)
	}
	if req.PageLimit != nil {
		q.add("page_limit", strconv.Itoa(*req.PageLimit))
	}
	if req.PageOffset != nil {
		q.add("page_offset", strconv.Itoa(*req.PageOffset))
	}
	if req.PageNumber != nil {
		q.add("page_number", strconv.Itoa(*req.PageNumber))
	}

	return joinPath(baseURL, endpoint) + "?" + q.encode(), nil
}

// joinPath appends a slash-prefixed path to base without doubling the slash.
func joinPath(base, path string) string {
	if path == "" {
		return base
	}
	if strings.HasSuffix(base, "/") {
		return base + path[1:]
	}
	return base + path
}

type queryParam struct {
	key   string
	value string
}

// orderedQuery keeps parameters in insertion order and leaves commas literal,
// so sort keys and field lists read as "a,-b" on the wire.
type orderedQuery []queryParam

func (q *orderedQuery) add(key, value string) {
	*q = append(*q, queryParam{key: key, value: value})
}

func (q orderedQuery) encode() string {
	parts := make([]string, 0, len(q))
	for _, p := range q {
		value := strings.ReplaceAll(url.QueryEscape(p.value), "%2C", ",")
		parts = append(parts, url.QueryEscape(p.key)+"="+value)
	}
	return strings.Join(parts, "&")
}

// Executor performs queries over plain net/http. Requests are never retried;
// a per-database circuit breaker fails fast once a database keeps failing.
type Executor struct {
	client   *http.Client
	timeout  time.Duration
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ Querier = (*Executor)(nil)

// NewExecutor creates an executor whose requests default to timeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Executor{
		client:   &http.Client{},
		timeout:  timeout,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breaker returns the circuit breaker of one database. Databases sharing a
// host get separate breakers, keyed by their versioned base URL.
func (e *Executor) breaker(baseURL string) *gobreaker.CircuitBreaker {
	key := strings.TrimRight(baseURL, "/")

	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[key]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// A caller giving up says nothing about the database.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("CircuitBreaker state changed", "base_url", name, "from", from, "to", to)
		},
	})
	e.breakers[key] = cb
	return cb
}

// Query performs a single GET and returns the decoded JSON document unchanged.
func (e *Executor) Query(ctx context.Context, baseURL string, req QueryRequest) (Document, error) {
	completeURL, err := BuildURL(baseURL, req)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Debug("Performing OPTIMADE query", "url", completeURL)
	start := time.Now()

	result, err := e.breaker(baseURL).Execute(func() (interface{}, error) {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, completeURL, nil)
		if reqErr != nil {
			return nil, fmt.Errorf("failed to create request: %w", reqErr)
		}
		httpReq.Header.Set("Accept", "application/vnd.api+json, application/json")

		resp, respErr := e.client.Do(httpReq)
		if respErr != nil {
			return nil, respErr
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				slog.Warn("Failed to close response body", "error", err)
			}
		}()
		return io.ReadAll(resp.Body)
	})
	metrics.QueryDuration.WithLabelValues(hostOf(completeURL)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.QueryErrors.WithLabelValues(hostOf(completeURL), "transport").Inc()
		return nil, &QueryError{URL: completeURL, Op: "connection error or timeout", Err: err}
	}

	var doc Document
	if err := json.Unmarshal(result.([]byte), &doc); err != nil {
		metrics.QueryErrors.WithLabelValues(hostOf(completeURL), "decode").Inc()
		return nil, &QueryError{URL: completeURL, Op: "cannot decode response to JSON", Err: err}
	}
	return doc, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
