package optimade

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/metrics"
	"github.com/go-resty/resty/v2"
)

// DefaultProbeTimeout is the per-candidate /info timeout. Resolution may probe
// many candidates, so it is kept well below the query timeout.
const DefaultProbeTimeout = 5 * time.Second

// VersionTags is the allow-list of version path segments, most specific first.
var VersionTags = dedupe([]string{"v1.1.0", "v1.1", "v1.0.1", "v1.0", "v1.0.0", "v1", "v1", "v1.0", "v1"})

func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// URLResolver finds the versioned base URL for a provider base URL.
type URLResolver interface {
	Resolve(ctx context.Context, baseURL string) (string, error)
}

// Resolver implements OPTIMADE version negotiation.
type Resolver struct {
	client *resty.Client
	probe  *resty.Client
	tags   []string
}

var _ URLResolver = (*Resolver)(nil)

// NewResolver creates a resolver. queryTimeout bounds the /versions request,
// probeTimeout each /info liveness probe; it never exceeds queryTimeout.
func NewResolver(queryTimeout, probeTimeout time.Duration) *Resolver {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if probeTimeout > queryTimeout {
		slog.Warn("Probe timeout exceeds query timeout, clamping", "probe_timeout", probeTimeout, "query_timeout", queryTimeout)
		probeTimeout = queryTimeout
	}
	return &Resolver{
		client: resty.New().
			SetHeader("User-Agent", "optimade-harvester/1.0").
			SetTimeout(queryTimeout),
		probe: resty.New().
			SetHeader("User-Agent", "optimade-harvester/1.0").
			SetTimeout(probeTimeout),
		tags: VersionTags,
	}
}

// VersionedSuffix returns baseURL without a trailing slash if it already ends
// in a known version tag.
func VersionedSuffix(baseURL string) (string, bool) {
	for _, tag := range VersionTags {
		if strings.HasSuffix(baseURL, "/"+tag) {
			return baseURL, true
		}
		if strings.HasSuffix(baseURL, "/"+tag+"/") {
			return strings.TrimSuffix(baseURL, "/"), true
		}
	}
	return "", false
}

// Resolve returns the best versioned base URL. When nothing works it returns ""
// and an error matching domain.ErrUnresolved, joined with every probe failure.
// Individual probe failures never stop resolution.
func (r *Resolver) Resolve(ctx context.Context, baseURL string) (string, error) {
	if versioned, ok := VersionedSuffix(baseURL); ok {
		metrics.Resolutions.WithLabelValues("already_versioned").Inc()
		return versioned, nil
	}

	var failures []error

	versionsURL := joinPath(baseURL, "/versions")
	resp, err := r.client.R().SetContext(ctx).Get(versionsURL)
	switch {
	case err != nil:
		failures = append(failures, &QueryError{URL: versionsURL, Op: "versions discovery", Err: err})
	case resp.StatusCode() == http.StatusOK:
		for _, version := range ParseVersions(resp.String())["version"] {
			tag := "v" + strings.TrimSpace(version)
			if r.allowed(tag) {
				slog.Debug("Found versioned base URL through /versions", "base_url", baseURL, "version", tag)
				metrics.Resolutions.WithLabelValues("versions_endpoint").Inc()
				return joinPath(baseURL, "/"+tag), nil
			}
		}
	default:
		failures = append(failures, fmt.Errorf("versions discovery %s: status %d", versionsURL, resp.StatusCode()))
	}

	for _, tag := range r.tags {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		candidate := joinPath(baseURL, "/"+tag)
		infoURL := candidate + "/info"
		resp, err := r.probe.R().SetContext(ctx).Get(infoURL)
		if err != nil {
			failures = append(failures, &QueryError{URL: infoURL, Op: "liveness probe", Err: err})
			continue
		}
		if resp.StatusCode() == http.StatusOK {
			slog.Debug("Found versioned base URL through /info probe", "base_url", baseURL, "version", tag)
			metrics.Resolutions.WithLabelValues("info_probe").Inc()
			return candidate, nil
		}
		failures = append(failures, fmt.Errorf("liveness probe %s: status %d", infoURL, resp.StatusCode()))
	}

	metrics.Resolutions.WithLabelValues("unresolved").Inc()
	return "", errors.Join(append([]error{fmt.Errorf("%w: %s", domain.ErrUnresolved, baseURL)}, failures...)...)
}

func (r *Resolver) allowed(tag string) bool {
	for _, t := range r.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ParseVersions parses the CSV body of a /versions endpoint into column name
// to ordered values. Malformed bodies yield an empty map.
func ParseVersions(body string) map[string][]string {
	reader := csv.NewReader(strings.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil || len(rows) == 0 {
		return map[string][]string{}
	}

	header := rows[0]
	columns := make(map[string][]string, len(header))
	for _, key := range header {
		columns[strings.TrimSpace(key)] = nil
	}
	for _, row := range rows[1:] {
		for i, key := range header {
			if i >= len(row) {
				break
			}
			key = strings.TrimSpace(key)
			columns[key] = append(columns[key], strings.TrimSpace(row[i]))
		}
	}
	return columns
}
