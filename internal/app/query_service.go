package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/metrics"
	"github.com/OptimadeHarvester/internal/infra/optimade"
	"github.com/OptimadeHarvester/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

// StructureSource is the query session the services run on. *optimade.Client
// implements it.
type StructureSource interface {
	Providers() []domain.Provider
	CountStructures(ctx context.Context, id, filter string) (int, error)
	Structures(ctx context.Context, id, filter string, opts optimade.StreamOptions) (*optimade.StructureStream, error)
	Invalidate(id string)
}

// StructurePage is a bounded slice of one provider's stream.
type StructurePage struct {
	Provider   string             `json:"provider"`
	Filter     string             `json:"filter"`
	Structures []domain.Structure `json:"structures"`
	Offset     int                `json:"offset"`
	Skipped    int                `json:"skipped"`
}

// AggregateCount is a count over every cached provider.
type AggregateCount struct {
	Filter  string            `json:"filter"`
	Total   int               `json:"total"`
	Counts  map[string]int    `json:"counts"`
	Skipped map[string]string `json:"skipped"`
}

// QueryService answers one-shot queries against the provider network.
type QueryService struct {
	source  StructureSource
	sampler *logging.ErrorSampler
}

func NewQueryService(source StructureSource) *QueryService {
	return &QueryService{
		source:  source,
		sampler: logging.NewErrorSampler(10),
	}
}

func (s *QueryService) Providers() []domain.Provider {
	return s.source.Providers()
}

// Count returns the number of structures of provider id matching filter.
func (s *QueryService) Count(ctx context.Context, id, filter string) (int, error) {
	return s.source.CountStructures(ctx, id, filter)
}

// Structures collects up to maxResults structures of provider id. A failure after
// some pages were read is returned together with what was collected.
func (s *QueryService) Structures(ctx context.Context, id, filter string, maxResults, batch int) (StructurePage, error) {
	if maxResults < 0 || batch < 0 {
		return StructurePage{}, fmt.Errorf("%w: negative max or batch", domain.ErrUsage)
	}
	if maxResults == 0 {
		maxResults = DefaultPageSize
	}
	if maxResults > MaxPageSize {
		return StructurePage{}, fmt.Errorf("%w: max must not exceed %d", domain.ErrUsage, MaxPageSize)
	}
	if batch == 0 {
		batch = min(maxResults, DefaultPageSize)
	}

	page := StructurePage{Provider: id, Filter: filter, Structures: []domain.Structure{}}
	stream, err := s.source.Structures(ctx, id, filter, optimade.StreamOptions{BatchSize: batch, MaxResults: maxResults})
	if err != nil {
		return page, err
	}
	for stream.Next(ctx) {
		page.Structures = append(page.Structures, stream.Structure())
	}
	page.Offset = stream.Offset()
	page.Skipped = stream.Skipped()
	return page, stream.Err()
}

// CountAll counts matching structures at every provider. Providers that fail
// are listed under Skipped instead of failing the aggregate.
func (s *QueryService) CountAll(ctx context.Context, filter string) AggregateCount {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "CountAll", trace.WithAttributes(attribute.String("filter", filter)))
	defer span.End()

	result := AggregateCount{
		Filter:  filter,
		Counts:  map[string]int{},
		Skipped: map[string]string{},
	}
	for _, p := range s.source.Providers() {
		if ctx.Err() != nil {
			result.Skipped[p.ID] = ctx.Err().Error()
			continue
		}
		n, err := s.source.CountStructures(ctx, p.ID, filter)
		if err != nil {
			result.Skipped[p.ID] = err.Error()
			metrics.ProvidersSkipped.WithLabelValues(p.ID, skipReason(err)).Inc()
			s.sampler.Warn(p.ID, "Skipping provider in aggregate count", "provider", p.ID, "error", err)
			continue
		}
		s.sampler.Reset(p.ID)
		result.Counts[p.ID] = n
		result.Total += n
	}

	slog.Info("Aggregate count finished", "filter", filter, "total", result.Total, "providers", len(result.Counts), "skipped", len(result.Skipped))
	return result
}

// skipReason is the metrics label for a per-provider failure.
func skipReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnresolved):
		return "unresolved"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "rejected"
	}
}
