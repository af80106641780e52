package optimade

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/metrics"
)

// StreamOptions controls a StructureStream.
type StreamOptions struct {
	// BatchSize is the page_limit of each fetch. Defaults to 1.
	BatchSize int
	// MaxResults bounds the number of yielded structures; 0 means unbounded.
	MaxResults   int
	Timeout      time.Duration
	EmailAddress string
	// Converter overrides the client's converter for this stream.
	Converter domain.Converter
}

// StructureStream is a forward-only, non-restartable sequence of converted
// structures. Every call to Next may block on one network round-trip; pages are
// fetched only when the previous one has been consumed.
//
//	stream, err := client.Structures(ctx, "mp", `elements HAS "Si"`, opts)
//	if err != nil { ... }
//	for stream.Next(ctx) {
//		s := stream.Structure()
//	}
//	if err := stream.Err(); err != nil { ... }
type StructureStream struct {
	querier   Querier
	converter domain.Converter
	provider  string
	baseURL   string
	filter    string
	opts      StreamOptions

	page    []json.RawMessage
	idx     int
	fetched bool
	more    bool
	done    bool

	offset  int
	yielded int
	skipped int
	current domain.Structure
	err     error
}

// NewStructureStream creates a stream over provider's structures matching filter.
func NewStructureStream(q Querier, conv domain.Converter, provider, baseURL, filter string, opts StreamOptions) *StructureStream {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	return &StructureStream{
		querier:   q,
		converter: conv,
		provider:  provider,
		baseURL:   baseURL,
		filter:    filter,
		opts:      opts,
	}
}

// Next advances to the next convertible structure. It returns false once the
// stream is exhausted, the maximum is reached, or a query failed (see Err).
func (s *StructureStream) Next(ctx context.Context) bool {
	for {
		if s.done {
			return false
		}
		if s.opts.MaxResults > 0 && s.yielded >= s.opts.MaxResults {
			s.finish()
			return false
		}

		if s.idx < len(s.page) {
			record := s.page[s.idx]
			s.idx++
			s.offset++

			structure, err := s.converter.Convert(s.provider, record)
			if err != nil {
				// One bad record must not block the ones after it.
				s.skipped++
				metrics.StructuresStreamed.WithLabelValues(s.provider, "skipped").Inc()
				slog.Debug("Skipping unconvertible record", "provider", s.provider, "offset", s.offset-1, "error", err)
				continue
			}
			s.yielded++
			s.current = structure
			metrics.StructuresStreamed.WithLabelValues(s.provider, "converted").Inc()
			return true
		}

		if s.fetched && !s.more {
			s.finish()
			return false
		}
		if !s.fetch(ctx) {
			return false
		}
	}
}

func (s *StructureStream) fetch(ctx context.Context) bool {
	req := QueryRequest{
		Filter:     s.filter,
		PageLimit:  Int(s.opts.BatchSize),
		PageOffset: Int(s.offset),
		Timeout:    s.opts.Timeout,
	}
	if s.opts.EmailAddress != "" {
		req.EmailAddress = String(s.opts.EmailAddress)
	}

	doc, err := s.querier.Query(ctx, s.baseURL, req)
	if err != nil {
		s.err = err
		s.finish()
		return false
	}

	records, err := doc.Records()
	if err != nil {
		s.err = err
		s.finish()
		return false
	}
	meta, err := doc.Meta()
	if err != nil {
		s.err = err
		s.finish()
		return false
	}

	s.page = records
	s.idx = 0
	s.fetched = true
	s.more = meta.MoreDataAvailable

	if len(records) == 0 {
		// An empty page that still claims more data would loop forever.
		s.finish()
		return false
	}
	return true
}

func (s *StructureStream) finish() {
	s.done = true
	s.page = nil
}

// Structure returns the structure produced by the last successful Next.
func (s *StructureStream) Structure() domain.Structure { return s.current }

// Err returns the query failure that ended the stream, if any.
func (s *StructureStream) Err() error { return s.err }

// Offset is the number of provider records consumed so far, converted or not.
func (s *StructureStream) Offset() int { return s.offset }

// Yielded is the number of structures returned by Next.
func (s *StructureStream) Yielded() int { return s.yielded }

// Skipped is the number of records dropped because conversion failed.
func (s *StructureStream) Skipped() int { return s.skipped }
