package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/metrics"
	"github.com/OptimadeHarvester/internal/infra/optimade"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "optimade-harvester"

// HarvestJob periodically streams one provider's structures matching Filter.
type HarvestJob struct {
	Provider   string
	Filter     string
	MaxResults int
	// Converter overrides the session converter; nil keeps it.
	Converter domain.Converter
}

// HarvestService runs one loop per job feeding a bounded worker pool. Each
// worker drives a single stream synchronously and persists it batch by batch.
type HarvestService struct {
	source        StructureSource
	repo          domain.Repository
	eventProducer domain.EventProducer
	jobs          []HarvestJob
	interval      time.Duration
	batchSize     int
	workerCount   int
	queue         chan HarvestJob
	wg            sync.WaitGroup
	activeJobs    sync.Map
	now           func() time.Time
}

func NewHarvestService(
	source StructureSource,
	repo domain.Repository,
	eventProducer domain.EventProducer,
	jobs []HarvestJob,
	interval time.Duration,
	batchSize int,
	workerCount int,
) *HarvestService {
	if batchSize <= 0 {
		batchSize = 1
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	return &HarvestService{
		source:        source,
		repo:          repo,
		eventProducer: eventProducer,
		jobs:          jobs,
		interval:      interval,
		batchSize:     batchSize,
		workerCount:   workerCount,
		queue:         make(chan HarvestJob, workerCount*2),
		now:           time.Now,
	}
}

// Start blocks until ctx is cancelled and every worker has drained.
func (s *HarvestService) Start(ctx context.Context) {
	slog.Info("Starting harvest service", "interval", s.interval, "workers", s.workerCount, "jobs", len(s.jobs))

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	var loops sync.WaitGroup
	for _, job := range s.jobs {
		slog.Info("Starting harvest loop", "provider", job.Provider, "filter", job.Filter)
		loops.Add(1)
		go s.runJobLoop(ctx, job, &loops)
	}

	<-ctx.Done()
	slog.Info("Context cancelled, stopping harvest service...")

	loops.Wait()
	close(s.queue)

	s.wg.Wait()
	slog.Info("All harvest workers stopped")
}

func (s *HarvestService) runJobLoop(ctx context.Context, job HarvestJob, wg *sync.WaitGroup) {
	defer wg.Done()

	select {
	case s.queue <- job:
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case s.queue <- job:
			case <-ctx.Done():
				return
			}
		}
	}
}

func jobKey(job HarvestJob) string {
	return job.Provider + "|" + job.Filter
}

func (s *HarvestService) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	slog.Info("Worker started", "worker_id", id)

	for job := range s.queue {
		key := jobKey(job)
		if _, loaded := s.activeJobs.LoadOrStore(key, true); loaded {
			slog.Warn("Skipping concurrent run", "provider", job.Provider, "worker_id", id)
			continue
		}

		metrics.WorkerActiveCount.Inc()
		func() {
			defer s.activeJobs.Delete(key)
			s.processJob(ctx, job)
		}()
		metrics.WorkerActiveCount.Dec()
	}
	slog.Info("Worker stopped", "worker_id", id)
}

func (s *HarvestService) processJob(ctx context.Context, job HarvestJob) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "processJob", trace.WithAttributes(
		attribute.String("provider", job.Provider),
		attribute.String("filter", job.Filter),
	))
	defer span.End()

	stream, err := s.source.Structures(ctx, job.Provider, job.Filter, optimade.StreamOptions{
		BatchSize:  s.batchSize,
		MaxResults: job.MaxResults,
		Converter:  job.Converter,
	})
	if err != nil {
		span.RecordError(err)
		slog.Error("Cannot open structure stream", "provider", job.Provider, "error", err)
		metrics.StructuresIngested.WithLabelValues(job.Provider, "error_"+skipReason(err)).Inc()
		return
	}

	batch := make([]domain.Structure, 0, s.batchSize)
	for stream.Next(ctx) {
		st := stream.Structure()
		st.FetchedAt = s.now().UTC()
		batch = append(batch, st)
		if len(batch) < s.batchSize {
			continue
		}
		if err := s.processBatch(ctx, job.Provider, batch); err != nil {
			span.RecordError(err)
			slog.Error("Batch failed", "provider", job.Provider, "offset", stream.Offset(), "error", err)
			metrics.StructuresIngested.WithLabelValues(job.Provider, "error_store").Add(float64(len(batch)))
		}
		batch = batch[:0]
	}
	if len(batch) > 0 {
		if err := s.processBatch(ctx, job.Provider, batch); err != nil {
			span.RecordError(err)
			slog.Error("Batch failed", "provider", job.Provider, "offset", stream.Offset(), "error", err)
			metrics.StructuresIngested.WithLabelValues(job.Provider, "error_store").Add(float64(len(batch)))
		}
	}

	if err := stream.Err(); err != nil {
		span.RecordError(err)
		slog.Error("Harvest stopped early", "provider", job.Provider, "offset", stream.Offset(), "error", err)
		metrics.StructuresIngested.WithLabelValues(job.Provider, "error_query").Inc()
		if errors.Is(err, domain.ErrTransport) {
			// Force re-resolution on the next run.
			s.source.Invalidate(job.Provider)
		}
	}
	span.SetAttributes(
		attribute.Int("offset", stream.Offset()),
		attribute.Int("yielded", stream.Yielded()),
		attribute.Int("skipped", stream.Skipped()),
	)
	slog.Info("Harvest finished", "provider", job.Provider, "offset", stream.Offset(), "yielded", stream.Yielded(), "skipped", stream.Skipped())

	s.recordStored(ctx, job.Provider)
}

// recordStored exports how many structures of provider are stored and when
// the newest of them was fetched.
func (s *HarvestService) recordStored(ctx context.Context, provider string) {
	n, err := s.repo.CountByProvider(ctx, provider)
	if err != nil {
		slog.Warn("Cannot count stored structures", "provider", provider, "error", err)
		return
	}
	metrics.StructuresStored.WithLabelValues(provider).Set(float64(n))

	last, err := s.repo.GetLastFetched(ctx, provider)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		slog.Warn("Cannot read last fetched structure", "provider", provider, "error", err)
	default:
		metrics.LastFetchedTimestamp.WithLabelValues(provider).Set(float64(last.FetchedAt.Unix()))
	}
}

func (s *HarvestService) processBatch(ctx context.Context, provider string, structures []domain.Structure) error {
	start := time.Now()

	unique := make([]domain.Structure, 0, len(structures))
	seen := make(map[string]bool)
	for _, st := range structures {
		if !seen[st.ID] {
			seen[st.ID] = true
			unique = append(unique, st)
		}
	}
	structures = unique

	if len(structures) == 0 {
		return nil
	}

	ids := make([]string, 0, len(structures))
	for i := range structures {
		structures[i].ContentHash = structures[i].ComputeHash()
		ids = append(ids, structures[i].ID)
	}

	existingHashes, err := s.repo.GetContentHashes(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to fetch hashes: %w", err)
	}

	var changed []domain.Structure
	skipped := 0
	for _, st := range structures {
		oldHash, exists := existingHashes[st.ID]
		switch {
		case !exists:
			slog.Debug("Structure new", "provider", provider, "id", st.ID)
			changed = append(changed, st)
		case oldHash != st.ContentHash:
			slog.Debug("Structure changed", "provider", provider, "id", st.ID)
			changed = append(changed, st)
		default:
			skipped++
		}
	}

	if skipped > 0 {
		metrics.StructuresDuplicatesSkipped.WithLabelValues(provider).Add(float64(skipped))
	}

	metrics.HarvestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	metrics.StructuresIngested.WithLabelValues(provider, "success").Add(float64(len(structures)))
	metrics.StructuresPublished.WithLabelValues(provider).Add(0)
	metrics.PublishErrors.WithLabelValues(provider).Add(0)

	for _, st := range structures {
		if !st.LastModified.IsZero() {
			metrics.StructureAge.WithLabelValues(provider).Observe(time.Since(st.LastModified).Seconds())
		}
	}

	if err := s.repo.BulkUpsert(ctx, structures); err != nil {
		return fmt.Errorf("bulk upsert failed: %w", err)
	}

	if len(changed) > 0 {
		slog.Info("Publishing changed structures", "count", len(changed), "provider", provider)

		pubStart := time.Now()
		err := s.eventProducer.PublishBatch(ctx, changed)
		metrics.PublishDuration.WithLabelValues(provider).Observe(time.Since(pubStart).Seconds())

		if err != nil {
			// Stored already; the next harvest sees an unchanged hash and will not republish.
			slog.Error("Error publishing structure batch", "count", len(changed), "error", err)
			metrics.PublishErrors.WithLabelValues(provider).Inc()
		} else {
			metrics.StructuresPublished.WithLabelValues(provider).Add(float64(len(changed)))
		}
	}

	return nil
}
