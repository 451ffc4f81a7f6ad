// Package service is the application facade: it owns the wiring between
// ingestion buffers, the flush coordinator, the dataset and stack
// registries, the aggregation pipeline, and the artifact store, and it
// enforces the cross-component concurrency rules.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldline/geostack/internal/artifact"
	"github.com/fieldline/geostack/internal/buffer"
	"github.com/fieldline/geostack/internal/catalog"
	"github.com/fieldline/geostack/internal/dataset"
	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/export"
	"github.com/fieldline/geostack/internal/flush"
	"github.com/fieldline/geostack/internal/logging"
	"github.com/fieldline/geostack/internal/metrics"
	"github.com/fieldline/geostack/internal/pipeline"
	"github.com/fieldline/geostack/internal/reading"
	"github.com/fieldline/geostack/internal/stack"
)

// Options configures a Service.
type Options struct {
	Buffers   *buffer.Registry
	Policy    buffer.Policy
	Flusher   *flush.Coordinator
	Datasets  *dataset.Registry
	Stacks    *stack.Registry
	Pipeline  *pipeline.Pipeline
	Artifacts artifact.Store
	Catalog   *catalog.Catalog // optional; nil disables persistence
	Metrics   *metrics.Set

	// GenerationTimeout is the default deadline for one generation run,
	// applied when the caller does not set one.
	GenerationTimeout time.Duration
}

// Service exposes the operations of the ingestion and stacking subsystems.
type Service struct {
	buffers   *buffer.Registry
	policy    buffer.Policy
	flusher   *flush.Coordinator
	datasets  *dataset.Registry
	stacks    *stack.Registry
	pipeline  *pipeline.Pipeline
	artifacts artifact.Store
	catalog   *catalog.Catalog
	metrics   *metrics.Set
	log       *slog.Logger

	genTimeout time.Duration

	genMu      sync.Mutex
	generating map[string]bool
}

// New creates a Service from wired components.
func New(opts Options) *Service {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	timeout := opts.GenerationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Service{
		buffers:    opts.Buffers,
		policy:     opts.Policy,
		flusher:    opts.Flusher,
		datasets:   opts.Datasets,
		stacks:     opts.Stacks,
		pipeline:   opts.Pipeline,
		artifacts:  opts.Artifacts,
		catalog:    opts.Catalog,
		metrics:    m,
		log:        logging.Component("service"),
		genTimeout: timeout,
		generating: make(map[string]bool),
	}
}

// persist snapshots registry state when a catalog is attached. Persistence
// failures are logged, not propagated; the in-memory state is already the
// truth the caller observed.
func (s *Service) persist() {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.Persist(); err != nil {
		s.log.Error("catalog persist failed", "error", err)
	}
}

// ============================================================================
// Ingestion
// ============================================================================

// SubmitReading appends a reading to its station's buffer, creating the
// buffer on first contact. A full buffer rejects with ErrBufferFull and the
// reading is not stored. When the append pushes occupancy over the station's
// threshold, a flush is scheduled; the submit itself returns immediately.
func (s *Service) SubmitReading(rec reading.Record) error {
	if rec.StationID == "" {
		return apperrors.NewMissingField("station_id")
	}

	buf := s.buffers.GetOrCreate(rec.StationID)
	if err := buf.Append(rec); err != nil {
		s.metrics.ReadingsRejected.Inc()
		return err
	}
	s.metrics.ReadingsAccepted.Inc()

	status := buf.Status()
	s.metrics.BufferOccupancy.WithLabelValues(rec.StationID).Set(float64(status.Size))

	if s.policy != nil && s.policy.ShouldFlush(status) {
		s.flusher.Schedule(buf)
	}
	return nil
}

// BufferStatus returns a snapshot of one station's buffer.
func (s *Service) BufferStatus(stationID string) (buffer.Status, error) {
	buf := s.buffers.Get(stationID)
	if buf == nil {
		return buffer.Status{}, apperrors.Wrapf(apperrors.ErrStationNotFound, "%s", stationID)
	}
	return buf.Status(), nil
}

// Stations returns the ids of every station with a buffer.
func (s *Service) Stations() []string {
	return s.buffers.Stations()
}

// ProcessBuffer flushes one station's buffer synchronously and returns the
// flush report. A flush already running for the station rejects with
// ErrFlushInProgress.
func (s *Service) ProcessBuffer(ctx context.Context, stationID string) (flush.Report, error) {
	buf := s.buffers.Get(stationID)
	if buf == nil {
		return flush.Report{}, apperrors.Wrapf(apperrors.ErrStationNotFound, "%s", stationID)
	}
	return s.flusher.Flush(ctx, buf)
}

// ClearBuffer discards every buffered reading for a station without
// committing them. Returns the number discarded.
func (s *Service) ClearBuffer(stationID string) (int, error) {
	buf := s.buffers.Get(stationID)
	if buf == nil {
		return 0, apperrors.Wrapf(apperrors.ErrStationNotFound, "%s", stationID)
	}
	n := buf.Clear()
	s.metrics.BufferOccupancy.WithLabelValues(stationID).Set(0)
	s.log.Info("buffer cleared", "station", stationID, "discarded", n)
	return n, nil
}

// SweepBuffers flushes every non-empty station buffer. Used by the periodic
// sweep so readings below the threshold still reach durable storage.
// Stations already mid-flush are skipped, not errors.
func (s *Service) SweepBuffers(ctx context.Context) {
	for _, stationID := range s.buffers.Stations() {
		buf := s.buffers.Get(stationID)
		if buf == nil || buf.Len() == 0 {
			continue
		}
		if _, err := s.flusher.Flush(ctx, buf); err != nil && !apperrors.Is(err, apperrors.ErrFlushInProgress) {
			s.log.Warn("sweep flush failed", "station", stationID, "error", err)
		}
	}
}

// ============================================================================
// Datasets
// ============================================================================

// CreateDataset registers a new dataset.
func (s *Service) CreateDataset(name string) (dataset.Dataset, error) {
	if name == "" {
		return dataset.Dataset{}, apperrors.NewMissingField("name")
	}
	d := s.datasets.CreateDataset(name)
	s.persist()
	return d, nil
}

// PublishVersion publishes a new immutable version of a dataset and marks
// it current.
func (s *Service) PublishVersion(datasetID string, spec dataset.VersionSpec) (dataset.Version, error) {
	if len(spec.Variables) == 0 {
		return dataset.Version{}, apperrors.NewMissingField("variables")
	}
	if !spec.NativeResolution.Valid() {
		return dataset.Version{}, apperrors.NewValidation("native_resolution", spec.NativeResolution.String())
	}
	if !spec.Coverage.Valid() {
		return dataset.Version{}, apperrors.Wrap(apperrors.ErrInvalidTimeRange, "coverage is empty or inverted")
	}
	v, err := s.datasets.Publish(datasetID, spec)
	if err != nil {
		return dataset.Version{}, err
	}
	s.persist()
	return v, nil
}

// Datasets lists all datasets.
func (s *Service) Datasets() []dataset.Dataset {
	return s.datasets.Datasets()
}

// Versions lists a dataset's versions, oldest first.
func (s *Service) Versions(datasetID string) []dataset.Version {
	return s.datasets.Versions(datasetID)
}

// ============================================================================
// Stacks
// ============================================================================

// CreateStack builds a new stack, validating every item against its
// version's declared variables and coverage.
func (s *Service) CreateStack(spec stack.Spec) (stack.Stack, error) {
	if _, err := export.ParseFormat(spec.OutputFormat); err != nil {
		return stack.Stack{}, err
	}
	st, err := s.stacks.Create(spec)
	if err != nil {
		return stack.Stack{}, err
	}
	s.persist()
	return st, nil
}

// Stack returns one stack by id.
func (s *Service) Stack(stackID string) (stack.Stack, error) {
	return s.stacks.Get(stackID)
}

// Stacks lists all stacks.
func (s *Service) Stacks() []stack.Stack {
	return s.stacks.Stacks()
}

// AddStackItem appends an item at the tail order position.
func (s *Service) AddStackItem(stackID string, spec stack.ItemSpec) (stack.Item, error) {
	item, err := s.stacks.AddItem(stackID, spec)
	if err != nil {
		return stack.Item{}, err
	}
	s.persist()
	return item, nil
}

// RemoveStackItem removes an item; remaining items are renumbered densely.
func (s *Service) RemoveStackItem(stackID, itemID string) error {
	if err := s.stacks.RemoveItem(stackID, itemID); err != nil {
		return err
	}
	s.persist()
	return nil
}

// ReorderStack atomically applies a full permutation of a stack's items.
func (s *Service) ReorderStack(stackID string, newOrder []string) error {
	if err := s.stacks.Reorder(stackID, newOrder); err != nil {
		return err
	}
	s.persist()
	return nil
}

// ============================================================================
// Generation
// ============================================================================

// tryBeginGeneration claims the generation slot for a stack.
func (s *Service) tryBeginGeneration(stackID string) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generating[stackID] {
		return false
	}
	s.generating[stackID] = true
	return true
}

func (s *Service) endGeneration(stackID string) {
	s.genMu.Lock()
	delete(s.generating, stackID)
	s.genMu.Unlock()
}

// GenerationInProgress reports whether a generation is running for a stack.
func (s *Service) GenerationInProgress(stackID string) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generating[stackID]
}

// GenerateStack runs the aggregation pipeline for a stack, serializes the
// result in the stack's output format, stores the artifact, and swaps it in
// as the stack's current artifact. At most one generation runs per stack;
// a concurrent request is rejected with ErrGenerationInProgress.
//
// deadline bounds the run; zero means the service default. Cancellation is
// honored between pipeline stages. Once serialization has begun the run is
// committed: the artifact swap completes even if the caller has gone away,
// so a stack is never left marked generated without a readable artifact.
func (s *Service) GenerateStack(ctx context.Context, stackID string, deadline time.Duration) (stack.Stack, error) {
	if !s.tryBeginGeneration(stackID) {
		return stack.Stack{}, apperrors.Wrapf(apperrors.ErrGenerationInProgress, "stack %s", stackID)
	}
	defer s.endGeneration(stackID)

	st, err := s.stacks.Get(stackID)
	if err != nil {
		return stack.Stack{}, err
	}

	format, err := export.ParseFormat(st.OutputFormat)
	if err != nil {
		return stack.Stack{}, err
	}

	if deadline <= 0 {
		deadline = s.genTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	started := time.Now()
	result, err := s.pipeline.Run(runCtx, st)
	if err != nil {
		s.metrics.GenerationsFailed.Inc()
		return stack.Stack{}, err
	}

	if err := runCtx.Err(); err != nil {
		s.metrics.GenerationsFailed.Inc()
		return stack.Stack{}, err
	}

	// Point of no return: from here the run completes regardless of the
	// caller's context.
	data, err := export.Write(result, format)
	if err != nil {
		s.metrics.GenerationsFailed.Inc()
		return stack.Stack{}, err
	}

	key := fmt.Sprintf("stacks/%s/%s%s", stackID, uuid.NewString(), format.Extension())
	putCtx := context.WithoutCancel(runCtx)
	if err := s.artifacts.Put(putCtx, key, data, format.ContentType()); err != nil {
		s.metrics.GenerationsFailed.Inc()
		return stack.Stack{}, apperrors.Wrap(err, "store artifact")
	}

	ref := stack.ArtifactRef{
		Key:       key,
		Format:    string(format),
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.stacks.SetArtifact(stackID, ref); err != nil {
		s.metrics.GenerationsFailed.Inc()
		return stack.Stack{}, err
	}
	s.persist()

	elapsed := time.Since(started)
	s.metrics.GenerationsCompleted.Inc()
	s.metrics.GenerationSeconds.Observe(elapsed.Seconds())
	s.log.Info("generation completed",
		"stack", stackID,
		"format", format,
		"points", len(result.Values),
		"bytes", len(data),
		"elapsed", elapsed)

	return s.stacks.Get(stackID)
}

// Artifact returns the current artifact for a stack: bytes, content type,
// and the reference metadata.
func (s *Service) Artifact(ctx context.Context, stackID string) ([]byte, string, stack.ArtifactRef, error) {
	st, err := s.stacks.Get(stackID)
	if err != nil {
		return nil, "", stack.ArtifactRef{}, err
	}
	if st.Artifact == nil {
		return nil, "", stack.ArtifactRef{}, apperrors.NewNotFound("artifact for stack", stackID)
	}
	data, contentType, err := s.artifacts.Get(ctx, st.Artifact.Key)
	if err != nil {
		return nil, "", stack.ArtifactRef{}, err
	}
	return data, contentType, *st.Artifact, nil
}
