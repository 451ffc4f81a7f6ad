// Package flush implements the coordinator that drains a station buffer and
// commits its contents to durable storage, exactly once per invocation.
package flush

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fieldline/geostack/internal/buffer"
	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/logging"
	"github.com/fieldline/geostack/internal/metrics"
	"github.com/fieldline/geostack/internal/reading"
	"github.com/fieldline/geostack/internal/store"
)

// Report summarizes one flush.
type Report struct {
	RecordsProcessed int      `json:"records_processed"`
	RecordsFailed    int      `json:"records_failed"`
	Errors           []string `json:"errors,omitempty"`
}

// Coordinator drains buffers into a durable store. A flush already in
// progress for a station rejects concurrent flush requests rather than
// double-draining; racing triggers (threshold policy vs. manual process)
// otherwise both fire.
type Coordinator struct {
	store   store.Store
	metrics *metrics.Set
	log     *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewCoordinator creates a coordinator committing to the given store.
func NewCoordinator(st store.Store, m *metrics.Set) *Coordinator {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Coordinator{
		store:    st,
		metrics:  m,
		log:      logging.Component("flush"),
		inFlight: make(map[string]bool),
	}
}

// tryBegin marks a station flush in flight. Returns false if one already is.
func (c *Coordinator) tryBegin(stationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[stationID] {
		return false
	}
	c.inFlight[stationID] = true
	return true
}

func (c *Coordinator) end(stationID string) {
	c.mu.Lock()
	delete(c.inFlight, stationID)
	c.mu.Unlock()
}

// InProgress reports whether a flush is currently running for a station.
func (c *Coordinator) InProgress(stationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[stationID]
}

// Flush drains the entire current content of one buffer and commits it as a
// single batch. Per-record validation failures are counted and reported but
// never abort the batch and are never re-queued; the buffer's job is burst
// absorption, not a retry log. A storage-layer fault fails the flush.
func (c *Coordinator) Flush(ctx context.Context, buf *buffer.Buffer) (Report, error) {
	if !c.tryBegin(buf.StationID()) {
		return Report{}, apperrors.Wrapf(apperrors.ErrFlushInProgress, "station %s", buf.StationID())
	}
	defer c.end(buf.StationID())
	return c.run(ctx, buf)
}

// run performs the flush; the caller holds the station's in-flight slot.
func (c *Coordinator) run(ctx context.Context, buf *buffer.Buffer) (Report, error) {
	stationID := buf.StationID()

	// The drain is the only step that excludes appends; once it returns,
	// the buffer is free again for the rest of the flush.
	drained := buf.DrainAll()
	if len(drained) == 0 {
		return Report{}, nil
	}

	report := Report{}
	valid := make([]reading.Record, 0, len(drained))
	for i := range drained {
		if err := drained[i].Validate(); err != nil {
			report.RecordsFailed++
			report.Errors = append(report.Errors,
				fmt.Sprintf("record %d (station %s): %v", i, stationID, err))
			continue
		}
		valid = append(valid, drained[i])
	}

	if len(valid) > 0 {
		if err := c.store.CommitBatch(ctx, valid); err != nil {
			c.metrics.FlushesFailed.Inc()
			c.log.Error("commit failed", "station", stationID, "records", len(valid), "error", err)
			return Report{}, apperrors.Wrapf(err, "commit batch for station %s", stationID)
		}
	}

	report.RecordsProcessed = len(valid)
	c.metrics.FlushesCompleted.Inc()
	c.metrics.RecordsProcessed.Add(float64(report.RecordsProcessed))
	c.metrics.RecordsFailed.Add(float64(report.RecordsFailed))
	c.metrics.BufferOccupancy.WithLabelValues(stationID).Set(float64(buf.Len()))

	c.log.Debug("flush completed",
		"station", stationID,
		"processed", report.RecordsProcessed,
		"failed", report.RecordsFailed)

	return report, nil
}

// Schedule fires an asynchronous flush for the buffer, used by the
// threshold policy so the append that tripped it returns immediately.
// The in-flight slot is claimed synchronously, so a burst of triggering
// appends schedules exactly one flush; the rest are no-ops, not a queue.
func (c *Coordinator) Schedule(buf *buffer.Buffer) {
	if !c.tryBegin(buf.StationID()) {
		return
	}
	go func() {
		defer c.end(buf.StationID())
		if _, err := c.run(context.Background(), buf); err != nil {
			c.log.Warn("scheduled flush failed", "station", buf.StationID(), "error", err)
		}
	}()
}
