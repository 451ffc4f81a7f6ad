// Package buffer implements the per-station ingestion buffer: a bounded,
// arrival-ordered queue of readings awaiting durable commit.
//
// Unlike a ring buffer, a full buffer rejects the append instead of
// overwriting the oldest entry. Readings are measurement data; loss must be
// explicit and reported to the caller, never hidden.
package buffer

import (
	"sync"
	"sync/atomic"

	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/reading"
)

// Options configures a buffer at creation time.
type Options struct {
	// MaxSize is the buffer capacity. Appends beyond it fail.
	MaxSize int

	// AutoProcess enables the threshold flush policy.
	AutoProcess bool

	// ProcessThreshold is the occupancy at which the policy fires.
	// Clamped to MaxSize.
	ProcessThreshold int
}

// DefaultOptions returns the default buffer options.
func DefaultOptions() Options {
	return Options{
		MaxSize:          1024,
		AutoProcess:      true,
		ProcessThreshold: 256,
	}
}

// normalize applies bounds to the options. The threshold never exceeds the
// capacity.
func (o Options) normalize() Options {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultOptions().MaxSize
	}
	if o.ProcessThreshold <= 0 {
		o.ProcessThreshold = o.MaxSize
	}
	if o.ProcessThreshold > o.MaxSize {
		o.ProcessThreshold = o.MaxSize
	}
	return o
}

// Buffer is a bounded, ordered buffer of not-yet-committed readings for one
// station. Append and drain on the same buffer are serialized by a
// per-buffer mutex; buffers for different stations are fully independent.
type Buffer struct {
	mu sync.Mutex

	stationID string
	items     []reading.Record
	opts      Options

	// Statistics
	appendCount atomic.Int64
	drainCount  atomic.Int64
	rejectCount atomic.Int64
	clearCount  atomic.Int64
}

// New creates a buffer for one station.
func New(stationID string, opts Options) *Buffer {
	opts = opts.normalize()
	return &Buffer{
		stationID: stationID,
		items:     make([]reading.Record, 0, opts.MaxSize),
		opts:      opts,
	}
}

// StationID returns the owning station's identity.
func (b *Buffer) StationID() string {
	return b.stationID
}

// Append adds a record at the tail. Returns ErrBufferFull if the buffer is
// at capacity; the record is not stored and the caller must resubmit later.
func (b *Buffer) Append(rec reading.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) >= b.opts.MaxSize {
		b.rejectCount.Add(1)
		return apperrors.Wrapf(apperrors.ErrBufferFull, "station %s at capacity %d", b.stationID, b.opts.MaxSize)
	}

	b.items = append(b.items, rec)
	b.appendCount.Add(1)
	return nil
}

// Drain atomically removes and returns the first n records, or all of them
// if fewer are buffered. The returned slice preserves arrival order.
func (b *Buffer) Drain(n int) []reading.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.items) {
		n = len(b.items)
	}
	if n == 0 {
		return nil
	}

	drained := make([]reading.Record, n)
	copy(drained, b.items[:n])
	remaining := copy(b.items, b.items[n:])
	b.items = b.items[:remaining]
	b.drainCount.Add(int64(n))

	return drained
}

// DrainAll atomically removes and returns every buffered record.
func (b *Buffer) DrainAll() []reading.Record {
	return b.Drain(0)
}

// Clear empties the buffer unconditionally and returns the number of
// records discarded. Destructive; invoked only by an explicit user action,
// never by policy.
func (b *Buffer) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.items)
	b.items = b.items[:0]
	b.clearCount.Add(1)
	return n
}

// Len returns the current number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Status is a read-only snapshot of the buffer.
type Status struct {
	StationID   string
	Size        int
	MaxSize     int
	AutoProcess bool
	Threshold   int

	Appended int64
	Drained  int64
	Rejected int64
}

// Status returns a snapshot of the buffer's occupancy and configuration.
func (b *Buffer) Status() Status {
	b.mu.Lock()
	size := len(b.items)
	b.mu.Unlock()

	return Status{
		StationID:   b.stationID,
		Size:        size,
		MaxSize:     b.opts.MaxSize,
		AutoProcess: b.opts.AutoProcess,
		Threshold:   b.opts.ProcessThreshold,
		Appended:    b.appendCount.Load(),
		Drained:     b.drainCount.Load(),
		Rejected:    b.rejectCount.Load(),
	}
}
