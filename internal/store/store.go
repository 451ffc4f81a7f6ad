// Package store defines the durable storage contract consumed by the flush
// coordinator, plus an in-memory implementation used by tests and
// single-process deployments. File- and database-backed implementations
// live in the parquetstore and pgstore subpackages.
package store

import (
	"context"

	"github.com/fieldline/geostack/internal/reading"
)

// Store commits drained readings to durable storage.
//
// CommitBatch writes one flush's worth of records as a single batch. The
// records have already passed per-record validation; an error from
// CommitBatch is a storage-layer fault and fails the whole flush.
type Store interface {
	CommitBatch(ctx context.Context, batch []reading.Record) error
	Close() error
}
