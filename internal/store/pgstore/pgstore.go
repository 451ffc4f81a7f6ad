// Package pgstore implements the durable reading store on PostgreSQL via a
// pgx pool. Commits run through a circuit breaker so a struggling database
// surfaces quickly as a storage fault instead of piling up slow flushes.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/reading"
)

const insertSQL = `
    INSERT INTO geostack.readings (station_id, variable, observed_at, value)
    VALUES ($1, $2, $3, $4)
`

// Store commits readings into the geostack.readings table.
type Store struct {
	pool    *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "pgstore",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Store{pool: pool, breaker: cb}, nil
}

// CommitBatch implements store.Store. The batch goes out in one pgx.Batch
// round trip inside a transaction, so a storage fault leaves no partial
// batch committed.
func (s *Store) CommitBatch(ctx context.Context, batch []reading.Record) error {
	if len(batch) == 0 {
		return nil
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.commit(ctx, batch)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "circuit open")
	}
	return err
}

func (s *Store) commit(ctx context.Context, records []reading.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	pgBatch := &pgx.Batch{}
	queued := 0
	for i := range records {
		rec := &records[i]
		for _, name := range rec.FieldNames() {
			var value *float64
			if v, ok := rec.Value(name); ok {
				value = &v
			}
			pgBatch.Queue(insertSQL, rec.StationID, name, rec.Timestamp.UTC(), value)
			queued++
		}
	}

	results := tx.SendBatch(ctx, pgBatch)
	for i := 0; i < queued; i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert reading: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
