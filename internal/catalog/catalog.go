// Package catalog persists dataset, version, and stack metadata across
// restarts. State lives in the in-memory registries; the catalog snapshots
// them to a single SQLite table as JSON blobs after every mutation and
// reloads them at startup.
package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/fieldline/geostack/internal/dataset"
	"github.com/fieldline/geostack/internal/stack"
)

const (
	bucketDatasets = "datasets"
	bucketStacks   = "stacks"
)

// Catalog snapshots registry state into SQLite.
type Catalog struct {
	mu       sync.Mutex
	db       *sql.DB
	datasets *dataset.Registry
	stacks   *stack.Registry
}

// Open opens (or creates) the catalog database and loads any previous
// snapshot into the registries.
func Open(path string, datasets *dataset.Registry, stacks *stack.Registry) (*Catalog, error) {
	if path == "" {
		path = "geostack.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	c := &Catalog{db: db, datasets: datasets, stacks: stacks}
	if err := c.load(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) load() error {
	rows, err := c.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}

		switch bucket {
		case bucketDatasets:
			var snap dataset.Snapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				return fmt.Errorf("decode datasets: %w", err)
			}
			c.datasets.Import(snap)
		case bucketStacks:
			var snap stack.Snapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				return fmt.Errorf("decode stacks: %w", err)
			}
			c.stacks.Import(snap)
		}
	}
	return rows.Err()
}

// Persist writes the current state of both registries. The two buckets go
// out in one transaction so a reload never sees a stack referencing a
// version from a different snapshot generation.
func (c *Catalog) Persist() (retErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	datasets, err := json.Marshal(c.datasets.Export())
	if err != nil {
		return fmt.Errorf("encode datasets: %w", err)
	}
	stacks, err := json.Marshal(c.stacks.Export())
	if err != nil {
		return fmt.Errorf("encode stacks: %w", err)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			tx.Rollback()
		}
	}()

	const upsert = `INSERT INTO state (bucket, payload) VALUES (?, ?)
		ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`
	if _, err := tx.Exec(upsert, bucketDatasets, datasets); err != nil {
		return fmt.Errorf("write datasets: %w", err)
	}
	if _, err := tx.Exec(upsert, bucketStacks, stacks); err != nil {
		return fmt.Errorf("write stacks: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
