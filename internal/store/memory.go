package store

import (
	"context"
	"sync"

	"github.com/fieldline/geostack/internal/reading"
)

// Memory is an in-memory Store. It keeps committed records in arrival
// order and can be told to fail, which tests use to simulate storage-layer
// faults.
type Memory struct {
	mu      sync.Mutex
	records []reading.Record
	failErr error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// CommitBatch implements Store.
func (m *Memory) CommitBatch(_ context.Context, batch []reading.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return m.failErr
	}
	m.records = append(m.records, batch...)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

// Records returns a copy of all committed records.
func (m *Memory) Records() []reading.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]reading.Record, len(m.records))
	copy(out, m.records)
	return out
}

// Fail makes subsequent commits return err. Pass nil to recover.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}
