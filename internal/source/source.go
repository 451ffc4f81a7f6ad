// Package source provides the read path the aggregation pipeline pulls
// item data through: given a dataset version, a variable subset, and a time
// window, a Reader yields the raw points to resample. Readers are strictly
// read-only with respect to the versions they serve.
package source

import (
	"context"
	"sync"

	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/grid"
)

// Reader reads the raw series backing one dataset version.
type Reader interface {
	Read(ctx context.Context, versionID string, variables []string, window grid.TimeWindow) ([]grid.Point, error)
}

// Mux routes reads to the Reader registered for each version id. Versions
// without an explicit binding fall through to the default reader, if set.
type Mux struct {
	mu       sync.RWMutex
	readers  map[string]Reader
	fallback Reader
}

// NewMux creates an empty mux.
func NewMux() *Mux {
	return &Mux{readers: make(map[string]Reader)}
}

// Register binds a version id to a reader, replacing any previous binding.
func (m *Mux) Register(versionID string, r Reader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readers[versionID] = r
}

// SetDefault sets the reader used for versions with no explicit binding.
func (m *Mux) SetDefault(r Reader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = r
}

// Read implements Reader.
func (m *Mux) Read(ctx context.Context, versionID string, variables []string, window grid.TimeWindow) ([]grid.Point, error) {
	m.mu.RLock()
	r, ok := m.readers[versionID]
	if !ok {
		r = m.fallback
	}
	m.mu.RUnlock()

	if r == nil {
		return nil, apperrors.Wrapf(apperrors.ErrVersionNotFound, "no source bound for version %s", versionID)
	}
	return r.Read(ctx, versionID, variables, window)
}

// Memory is an in-memory Reader, used by tests and by versions whose data
// is registered directly.
type Memory struct {
	mu     sync.RWMutex
	series map[string][]grid.Point
}

// NewMemory creates an empty in-memory reader.
func NewMemory() *Memory {
	return &Memory{series: make(map[string][]grid.Point)}
}

// Put stores the points backing a version, replacing any previous data.
func (m *Memory) Put(versionID string, points []grid.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[versionID] = append([]grid.Point(nil), points...)
}

// Read implements Reader, filtering by variable and window.
func (m *Memory) Read(_ context.Context, versionID string, variables []string, window grid.TimeWindow) ([]grid.Point, error) {
	m.mu.RLock()
	points, ok := m.series[versionID]
	m.mu.RUnlock()

	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrVersionNotFound, "no data for version %s", versionID)
	}

	wanted := make(map[string]bool, len(variables))
	for _, v := range variables {
		wanted[v] = true
	}

	var out []grid.Point
	for _, p := range points {
		if wanted[p.Variable] && window.Contains(p.Time) {
			out = append(out, p)
		}
	}
	return out, nil
}
