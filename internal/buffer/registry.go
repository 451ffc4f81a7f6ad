package buffer

import "sync"

// Registry owns the per-station buffers. A buffer is created lazily on the
// first reading for a station and never destroyed afterwards, only drained
// or cleared.
type Registry struct {
	mu       sync.RWMutex
	defaults Options
	buffers  map[string]*Buffer
}

// NewRegistry creates a registry that builds new buffers with the given
// default options.
func NewRegistry(defaults Options) *Registry {
	return &Registry{
		defaults: defaults.normalize(),
		buffers:  make(map[string]*Buffer),
	}
}

// GetOrCreate returns the buffer for a station, creating it on first use.
func (r *Registry) GetOrCreate(stationID string) *Buffer {
	r.mu.RLock()
	b, ok := r.buffers[stationID]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buffers[stationID]; ok {
		return b
	}
	b = New(stationID, r.defaults)
	r.buffers[stationID] = b
	return b
}

// Get returns the buffer for a station, or nil if none exists yet.
func (r *Registry) Get(stationID string) *Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffers[stationID]
}

// Stations returns the ids of all stations with a buffer.
func (r *Registry) Stations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.buffers))
	for id := range r.buffers {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of buffers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buffers)
}
