package dataset

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/fieldline/geostack/internal/errors"
)

// Registry is the in-memory index of datasets and their versions. The
// stacking subsystem reads from it; only publication writes to it.
type Registry struct {
	mu        sync.RWMutex
	datasets  map[string]*Dataset
	versions  map[string]*Version
	byDataset map[string][]string // dataset id -> version ids, oldest first
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		datasets:  make(map[string]*Dataset),
		versions:  make(map[string]*Version),
		byDataset: make(map[string][]string),
	}
}

// CreateDataset registers a new dataset.
func (r *Registry) CreateDataset(name string) Dataset {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := &Dataset{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	r.datasets[d.ID] = d
	return *d
}

// Publish adds a new version to a dataset and marks it current, clearing
// the current flag on the previous version. The version is immutable after
// this call.
func (r *Registry) Publish(datasetID string, spec VersionSpec) (Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.datasets[datasetID]; !ok {
		return Version{}, apperrors.NewNotFound("dataset", datasetID)
	}

	v := NewVersion(datasetID, spec)
	v.Current = true

	for _, id := range r.byDataset[datasetID] {
		r.versions[id].Current = false
	}

	r.versions[v.ID] = &v
	r.byDataset[datasetID] = append(r.byDataset[datasetID], v.ID)
	return v.clone(), nil
}

// Version returns a version by id.
func (r *Registry) Version(id string) (Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.versions[id]
	if !ok {
		return Version{}, apperrors.Wrapf(apperrors.ErrVersionNotFound, "%s", id)
	}
	return v.clone(), nil
}

// CurrentVersion returns the version currently marked current for a dataset.
func (r *Registry) CurrentVersion(datasetID string) (Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.byDataset[datasetID] {
		if v := r.versions[id]; v.Current {
			return v.clone(), nil
		}
	}
	return Version{}, apperrors.Wrapf(apperrors.ErrVersionNotFound, "dataset %s has no current version", datasetID)
}

// Datasets returns all registered datasets.
func (r *Registry) Datasets() []Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Dataset, 0, len(r.datasets))
	for _, d := range r.datasets {
		out = append(out, *d)
	}
	return out
}

// Snapshot is the serializable registry state. Versions are grouped per
// dataset, oldest first, so import reconstructs publication order.
type Snapshot struct {
	Datasets []Dataset `json:"datasets"`
	Versions []Version `json:"versions"`
}

// Export copies the registry state for persistence.
func (r *Registry) Export() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var snap Snapshot
	for _, d := range r.datasets {
		snap.Datasets = append(snap.Datasets, *d)
	}
	for _, ids := range r.byDataset {
		for _, id := range ids {
			snap.Versions = append(snap.Versions, r.versions[id].clone())
		}
	}
	return snap
}

// Import replaces the registry state with a snapshot.
func (r *Registry) Import(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.datasets = make(map[string]*Dataset, len(snap.Datasets))
	r.versions = make(map[string]*Version, len(snap.Versions))
	r.byDataset = make(map[string][]string)

	for i := range snap.Datasets {
		d := snap.Datasets[i]
		r.datasets[d.ID] = &d
	}
	for i := range snap.Versions {
		v := snap.Versions[i].clone()
		r.versions[v.ID] = &v
		r.byDataset[v.DatasetID] = append(r.byDataset[v.DatasetID], v.ID)
	}
}

// Versions returns all versions of a dataset, oldest first.
func (r *Registry) Versions(datasetID string) []Version {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byDataset[datasetID]
	out := make([]Version, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.versions[id].clone())
	}
	return out
}
