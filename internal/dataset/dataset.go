// Package dataset models the versioned, immutable-once-published data
// sources consumed by the stacking subsystem. The stacking side holds
// versions by id and never mutates them.
package dataset

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fieldline/geostack/internal/grid"
)

// Dataset groups the versions of one logical source.
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Version is one immutable published revision of a dataset: a declared
// variable set, a native spatial and temporal resolution, and a time
// coverage. Exactly one version per dataset is marked current at a time.
type Version struct {
	ID        string `json:"id"`
	DatasetID string `json:"dataset_id"`

	Variables            []string            `json:"variables"`
	NativeResolution     grid.Resolution     `json:"native_resolution"`
	NativeTimeResolution grid.TimeResolution `json:"native_time_resolution"`
	Coverage             grid.TimeWindow     `json:"coverage"`

	Current   bool      `json:"current"`
	CreatedAt time.Time `json:"created_at"`
}

// HasVariable returns true if the version declares the variable.
func (v *Version) HasVariable(name string) bool {
	for _, declared := range v.Variables {
		if declared == name {
			return true
		}
	}
	return false
}

// clone returns a deep copy so registry callers cannot mutate stored state.
func (v *Version) clone() Version {
	out := *v
	out.Variables = append([]string(nil), v.Variables...)
	return out
}

// VersionSpec describes a version to publish.
type VersionSpec struct {
	Variables            []string
	NativeResolution     grid.Resolution
	NativeTimeResolution grid.TimeResolution
	Coverage             grid.TimeWindow
}

// NewVersion materializes a spec into a Version owned by the dataset.
// Variables are deduplicated and sorted so declaration order is not
// significant.
func NewVersion(datasetID string, spec VersionSpec) Version {
	seen := make(map[string]bool, len(spec.Variables))
	vars := make([]string, 0, len(spec.Variables))
	for _, name := range spec.Variables {
		if name != "" && !seen[name] {
			seen[name] = true
			vars = append(vars, name)
		}
	}
	sort.Strings(vars)

	return Version{
		ID:                   uuid.NewString(),
		DatasetID:            datasetID,
		Variables:            vars,
		NativeResolution:     spec.NativeResolution,
		NativeTimeResolution: spec.NativeTimeResolution,
		Coverage:             spec.Coverage,
		CreatedAt:            time.Now().UTC(),
	}
}
