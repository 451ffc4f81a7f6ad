// Package stack models a dataset stack: an ordered combination of dataset
// versions to be merged into one output. Order is semantically significant;
// during aggregation, later-order items override earlier ones wherever both
// supply the same variable, cell, and timestamp.
package stack

import (
	"time"

	"github.com/fieldline/geostack/internal/grid"
)

// Item binds one dataset version into a stack: a variable subset, a
// requested time window inside the version's coverage, and an optional
// spatial resolution override. Order values are dense 1..N within a stack
// with no gaps, ever.
type Item struct {
	ID        string `json:"id"`
	StackID   string `json:"stack_id"`
	VersionID string `json:"version_id"`
	Order     int    `json:"order"`

	Variables          []string            `json:"variables"`
	Window             grid.TimeWindow     `json:"window"`
	TimeResolution     grid.TimeResolution `json:"time_resolution"`
	ResolutionOverride *grid.Resolution    `json:"resolution_override,omitempty"`
}

// EffectiveResolution returns the override if set, otherwise the given
// native resolution.
func (it *Item) EffectiveResolution(native grid.Resolution) grid.Resolution {
	if it.ResolutionOverride != nil {
		return *it.ResolutionOverride
	}
	return native
}

// ArtifactRef points at a generated output artifact in the blob store.
type ArtifactRef struct {
	Key       string    `json:"key"`
	Format    string    `json:"format"`
	Size      int64     `json:"size"`
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// Stack is an ordered list of items plus the requested output shape. At
// most one generation result is current; re-generation swaps the artifact
// reference atomically, never leaving two current artifacts.
type Stack struct {
	ID    string `json:"id"`
	Items []Item `json:"items"` // ascending dense order

	OutputFormat      string           `json:"output_format"`
	SpatialResolution *grid.Resolution `json:"spatial_resolution,omitempty"`

	Generated     bool         `json:"generated"`
	Artifact      *ArtifactRef `json:"artifact,omitempty"`
	GenerationSeq uint64       `json:"generation_seq"`

	CreatedAt time.Time `json:"created_at"`
}

// clone deep-copies the stack so registry callers never share slices with
// stored state.
func (s *Stack) clone() Stack {
	out := *s
	out.Items = make([]Item, len(s.Items))
	for i := range s.Items {
		out.Items[i] = s.Items[i]
		out.Items[i].Variables = append([]string(nil), s.Items[i].Variables...)
		if s.Items[i].ResolutionOverride != nil {
			r := *s.Items[i].ResolutionOverride
			out.Items[i].ResolutionOverride = &r
		}
	}
	if s.SpatialResolution != nil {
		r := *s.SpatialResolution
		out.SpatialResolution = &r
	}
	if s.Artifact != nil {
		a := *s.Artifact
		out.Artifact = &a
	}
	return out
}

// item looks up an item by id.
func (s *Stack) item(itemID string) (int, bool) {
	for i := range s.Items {
		if s.Items[i].ID == itemID {
			return i, true
		}
	}
	return 0, false
}

// renumber restores dense 1..N order values after removal or reorder.
func (s *Stack) renumber() {
	for i := range s.Items {
		s.Items[i].Order = i + 1
	}
}
