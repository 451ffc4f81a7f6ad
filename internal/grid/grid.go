// Package grid defines the spatial and temporal primitives shared by the
// dataset, pipeline, and export packages.
//
// Key types:
//   - Resolution: spatial cell size in degrees
//   - Cell: a cell index on a regular lat/lon grid
//   - TimeResolution: hourly/daily/monthly/yearly stepping
//   - TimeWindow: a half-open [start, end) time range
//   - Point: one observed value at a location and time
package grid

import (
	"fmt"
	"math"
	"time"
)

// Resolution is the spatial cell size of a regular lat/lon grid, in degrees.
// A larger value is a coarser grid.
type Resolution float64

// Valid returns true if the resolution is usable as a cell size.
func (r Resolution) Valid() bool {
	return r > 0 && r <= 90
}

// Coarser returns true if r is a coarser (larger-celled) grid than other.
func (r Resolution) Coarser(other Resolution) bool {
	return r > other
}

// String formats the resolution in degrees.
func (r Resolution) String() string {
	return fmt.Sprintf("%gdeg", float64(r))
}

// CoarsestResolution returns the coarsest of the given resolutions.
// Returns 0 for an empty slice.
func CoarsestResolution(rs []Resolution) Resolution {
	var coarsest Resolution
	for _, r := range rs {
		if r > coarsest {
			coarsest = r
		}
	}
	return coarsest
}

// Cell identifies one cell on a regular lat/lon grid at a given resolution.
// Row indexes latitude from -90 northward, Col indexes longitude from -180
// eastward, so the same (Row, Col) always names the same cell for a given
// resolution.
type Cell struct {
	Row int
	Col int
}

// CellAt returns the cell containing the given coordinate at the given
// resolution. Deterministic for identical inputs.
func CellAt(lat, lon float64, res Resolution) Cell {
	size := float64(res)
	return Cell{
		Row: int(math.Floor((lat + 90) / size)),
		Col: int(math.Floor((lon + 180) / size)),
	}
}

// Center returns the coordinate of the cell's center at the given resolution.
func (c Cell) Center(res Resolution) (lat, lon float64) {
	size := float64(res)
	lat = float64(c.Row)*size - 90 + size/2
	lon = float64(c.Col)*size - 180 + size/2
	return lat, lon
}

// TimeWindow is a half-open [Start, End) time range.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid returns true if the window is non-inverted and non-zero.
func (w TimeWindow) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.Start.Before(w.End)
}

// IsEmpty returns true if the window covers no time.
func (w TimeWindow) IsEmpty() bool {
	return !w.Start.Before(w.End)
}

// Contains returns true if ts falls inside the window.
func (w TimeWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// Within returns true if w is fully contained by outer.
func (w TimeWindow) Within(outer TimeWindow) bool {
	return !w.Start.Before(outer.Start) && !w.End.After(outer.End)
}

// Overlaps returns true if the two windows share any time.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Point is a single observed value for one variable at one location and time.
// A nil Value is an explicit gap in the source series.
type Point struct {
	Variable string
	Lat      float64
	Lon      float64
	Time     time.Time
	Value    *float64
}

// BuildTimeAxis constructs the output time axis for a set of requested
// windows: the union of all windows, stepped at the given resolution. A
// bucket is included iff it intersects at least one window. The axis is
// sorted ascending and empty when every window is empty.
func BuildTimeAxis(windows []TimeWindow, step TimeResolution) []time.Time {
	var start, end time.Time
	for _, w := range windows {
		if w.IsEmpty() {
			continue
		}
		if start.IsZero() || w.Start.Before(start) {
			start = w.Start
		}
		if end.IsZero() || w.End.After(end) {
			end = w.End
		}
	}
	if start.IsZero() {
		return nil
	}

	var axis []time.Time
	for bucket := step.Truncate(start); bucket.Before(end); bucket = step.Next(bucket) {
		bucketWindow := TimeWindow{Start: bucket, End: step.Next(bucket)}
		for _, w := range windows {
			if !w.IsEmpty() && w.Overlaps(bucketWindow) {
				axis = append(axis, bucket)
				break
			}
		}
	}
	return axis
}
