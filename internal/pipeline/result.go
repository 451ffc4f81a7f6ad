package pipeline

import (
	"sort"
	"time"

	"github.com/fieldline/geostack/internal/grid"
)

// PointKey addresses one merged value: a variable on a grid cell in a time
// bucket. Bucket is the bucket start in Unix milliseconds.
type PointKey struct {
	Variable string
	Cell     grid.Cell
	Bucket   int64
}

// Provenance records which stack item supplied a merged value. It is
// retained per point, not discarded at merge time, so per-dataset series
// can still be separated out of a combined result.
type Provenance struct {
	ItemID    string
	VersionID string
	Order     int
}

// ItemMeta summarizes one contributing item for serializers.
type ItemMeta struct {
	ItemID    string
	VersionID string
	Order     int
	Variables []string
}

// VariableStats summarizes the merged values of one variable.
type VariableStats struct {
	Count int64
	Min   float64
	Max   float64
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
}

// Result is the in-memory combined output of one pipeline run.
type Result struct {
	StackID    string
	Resolution grid.Resolution
	TimeStep   grid.TimeResolution
	TimeAxis   []time.Time

	Values     map[PointKey]float64
	Provenance map[PointKey]Provenance
	Stats      map[string]VariableStats
	Items      []ItemMeta

	GeneratedAt time.Time
}

// SortedKeys returns every populated point key in a stable order: variable,
// then bucket, then cell row and column. Serializers iterate this so equal
// inputs produce byte-identical artifacts.
func (r *Result) SortedKeys() []PointKey {
	keys := make([]PointKey, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Variable != b.Variable {
			return a.Variable < b.Variable
		}
		if a.Bucket != b.Bucket {
			return a.Bucket < b.Bucket
		}
		if a.Cell.Row != b.Cell.Row {
			return a.Cell.Row < b.Cell.Row
		}
		return a.Cell.Col < b.Cell.Col
	})
	return keys
}

// Variables returns the merged variable names in sorted order.
func (r *Result) Variables() []string {
	seen := make(map[string]bool)
	for k := range r.Values {
		seen[k.Variable] = true
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// Cells returns the populated cells in row/col order.
func (r *Result) Cells() []grid.Cell {
	seen := make(map[grid.Cell]bool)
	for k := range r.Values {
		seen[k.Cell] = true
	}
	cells := make([]grid.Cell, 0, len(seen))
	for c := range seen {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
	return cells
}
