package pipeline

import (
	"github.com/fieldline/geostack/internal/grid"
)

// srcLocation is an exact source coordinate. Temporal resampling happens
// per location first, then locations are averaged into the target cell, so
// an accumulative variable is summed over time but never over space.
type srcLocation struct {
	lat float64
	lon float64
}

type tempKey struct {
	variable string
	loc      srcLocation
	bucket   int64
}

type tempAcc struct {
	sum   float64
	count int64
}

// resample converts one item's raw points onto the target grid and time
// axis. Nil-valued points are gaps and contribute nothing; a bucket whose
// every source point is a gap stays absent from the output. Deterministic
// for identical inputs.
func resample(points []grid.Point, res grid.Resolution, step grid.TimeResolution) map[PointKey]float64 {
	// Stage 1: temporal, per source location. Mean for continuous
	// variables, sum for accumulative ones.
	temporal := make(map[tempKey]*tempAcc)
	for _, p := range points {
		if p.Value == nil {
			continue
		}
		key := tempKey{
			variable: p.Variable,
			loc:      srcLocation{lat: p.Lat, lon: p.Lon},
			bucket:   step.Truncate(p.Time).UnixMilli(),
		}
		acc := temporal[key]
		if acc == nil {
			acc = &tempAcc{}
			temporal[key] = acc
		}
		acc.sum += *p.Value
		acc.count++
	}

	// Stage 2: spatial, area-weighted down to the target cell. Point
	// sources weigh equally within a cell, so this is the mean of the
	// per-location bucket values for every variable kind.
	type spatialAcc struct {
		sum   float64
		count int64
	}
	spatial := make(map[PointKey]*spatialAcc)
	for key, acc := range temporal {
		var bucketValue float64
		switch grid.KindOf(key.variable) {
		case grid.Accumulative:
			bucketValue = acc.sum
		default:
			bucketValue = acc.sum / float64(acc.count)
		}

		pk := PointKey{
			Variable: key.variable,
			Cell:     grid.CellAt(key.loc.lat, key.loc.lon, res),
			Bucket:   key.bucket,
		}
		sacc := spatial[pk]
		if sacc == nil {
			sacc = &spatialAcc{}
			spatial[pk] = sacc
		}
		sacc.sum += bucketValue
		sacc.count++
	}

	out := make(map[PointKey]float64, len(spatial))
	for pk, acc := range spatial {
		out[pk] = acc.sum / float64(acc.count)
	}
	return out
}
