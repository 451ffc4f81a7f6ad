package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/grid"
)

// Location is the fixed coordinate of a station.
type Location struct {
	Lat float64
	Lon float64
}

// DuckDB reads dataset versions whose backing data is the committed
// Parquet batches from the ingestion side. Committed readings carry only a
// station id, so the reader resolves coordinates through a station
// location table supplied at construction.
type DuckDB struct {
	mu          sync.RWMutex
	db          *sql.DB
	stations    map[string]Location
	globs       map[string]string // version id -> parquet glob
	defaultGlob string
}

// NewDuckDB opens an in-memory DuckDB instance for querying Parquet files.
func NewDuckDB(stations map[string]Location) (*DuckDB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	copied := make(map[string]Location, len(stations))
	for id, loc := range stations {
		copied[id] = loc
	}

	return &DuckDB{
		db:       db,
		stations: copied,
		globs:    make(map[string]string),
	}, nil
}

// Bind maps a version id to a Parquet file glob (for example
// "data/readings/batch_*.parquet").
func (d *DuckDB) Bind(versionID, glob string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.globs[versionID] = glob
}

// SetDefaultGlob sets the glob used for versions with no explicit binding,
// typically the full committed batch directory.
func (d *DuckDB) SetDefaultGlob(glob string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaultGlob = glob
}

// SetStation registers or updates a station coordinate.
func (d *DuckDB) SetStation(stationID string, loc Location) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stations[stationID] = loc
}

// Close releases the database handle.
func (d *DuckDB) Close() error {
	return d.db.Close()
}

// Read implements Reader. Rows flagged missing come back as nil-valued
// points so downstream resampling sees the gap instead of a zero.
func (d *DuckDB) Read(ctx context.Context, versionID string, variables []string, window grid.TimeWindow) ([]grid.Point, error) {
	d.mu.RLock()
	glob, ok := d.globs[versionID]
	if !ok {
		glob, ok = d.defaultGlob, d.defaultGlob != ""
	}
	d.mu.RUnlock()

	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrVersionNotFound, "no parquet binding for version %s", versionID)
	}
	if len(variables) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(variables))
	args := make([]any, 0, len(variables)+3)
	args = append(args, glob)
	for i, v := range variables {
		placeholders[i] = "?"
		args = append(args, v)
	}
	args = append(args, window.Start.UnixMilli(), window.End.UnixMilli())

	query := fmt.Sprintf(`
        SELECT station_id, variable, timestamp_ms, value, missing
        FROM read_parquet(?)
        WHERE variable IN (%s)
          AND timestamp_ms >= ? AND timestamp_ms < ?
        ORDER BY timestamp_ms`, strings.Join(placeholders, ","))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query parquet: %w", err)
	}
	defer rows.Close()

	var points []grid.Point
	for rows.Next() {
		var (
			stationID string
			variable  string
			tsMs      int64
			value     float64
			missing   bool
		)
		if err := rows.Scan(&stationID, &variable, &tsMs, &value, &missing); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		d.mu.RLock()
		loc, ok := d.stations[stationID]
		d.mu.RUnlock()
		if !ok {
			// Station with no registered coordinate cannot be gridded.
			continue
		}

		p := grid.Point{
			Variable: variable,
			Lat:      loc.Lat,
			Lon:      loc.Lon,
			Time:     time.UnixMilli(tsMs).UTC(),
		}
		if !missing {
			v := value
			p.Value = &v
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
