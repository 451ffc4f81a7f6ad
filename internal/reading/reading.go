// Package reading defines the core data unit flowing through the ingestion
// side of the system: one timestamped set of measured fields from a station
// or field device.
package reading

import (
	"fmt"
	"sort"
	"time"

	apperrors "github.com/fieldline/geostack/internal/errors"
)

// Record represents a single reading submitted by a station.
// Immutable once created; the buffer and flush paths copy it by value.
type Record struct {
	// StationID identifies the submitting station or field device.
	StationID string

	// Timestamp is the observation time, not the arrival time.
	Timestamp time.Time

	// Fields maps variable name to measured value. A nil value is an
	// explicit gap reported by the device (sensor offline, out of range).
	Fields map[string]*float64
}

// New builds a record, copying the fields map so later caller mutation
// cannot reach the stored record.
func New(stationID string, ts time.Time, fields map[string]*float64) Record {
	copied := make(map[string]*float64, len(fields))
	for k, v := range fields {
		if v != nil {
			val := *v
			copied[k] = &val
		} else {
			copied[k] = nil
		}
	}
	return Record{StationID: stationID, Timestamp: ts, Fields: copied}
}

// Validate checks the record for commit. Records failing validation are
// counted and reported by the flush, never retained.
func (r Record) Validate() error {
	if r.StationID == "" {
		return apperrors.NewMissingField("station_id")
	}
	if r.Timestamp.IsZero() {
		return apperrors.NewMissingField("timestamp")
	}
	if len(r.Fields) == 0 {
		return apperrors.NewMissingField("fields")
	}
	for name := range r.Fields {
		if name == "" {
			return fmt.Errorf("empty field name: %w", apperrors.ErrMissingField)
		}
	}
	return nil
}

// FieldNames returns the record's variable names in sorted order.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value returns the value for a field and whether it is present (non-gap).
func (r Record) Value(field string) (float64, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}
