package grid

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeResolution is the temporal step of a series or an output time axis.
type TimeResolution int

const (
	// Hourly steps the axis at one bucket per hour.
	Hourly TimeResolution = iota
	// Daily steps the axis at one bucket per calendar day (UTC).
	Daily
	// Monthly steps the axis at one bucket per calendar month (UTC).
	Monthly
	// Yearly steps the axis at one bucket per calendar year (UTC).
	Yearly
)

// String returns the string representation of the resolution.
func (r TimeResolution) String() string {
	switch r {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	default:
		return fmt.Sprintf("unknown(%d)", r)
	}
}

// MarshalJSON encodes the resolution as its string form.
func (r TimeResolution) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes the string form produced by MarshalJSON.
func (r *TimeResolution) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeResolution(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseTimeResolution parses a string into a TimeResolution.
func ParseTimeResolution(s string) (TimeResolution, error) {
	switch s {
	case "hourly":
		return Hourly, nil
	case "daily":
		return Daily, nil
	case "monthly":
		return Monthly, nil
	case "yearly":
		return Yearly, nil
	default:
		return Hourly, fmt.Errorf("unknown time resolution: %s", s)
	}
}

// Truncate truncates a timestamp to the start of its bucket in UTC.
func (r TimeResolution) Truncate(ts time.Time) time.Time {
	ts = ts.UTC()
	switch r {
	case Hourly:
		return ts.Truncate(time.Hour)
	case Daily:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	case Monthly:
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(ts.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return ts
	}
}

// Next returns the start of the bucket following the given bucket start.
// Months and years are calendar steps, not fixed durations.
func (r TimeResolution) Next(bucket time.Time) time.Time {
	switch r {
	case Hourly:
		return bucket.Add(time.Hour)
	case Daily:
		return bucket.AddDate(0, 0, 1)
	case Monthly:
		return bucket.AddDate(0, 1, 0)
	case Yearly:
		return bucket.AddDate(1, 0, 0)
	default:
		return bucket
	}
}

// Coarser returns true if r is a coarser step than other.
func (r TimeResolution) Coarser(other TimeResolution) bool {
	return r > other
}

// CoarsestTimeResolution returns the coarsest of the given resolutions.
// Returns Hourly for an empty slice.
func CoarsestTimeResolution(rs []TimeResolution) TimeResolution {
	coarsest := Hourly
	for _, r := range rs {
		if r > coarsest {
			coarsest = r
		}
	}
	return coarsest
}

// AllTimeResolutions returns all resolutions in finest-to-coarsest order.
func AllTimeResolutions() []TimeResolution {
	return []TimeResolution{Hourly, Daily, Monthly, Yearly}
}
