// Package export renders a combined pipeline result into the requested
// output format. Every writer is lossless for the result's own data model:
// provenance and grid metadata are only omitted from formats that cannot
// represent them, never silently dropped elsewhere.
//
// Serialization is all-or-nothing: writers build the complete artifact in
// memory and return it as a single byte slice, so a failure partway through
// produces no artifact at all.
package export

import (
	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/pipeline"
)

// Format selects an output serialization.
type Format string

const (
	// FormatGridded is the columnar scientific container (Parquet).
	FormatGridded Format = "gridded"
	// FormatCSV is a flat table with a metadata header. Per-cell
	// provenance does not fit a flat row and is dropped; the contributing
	// item list is kept in the header.
	FormatCSV Format = "csv"
	// FormatRaster is a binary plane container: one CRC-framed value
	// plane and one provenance plane per (variable, time bucket).
	FormatRaster Format = "raster"
	// FormatJSON is a complete structured dump including provenance and
	// per-variable statistics.
	FormatJSON Format = "json"
)

// ParseFormat parses a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatGridded, FormatCSV, FormatRaster, FormatJSON:
		return Format(s), nil
	default:
		return "", apperrors.Wrapf(apperrors.ErrUnknownFormat, "%q", s)
	}
}

// ContentType returns the MIME type served for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the artifact file extension for a format.
func (f Format) Extension() string {
	switch f {
	case FormatGridded:
		return ".parquet"
	case FormatCSV:
		return ".csv"
	case FormatRaster:
		return ".grd"
	case FormatJSON:
		return ".json"
	default:
		return ".bin"
	}
}

// Write serializes the result in the given format.
func Write(result *pipeline.Result, format Format) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatGridded:
		data, err = writeGridded(result)
	case FormatCSV:
		data, err = writeCSV(result)
	case FormatRaster:
		data, err = writeRaster(result)
	case FormatJSON:
		data, err = writeJSON(result)
	default:
		return nil, apperrors.Wrapf(apperrors.ErrUnknownFormat, "%q", format)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrExportWrite, err.Error())
	}
	return data, nil
}
