package export

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/fieldline/geostack/internal/pipeline"
)

// griddedRow is the Parquet representation of one merged point, carrying
// full provenance.
type griddedRow struct {
	Variable  string  `parquet:"variable,zstd"`
	BucketMs  int64   `parquet:"bucket_ms"`
	Row       int32   `parquet:"row"`
	Col       int32   `parquet:"col"`
	Lat       float64 `parquet:"lat"`
	Lon       float64 `parquet:"lon"`
	Value     float64 `parquet:"value"`
	ItemOrder int32   `parquet:"item_order"`
	ItemID    string  `parquet:"item_id,zstd"`
	VersionID string  `parquet:"version_id,zstd"`
}

// writeGridded serializes the result as a Parquet file with the grid
// parameters attached as file metadata.
func writeGridded(result *pipeline.Result) ([]byte, error) {
	var buf bytes.Buffer

	w := parquet.NewGenericWriter[griddedRow](&buf,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata("stack_id", result.StackID),
		parquet.KeyValueMetadata("spatial_resolution", result.Resolution.String()),
		parquet.KeyValueMetadata("time_step", result.TimeStep.String()),
		parquet.KeyValueMetadata("generated_at", result.GeneratedAt.Format("2006-01-02T15:04:05Z")),
	)

	rows := make([]griddedRow, 0, len(result.Values))
	for _, key := range result.SortedKeys() {
		prov := result.Provenance[key]
		lat, lon := key.Cell.Center(result.Resolution)
		rows = append(rows, griddedRow{
			Variable:  key.Variable,
			BucketMs:  key.Bucket,
			Row:       int32(key.Cell.Row),
			Col:       int32(key.Cell.Col),
			Lat:       lat,
			Lon:       lon,
			Value:     result.Values[key],
			ItemOrder: int32(prov.Order),
			ItemID:    prov.ItemID,
			VersionID: prov.VersionID,
		})
	}

	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}
