package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/fieldline/geostack/internal/pipeline"
)

// writeCSV serializes the result as a flat table. The format cannot carry
// per-cell provenance; the metadata header keeps the grid parameters and
// the contributing item list so the artifact remains self-describing.
func writeCSV(result *pipeline.Result) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# stack_id: %s\n", result.StackID)
	fmt.Fprintf(&buf, "# spatial_resolution: %s\n", result.Resolution)
	fmt.Fprintf(&buf, "# time_step: %s\n", result.TimeStep)
	fmt.Fprintf(&buf, "# generated_at: %s\n", result.GeneratedAt.Format(time.RFC3339))
	for _, item := range result.Items {
		fmt.Fprintf(&buf, "# item: order=%d id=%s version=%s\n", item.Order, item.ItemID, item.VersionID)
	}

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"variable", "time", "lat", "lon", "value"}); err != nil {
		return nil, err
	}

	for _, key := range result.SortedKeys() {
		lat, lon := key.Cell.Center(result.Resolution)
		record := []string{
			key.Variable,
			time.UnixMilli(key.Bucket).UTC().Format(time.RFC3339),
			strconv.FormatFloat(lat, 'f', -1, 64),
			strconv.FormatFloat(lon, 'f', -1, 64),
			strconv.FormatFloat(result.Values[key], 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
