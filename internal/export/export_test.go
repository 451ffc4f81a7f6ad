package export

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"strings"
	"testing"
	"time"

	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/grid"
	"github.com/fieldline/geostack/internal/pipeline"
)

// testResult builds a small two-variable result with provenance.
func testResult() *pipeline.Result {
	bucket := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cell := grid.CellAt(6.25, -75.5, 0.5)

	tempKey := pipeline.PointKey{Variable: "temperature", Cell: cell, Bucket: bucket.UnixMilli()}
	rainKey := pipeline.PointKey{Variable: "precipitation", Cell: cell, Bucket: bucket.UnixMilli()}

	return &pipeline.Result{
		StackID:    "stack-1",
		Resolution: 0.5,
		TimeStep:   grid.Daily,
		TimeAxis:   []time.Time{bucket},
		Values: map[pipeline.PointKey]float64{
			tempKey: 25,
			rainKey: 10,
		},
		Provenance: map[pipeline.PointKey]pipeline.Provenance{
			tempKey: {ItemID: "item-a", VersionID: "v-1", Order: 1},
			rainKey: {ItemID: "item-b", VersionID: "v-2", Order: 2},
		},
		Stats: map[string]pipeline.VariableStats{
			"temperature":   {Count: 1, Min: 25, Max: 25, Mean: 25},
			"precipitation": {Count: 1, Min: 10, Max: 10, Mean: 10},
		},
		Items: []pipeline.ItemMeta{
			{ItemID: "item-a", VersionID: "v-1", Order: 1, Variables: []string{"temperature"}},
			{ItemID: "item-b", VersionID: "v-2", Order: 2, Variables: []string{"precipitation"}},
		},
		GeneratedAt: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// Format dispatch
// =============================================================================

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"gridded", "csv", "raster", "json"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) = %v, want nil", s, err)
		}
	}
	if _, err := ParseFormat("xml"); !apperrors.Is(err, apperrors.ErrUnknownFormat) {
		t.Errorf("ParseFormat(xml) = %v, want ErrUnknownFormat", err)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	_, err := Write(testResult(), Format("netcdf"))
	if !apperrors.Is(err, apperrors.ErrUnknownFormat) {
		t.Fatalf("Write = %v, want ErrUnknownFormat", err)
	}
}

func TestWrite_AllFormatsProduceOutput(t *testing.T) {
	result := testResult()
	for _, f := range []Format{FormatGridded, FormatCSV, FormatRaster, FormatJSON} {
		data, err := Write(result, f)
		if err != nil {
			t.Errorf("Write(%s) = %v, want nil", f, err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("Write(%s) produced no bytes", f)
		}
	}
}

func TestWrite_Deterministic(t *testing.T) {
	result := testResult()
	for _, f := range []Format{FormatCSV, FormatJSON, FormatRaster} {
		a, err := Write(result, f)
		if err != nil {
			t.Fatalf("Write(%s) = %v", f, err)
		}
		b, err := Write(result, f)
		if err != nil {
			t.Fatalf("Write(%s) = %v", f, err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("Write(%s) not byte-identical across runs", f)
		}
	}
}

// =============================================================================
// CSV
// =============================================================================

func TestWriteCSV_HeaderAndRows(t *testing.T) {
	data, err := Write(testResult(), FormatCSV)
	if err != nil {
		t.Fatalf("Write = %v", err)
	}
	text := string(data)

	for _, want := range []string{
		"# stack_id: stack-1",
		"# time_step: daily",
		"# item: order=1 id=item-a",
		"# item: order=2 id=item-b",
		"variable,time,lat,lon,value",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("CSV missing %q", want)
		}
	}

	// Keys are emitted in sorted variable order.
	rainIdx := strings.Index(text, "precipitation,")
	tempIdx := strings.Index(text, "temperature,")
	if rainIdx < 0 || tempIdx < 0 {
		t.Fatal("CSV missing data rows")
	}
	if rainIdx > tempIdx {
		t.Error("CSV rows not in sorted variable order")
	}
}

// =============================================================================
// JSON
// =============================================================================

func TestWriteJSON_CarriesProvenanceAndStats(t *testing.T) {
	data, err := Write(testResult(), FormatJSON)
	if err != nil {
		t.Fatalf("Write = %v", err)
	}

	var doc struct {
		StackID string `json:"stack_id"`
		Points  []struct {
			Variable  string  `json:"variable"`
			Value     float64 `json:"value"`
			ItemOrder int     `json:"item_order"`
			ItemID    string  `json:"item_id"`
		} `json:"points"`
		Stats map[string]struct {
			Count int64 `json:"Count"`
		} `json:"stats"`
		Items []struct {
			Order int `json:"order"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}

	if doc.StackID != "stack-1" {
		t.Errorf("stack_id = %q, want stack-1", doc.StackID)
	}
	if len(doc.Points) != 2 {
		t.Fatalf("points = %d, want 2", len(doc.Points))
	}
	for _, p := range doc.Points {
		if p.ItemID == "" || p.ItemOrder == 0 {
			t.Errorf("point %q lost provenance: %+v", p.Variable, p)
		}
	}
	if len(doc.Stats) != 2 {
		t.Errorf("stats entries = %d, want 2", len(doc.Stats))
	}
	if len(doc.Items) != 2 {
		t.Errorf("items = %d, want 2", len(doc.Items))
	}
}

// =============================================================================
// Raster
// =============================================================================

func TestWriteRaster_FramingAndChecksums(t *testing.T) {
	data, err := Write(testResult(), FormatRaster)
	if err != nil {
		t.Fatalf("Write = %v", err)
	}

	buf := bytes.NewReader(data)
	var magic uint64
	var version uint32
	binary.Read(buf, binary.LittleEndian, &magic)
	binary.Read(buf, binary.LittleEndian, &version)
	if magic != rasterMagic {
		t.Fatalf("magic = %x, want %x", magic, rasterMagic)
	}
	if version != rasterVersion {
		t.Fatalf("version = %d, want %d", version, rasterVersion)
	}

	// Metadata frame plus one plane per (variable, bucket): 2 variables,
	// 1 bucket.
	frames := 0
	for buf.Len() > 0 {
		var length, sum uint32
		if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
			t.Fatalf("frame %d length: %v", frames, err)
		}
		if err := binary.Read(buf, binary.LittleEndian, &sum); err != nil {
			t.Fatalf("frame %d crc: %v", frames, err)
		}
		payload := make([]byte, length)
		if _, err := buf.Read(payload); err != nil {
			t.Fatalf("frame %d payload: %v", frames, err)
		}
		if crc32.ChecksumIEEE(payload) != sum {
			t.Errorf("frame %d checksum mismatch", frames)
		}
		frames++
	}
	if frames != 3 {
		t.Errorf("frames = %d, want 3 (metadata + 2 planes)", frames)
	}
}

func TestWriteRaster_EmptyResultFails(t *testing.T) {
	empty := &pipeline.Result{
		StackID:    "stack-1",
		Resolution: 0.5,
		TimeStep:   grid.Daily,
		Values:     map[pipeline.PointKey]float64{},
	}
	if _, err := Write(empty, FormatRaster); !apperrors.Is(err, apperrors.ErrExportWrite) {
		t.Fatalf("Write empty raster = %v, want ErrExportWrite", err)
	}
}

// =============================================================================
// Content metadata
// =============================================================================

func TestFormatMetadata(t *testing.T) {
	tests := []struct {
		format      Format
		contentType string
		extension   string
	}{
		{FormatGridded, "application/octet-stream", ".parquet"},
		{FormatCSV, "text/csv", ".csv"},
		{FormatRaster, "application/octet-stream", ".grd"},
		{FormatJSON, "application/json", ".json"},
	}
	for _, tt := range tests {
		if got := tt.format.ContentType(); got != tt.contentType {
			t.Errorf("%s ContentType = %q, want %q", tt.format, got, tt.contentType)
		}
		if got := tt.format.Extension(); got != tt.extension {
			t.Errorf("%s Extension = %q, want %q", tt.format, got, tt.extension)
		}
	}
}
