package export

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/fieldline/geostack/internal/pipeline"
)

// Raster container format:
//   - Header: 8 bytes magic + 4 bytes version
//   - Frames: [4 bytes length][4 bytes crc32][payload]
//
// The first frame is the grid metadata; every following frame is one
// (variable, time bucket) plane holding a row-major float64 value plane
// (NaN = absent) and an int32 provenance plane (stack order, 0 = absent).
const (
	rasterMagic   uint64 = 0x4753525354520001 // "GSRSTR" + version 1
	rasterVersion uint32 = 1
)

func writeFrame(buf *bytes.Buffer, payload []byte) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(payload))); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(payload)); err != nil {
		return err
	}
	_, err := buf.Write(payload)
	return err
}

func putString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

// writeRaster serializes the result as the binary plane container.
func writeRaster(result *pipeline.Result) ([]byte, error) {
	cells := result.Cells()
	if len(cells) == 0 {
		return nil, fmt.Errorf("result has no populated cells")
	}

	minRow, maxRow := cells[0].Row, cells[0].Row
	minCol, maxCol := cells[0].Col, cells[0].Col
	for _, c := range cells {
		if c.Row < minRow {
			minRow = c.Row
		}
		if c.Row > maxRow {
			maxRow = c.Row
		}
		if c.Col < minCol {
			minCol = c.Col
		}
		if c.Col > maxCol {
			maxCol = c.Col
		}
	}
	rows := maxRow - minRow + 1
	cols := maxCol - minCol + 1

	variables := result.Variables()

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, rasterMagic)
	binary.Write(&out, binary.LittleEndian, rasterVersion)

	// Metadata frame.
	var meta bytes.Buffer
	putString(&meta, result.StackID)
	binary.Write(&meta, binary.LittleEndian, float64(result.Resolution))
	binary.Write(&meta, binary.LittleEndian, int8(result.TimeStep))
	binary.Write(&meta, binary.LittleEndian, int32(minRow))
	binary.Write(&meta, binary.LittleEndian, int32(minCol))
	binary.Write(&meta, binary.LittleEndian, int32(rows))
	binary.Write(&meta, binary.LittleEndian, int32(cols))
	binary.Write(&meta, binary.LittleEndian, uint32(len(variables)*len(result.TimeAxis)))
	if err := writeFrame(&out, meta.Bytes()); err != nil {
		return nil, err
	}

	// Plane frames, one per (variable, bucket), in axis order.
	for _, variable := range variables {
		for _, bucket := range result.TimeAxis {
			bucketMs := bucket.UnixMilli()

			var plane bytes.Buffer
			putString(&plane, variable)
			binary.Write(&plane, binary.LittleEndian, bucketMs)

			values := make([]float64, rows*cols)
			orders := make([]int32, rows*cols)
			for i := range values {
				values[i] = math.NaN()
			}
			for _, c := range cells {
				key := pipeline.PointKey{Variable: variable, Cell: c, Bucket: bucketMs}
				v, ok := result.Values[key]
				if !ok {
					continue
				}
				idx := (c.Row-minRow)*cols + (c.Col - minCol)
				values[idx] = v
				orders[idx] = int32(result.Provenance[key].Order)
			}

			if err := binary.Write(&plane, binary.LittleEndian, values); err != nil {
				return nil, err
			}
			if err := binary.Write(&plane, binary.LittleEndian, orders); err != nil {
				return nil, err
			}
			if err := writeFrame(&out, plane.Bytes()); err != nil {
				return nil, err
			}
		}
	}

	return out.Bytes(), nil
}
