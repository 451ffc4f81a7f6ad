// Package parquetstore implements the durable reading store as a directory
// of Parquet batch files, one file per flush. Readings are flattened to one
// row per (station, variable, timestamp).
package parquetstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/fieldline/geostack/internal/reading"
)

// Row is the Parquet representation of one measured field.
type Row struct {
	StationID   string  `parquet:"station_id,zstd"`
	Variable    string  `parquet:"variable,zstd"`
	TimestampMs int64   `parquet:"timestamp_ms"`
	Value       float64 `parquet:"value"`
	Missing     bool    `parquet:"missing"`
}

// Options configures the Parquet store.
type Options struct {
	// Compression algorithm: snappy, zstd, lz4, gzip, none.
	Compression string
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{Compression: "zstd"}
}

func codec(name string) compress.Codec {
	switch name {
	case "snappy":
		return &parquet.Snappy
	case "zstd":
		return &parquet.Zstd
	case "lz4":
		return &parquet.Lz4Raw
	case "gzip":
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Store writes flush batches as Parquet files under a single directory.
type Store struct {
	mu   sync.Mutex
	dir  string
	opts Options
	seq  int64

	// Statistics
	batchesWritten int64
	rowsWritten    int64
}

// New creates the store, ensuring the directory exists.
func New(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir, opts: opts}, nil
}

// Dir returns the batch directory.
func (s *Store) Dir() string {
	return s.dir
}

// CommitBatch implements store.Store. The batch lands in a single Parquet
// file; a temp-file rename makes the commit all-or-nothing so a crashed
// write never leaves a partial batch behind.
func (s *Store) CommitBatch(ctx context.Context, batch []reading.Record) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rows := flatten(batch)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	name := fmt.Sprintf("batch_%s_%06d.parquet", time.Now().UTC().Format("20060102T150405"), s.seq)
	final := filepath.Join(s.dir, name)
	tmp := final + ".tmp"

	if err := writeRows(tmp, rows, s.opts); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish batch: %w", err)
	}

	s.batchesWritten++
	s.rowsWritten += int64(len(rows))
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return nil
}

// Stats reports batch and row counts written so far.
func (s *Store) Stats() (batches, rows int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchesWritten, s.rowsWritten
}

func flatten(batch []reading.Record) []Row {
	rows := make([]Row, 0, len(batch)*4)
	for i := range batch {
		rec := &batch[i]
		for _, name := range rec.FieldNames() {
			row := Row{
				StationID:   rec.StationID,
				Variable:    name,
				TimestampMs: rec.Timestamp.UnixMilli(),
			}
			if v, ok := rec.Value(name); ok {
				row.Value = v
			} else {
				row.Missing = true
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func writeRows(path string, rows []Row, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create batch file: %w", err)
	}

	w := parquet.NewGenericWriter[Row](f, parquet.Compression(codec(opts.Compression)))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return f.Close()
}

// ReadAll reads every row from every batch file under dir, oldest file
// first. Used by tests and small tools; the query path goes through the
// duckdb source instead.
func ReadAll(dir string) ([]Row, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "batch_*.parquet"))
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, path := range matches {
		fileRows, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		rows = append(rows, fileRows...)
	}
	return rows, nil
}

func readFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	r := parquet.NewGenericReader[Row](f)
	defer r.Close()

	rows := make([]Row, 0, info.Size()/64)
	buf := make([]Row, 256)
	for {
		n, err := r.Read(buf)
		rows = append(rows, buf[:n]...)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
