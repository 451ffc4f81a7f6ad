package parquetstore

import (
	"context"
	"testing"
	"time"

	"github.com/fieldline/geostack/internal/reading"
)

func ptr(v float64) *float64 { return &v }

func TestCommitBatch_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("New = %v", err)
	}

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := []reading.Record{
		reading.New("st-1", ts, map[string]*float64{
			"temperature":   ptr(21.5),
			"precipitation": ptr(0.2),
		}),
		reading.New("st-2", ts.Add(time.Minute), map[string]*float64{
			"temperature": nil,
		}),
	}

	if err := s.CommitBatch(context.Background(), batch); err != nil {
		t.Fatalf("CommitBatch = %v", err)
	}

	rows, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll = %v", err)
	}
	// One row per (station, variable): 2 + 1.
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	byKey := make(map[string]Row, len(rows))
	for _, r := range rows {
		byKey[r.StationID+"/"+r.Variable] = r
	}

	temp, ok := byKey["st-1/temperature"]
	if !ok || temp.Value != 21.5 || temp.Missing {
		t.Errorf("st-1 temperature = %+v, want 21.5 present", temp)
	}
	if temp.TimestampMs != ts.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", temp.TimestampMs, ts.UnixMilli())
	}

	gap, ok := byKey["st-2/temperature"]
	if !ok || !gap.Missing || gap.Value != 0 {
		t.Errorf("st-2 temperature = %+v, want missing", gap)
	}
}

func TestCommitBatch_EmptyIsNoop(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("New = %v", err)
	}
	if err := s.CommitBatch(context.Background(), nil); err != nil {
		t.Fatalf("CommitBatch(nil) = %v", err)
	}
	batches, rows := s.Stats()
	if batches != 0 || rows != 0 {
		t.Errorf("Stats = %d batches %d rows, want 0/0", batches, rows)
	}
}

func TestCommitBatch_CancelledContext(t *testing.T) {
	s, err := New(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("New = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := []reading.Record{
		reading.New("st-1", time.Now(), map[string]*float64{"temperature": ptr(1)}),
	}
	if err := s.CommitBatch(ctx, batch); err == nil {
		t.Fatal("CommitBatch with cancelled context = nil, want error")
	}
}

func TestCommitBatch_SeparateFilesPerBatch(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("New = %v", err)
	}

	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		batch := []reading.Record{
			reading.New("st-1", ts.Add(time.Duration(i)*time.Hour), map[string]*float64{"temperature": ptr(float64(i))}),
		}
		if err := s.CommitBatch(context.Background(), batch); err != nil {
			t.Fatalf("CommitBatch %d = %v", i, err)
		}
	}

	batches, rows := s.Stats()
	if batches != 3 || rows != 3 {
		t.Fatalf("Stats = %d batches %d rows, want 3/3", batches, rows)
	}

	all, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("rows across files = %d, want 3", len(all))
	}
}
