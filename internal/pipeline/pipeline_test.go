package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/fieldline/geostack/internal/dataset"
	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/grid"
	"github.com/fieldline/geostack/internal/source"
	"github.com/fieldline/geostack/internal/stack"
)

// fixture bundles the registries and in-memory source a pipeline test needs.
type fixture struct {
	datasets *dataset.Registry
	stacks   *stack.Registry
	src      *source.Memory
	pipe     *Pipeline
}

func newFixture() *fixture {
	datasets := dataset.NewRegistry()
	src := source.NewMemory()
	return &fixture{
		datasets: datasets,
		stacks:   stack.NewRegistry(datasets),
		src:      src,
		pipe:     New(datasets, src),
	}
}

func (f *fixture) publish(res grid.Resolution, step grid.TimeResolution, vars ...string) dataset.Version {
	d := f.datasets.CreateDataset("ds")
	v, err := f.datasets.Publish(d.ID, dataset.VersionSpec{
		Variables:            vars,
		NativeResolution:     res,
		NativeTimeResolution: step,
		Coverage: grid.TimeWindow{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		panic(err)
	}
	return v
}

func hour(h int) time.Time {
	return time.Date(2024, 6, 1, h, 0, 0, 0, time.UTC)
}

func pt(variable string, lat, lon float64, ts time.Time, value float64) grid.Point {
	v := value
	return grid.Point{Variable: variable, Lat: lat, Lon: lon, Time: ts, Value: &v}
}

func gap(variable string, lat, lon float64, ts time.Time) grid.Point {
	return grid.Point{Variable: variable, Lat: lat, Lon: lon, Time: ts}
}

func dayWindow() grid.TimeWindow {
	return grid.TimeWindow{Start: hour(0), End: hour(0).AddDate(0, 0, 1)}
}

// =============================================================================
// Resampling semantics
// =============================================================================

// Hourly precipitation aggregated to a daily bucket must sum, not average.
func TestRun_AccumulativeVariableSums(t *testing.T) {
	f := newFixture()
	v := f.publish(0.5, grid.Hourly, "precipitation")
	f.src.Put(v.ID, []grid.Point{
		pt("precipitation", 6.25, -75.5, hour(0), 1),
		pt("precipitation", 6.25, -75.5, hour(1), 2),
		pt("precipitation", 6.25, -75.5, hour(2), 3),
		pt("precipitation", 6.25, -75.5, hour(3), 4),
	})

	daily := grid.Daily
	s, err := f.stacks.Create(stack.Spec{OutputFormat: "json", Items: []stack.ItemSpec{{
		VersionID:      v.ID,
		Variables:      []string{"precipitation"},
		Window:         dayWindow(),
		TimeResolution: &daily,
	}}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := f.pipe.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}

	key := PointKey{
		Variable: "precipitation",
		Cell:     grid.CellAt(6.25, -75.5, 0.5),
		Bucket:   grid.Daily.Truncate(hour(0)).UnixMilli(),
	}
	if got := result.Values[key]; got != 10 {
		t.Errorf("daily precipitation = %v, want 10", got)
	}
}

// Hourly temperature aggregated to a daily bucket must average.
func TestRun_ContinuousVariableAverages(t *testing.T) {
	f := newFixture()
	v := f.publish(0.5, grid.Hourly, "temperature")
	f.src.Put(v.ID, []grid.Point{
		pt("temperature", 6.25, -75.5, hour(0), 20),
		pt("temperature", 6.25, -75.5, hour(1), 24),
		pt("temperature", 6.25, -75.5, hour(2), 26),
		pt("temperature", 6.25, -75.5, hour(3), 30),
	})

	daily := grid.Daily
	s, _ := f.stacks.Create(stack.Spec{OutputFormat: "json", Items: []stack.ItemSpec{{
		VersionID:      v.ID,
		Variables:      []string{"temperature"},
		Window:         dayWindow(),
		TimeResolution: &daily,
	}}})

	result, err := f.pipe.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}

	key := PointKey{
		Variable: "temperature",
		Cell:     grid.CellAt(6.25, -75.5, 0.5),
		Bucket:   grid.Daily.Truncate(hour(0)).UnixMilli(),
	}
	if got := result.Values[key]; got != 25 {
		t.Errorf("daily temperature = %v, want 25", got)
	}
}

// Two stations in the same coarse cell: each is resampled in time first,
// then the cell takes their mean. Precipitation sums per station, never
// across stations.
func TestRun_SpatialMeanAfterTemporal(t *testing.T) {
	f := newFixture()
	v := f.publish(1, grid.Hourly, "precipitation")
	f.src.Put(v.ID, []grid.Point{
		pt("precipitation", 6.2, -75.6, hour(0), 1),
		pt("precipitation", 6.2, -75.6, hour(1), 3), // station A total 4
		pt("precipitation", 6.4, -75.4, hour(0), 2),
		pt("precipitation", 6.4, -75.4, hour(1), 6), // station B total 8
	})

	daily := grid.Daily
	s, _ := f.stacks.Create(stack.Spec{OutputFormat: "json", Items: []stack.ItemSpec{{
		VersionID:      v.ID,
		Variables:      []string{"precipitation"},
		Window:         dayWindow(),
		TimeResolution: &daily,
	}}})

	result, err := f.pipe.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}

	key := PointKey{
		Variable: "precipitation",
		Cell:     grid.CellAt(6.2, -75.6, 1),
		Bucket:   grid.Daily.Truncate(hour(0)).UnixMilli(),
	}
	if got := result.Values[key]; got != 6 {
		t.Errorf("cell precipitation = %v, want mean(4, 8) = 6", got)
	}
}

func TestRun_GapsStayAbsent(t *testing.T) {
	f := newFixture()
	v := f.publish(0.5, grid.Hourly, "temperature")
	f.src.Put(v.ID, []grid.Point{
		gap("temperature", 6.25, -75.5, hour(0)),
		gap("temperature", 6.25, -75.5, hour(1)),
	})

	daily := grid.Daily
	s, _ := f.stacks.Create(stack.Spec{OutputFormat: "json", Items: []stack.ItemSpec{{
		VersionID:      v.ID,
		Variables:      []string{"temperature"},
		Window:         dayWindow(),
		TimeResolution: &daily,
	}}})

	result, err := f.pipe.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	if len(result.Values) != 0 {
		t.Errorf("all-gap input produced %d values, want 0", len(result.Values))
	}
	// The axis still exists; only the values are absent.
	if len(result.TimeAxis) == 0 {
		t.Error("time axis empty, want the requested buckets")
	}
}

// =============================================================================
// Merge order
// =============================================================================

// mergeFixture builds a two-item stack over the same cell and bucket with
// different values, returning the stack and the shared key.
func mergeFixture(t *testing.T) (*fixture, stack.Stack, PointKey) {
	t.Helper()
	f := newFixture()
	v1 := f.publish(0.5, grid.Daily, "temperature")
	v2 := f.publish(0.5, grid.Daily, "temperature")
	f.src.Put(v1.ID, []grid.Point{pt("temperature", 6.25, -75.5, hour(0), 10)})
	f.src.Put(v2.ID, []grid.Point{pt("temperature", 6.25, -75.5, hour(0), 99)})

	s, err := f.stacks.Create(stack.Spec{OutputFormat: "json", Items: []stack.ItemSpec{
		{VersionID: v1.ID, Variables: []string{"temperature"}, Window: dayWindow()},
		{VersionID: v2.ID, Variables: []string{"temperature"}, Window: dayWindow()},
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	key := PointKey{
		Variable: "temperature",
		Cell:     grid.CellAt(6.25, -75.5, 0.5),
		Bucket:   grid.Daily.Truncate(hour(0)).UnixMilli(),
	}
	return f, s, key
}

func TestRun_LaterOrderWins(t *testing.T) {
	f, s, key := mergeFixture(t)

	result, err := f.pipe.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	if got := result.Values[key]; got != 99 {
		t.Errorf("merged value = %v, want 99 (order 2)", got)
	}
	if prov := result.Provenance[key]; prov.Order != 2 {
		t.Errorf("provenance order = %d, want 2", prov.Order)
	}
}

func TestRun_ReorderChangesWinner(t *testing.T) {
	f, s, key := mergeFixture(t)

	if err := f.stacks.Reorder(s.ID, []string{s.Items[1].ID, s.Items[0].ID}); err != nil {
		t.Fatalf("Reorder = %v", err)
	}
	reordered, _ := f.stacks.Get(s.ID)

	result, err := f.pipe.Run(context.Background(), reordered)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	if got := result.Values[key]; got != 10 {
		t.Errorf("merged value after reorder = %v, want 10", got)
	}
	if prov := result.Provenance[key]; prov.Order != 2 {
		t.Errorf("provenance order = %d, want 2 (the new tail)", prov.Order)
	}
}

// A gap in the later item must not erase the earlier item's value.
func TestRun_GapNeverOverwritesValue(t *testing.T) {
	f := newFixture()
	v1 := f.publish(0.5, grid.Daily, "temperature")
	v2 := f.publish(0.5, grid.Daily, "temperature")
	f.src.Put(v1.ID, []grid.Point{pt("temperature", 6.25, -75.5, hour(0), 10)})
	f.src.Put(v2.ID, []grid.Point{gap("temperature", 6.25, -75.5, hour(0))})

	s, _ := f.stacks.Create(stack.Spec{OutputFormat: "json", Items: []stack.ItemSpec{
		{VersionID: v1.ID, Variables: []string{"temperature"}, Window: dayWindow()},
		{VersionID: v2.ID, Variables: []string{"temperature"}, Window: dayWindow()},
	}})

	result, err := f.pipe.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	key := PointKey{
		Variable: "temperature",
		Cell:     grid.CellAt(6.25, -75.5, 0.5),
		Bucket:   grid.Daily.Truncate(hour(0)).UnixMilli(),
	}
	if got := result.Values[key]; got != 10 {
		t.Errorf("value = %v, want 10 (gap must not overwrite)", got)
	}
	if prov := result.Provenance[key]; prov.Order != 1 {
		t.Errorf("provenance order = %d, want 1", prov.Order)
	}
}

func TestRun_Deterministic(t *testing.T) {
	f, s, _ := mergeFixture(t)

	first, err := f.pipe.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	second, err := f.pipe.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}

	if len(first.Values) != len(second.Values) {
		t.Fatalf("runs differ in size: %d vs %d", len(first.Values), len(second.Values))
	}
	for k, v := range first.Values {
		if second.Values[k] != v {
			t.Errorf("value for %v differs: %v vs %v", k, v, second.Values[k])
		}
		if second.Provenance[k] != first.Provenance[k] {
			t.Errorf("provenance for %v differs", k)
		}
	}
}

// =============================================================================
// Grid and axis resolution
// =============================================================================

func TestRun_TargetIsCoarsestResolution(t *testing.T) {
	f := newFixture()
	fine := f.publish(0.25, grid.Daily, "temperature")
	coarse := f.publish(1, grid.Daily, "temperature")
	f.src.Put(fine.ID, []grid.Point{pt("temperature", 6.1, -75.1, hour(0), 10)})
	f.src.Put(coarse.ID, []grid.Point{pt("temperature", 6.9, -75.9, hour(0), 20)})

	s, _ := f.stacks.Create(stack.Spec{OutputFormat: "json", Items: []stack.ItemSpec{
		{VersionID: fine.ID, Variables: []string{"temperature"}, Window: dayWindow()},
		{VersionID: coarse.ID, Variables: []string{"temperature"}, Window: dayWindow()},
	}})

	result, err := f.pipe.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	if result.Resolution != 1 {
		t.Errorf("Resolution = %v, want 1 (coarsest item)", result.Resolution)
	}
}

func TestRun_ExplicitResolutionFinerThanAllItems(t *testing.T) {
	f := newFixture()
	v := f.publish(1, grid.Daily, "temperature")
	f.src.Put(v.ID, []grid.Point{pt("temperature", 6.1, -75.1, hour(0), 10)})

	target := grid.Resolution(0.25)
	s, _ := f.stacks.Create(stack.Spec{
		OutputFormat:      "json",
		SpatialResolution: &target,
		Items: []stack.ItemSpec{
			{VersionID: v.ID, Variables: []string{"temperature"}, Window: dayWindow()},
		},
	})

	_, err := f.pipe.Run(context.Background(), s)
	if !apperrors.Is(err, apperrors.ErrResolutionMismatch) {
		t.Fatalf("Run = %v, want ErrResolutionMismatch", err)
	}
}

func TestRun_EmptyStack(t *testing.T) {
	f := newFixture()
	s, _ := f.stacks.Create(stack.Spec{OutputFormat: "json"})

	_, err := f.pipe.Run(context.Background(), s)
	if !apperrors.Is(err, apperrors.ErrEmptyStack) {
		t.Fatalf("Run = %v, want ErrEmptyStack", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	f, s, _ := mergeFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.pipe.Run(ctx, s); err == nil {
		t.Fatal("Run with cancelled context = nil, want error")
	}
}

// =============================================================================
// Stats
// =============================================================================

func TestRun_StatsSummarizeMergedValues(t *testing.T) {
	f := newFixture()
	v := f.publish(0.5, grid.Daily, "temperature")
	f.src.Put(v.ID, []grid.Point{
		pt("temperature", 6.25, -75.5, hour(0), 10),
		pt("temperature", 7.25, -75.5, hour(0), 20),
		pt("temperature", 8.25, -75.5, hour(0), 30),
	})

	s, _ := f.stacks.Create(stack.Spec{OutputFormat: "json", Items: []stack.ItemSpec{
		{VersionID: v.ID, Variables: []string{"temperature"}, Window: dayWindow()},
	}})

	result, err := f.pipe.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}

	stats, ok := result.Stats["temperature"]
	if !ok {
		t.Fatal("no stats for temperature")
	}
	if stats.Count != 3 {
		t.Errorf("Count = %d, want 3", stats.Count)
	}
	if stats.Min != 10 || stats.Max != 30 {
		t.Errorf("Min/Max = %v/%v, want 10/30", stats.Min, stats.Max)
	}
	if stats.Mean != 20 {
		t.Errorf("Mean = %v, want 20", stats.Mean)
	}
	// Sketch quantiles are approximate; they must land inside the range.
	if stats.P50 < 10 || stats.P50 > 30 {
		t.Errorf("P50 = %v, outside [10, 30]", stats.P50)
	}
}
