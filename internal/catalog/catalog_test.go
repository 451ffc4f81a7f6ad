package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldline/geostack/internal/dataset"
	"github.com/fieldline/geostack/internal/grid"
	"github.com/fieldline/geostack/internal/stack"
)

func TestCatalog_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	datasets := dataset.NewRegistry()
	stacks := stack.NewRegistry(datasets)
	cat, err := Open(path, datasets, stacks)
	if err != nil {
		t.Fatalf("Open = %v", err)
	}

	d := datasets.CreateDataset("stations")
	v, err := datasets.Publish(d.ID, dataset.VersionSpec{
		Variables:            []string{"precipitation", "temperature"},
		NativeResolution:     0.5,
		NativeTimeResolution: grid.Hourly,
		Coverage: grid.TimeWindow{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatalf("Publish = %v", err)
	}

	s, err := stacks.Create(stack.Spec{
		OutputFormat: "csv",
		Items: []stack.ItemSpec{{
			VersionID: v.ID,
			Variables: []string{"temperature"},
			Window: grid.TimeWindow{
				Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			},
		}},
	})
	if err != nil {
		t.Fatalf("Create = %v", err)
	}
	stacks.SetArtifact(s.ID, stack.ArtifactRef{Key: "stacks/a.csv", Format: "csv", Size: 42})

	if err := cat.Persist(); err != nil {
		t.Fatalf("Persist = %v", err)
	}
	if err := cat.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}

	// Fresh registries, same database file.
	datasets2 := dataset.NewRegistry()
	stacks2 := stack.NewRegistry(datasets2)
	cat2, err := Open(path, datasets2, stacks2)
	if err != nil {
		t.Fatalf("reopen = %v", err)
	}
	defer cat2.Close()

	restored, err := datasets2.Version(v.ID)
	if err != nil {
		t.Fatalf("restored Version = %v", err)
	}
	if !restored.Current {
		t.Error("restored version lost current flag")
	}
	if len(restored.Variables) != 2 {
		t.Errorf("restored variables = %v, want 2", restored.Variables)
	}

	rs, err := stacks2.Get(s.ID)
	if err != nil {
		t.Fatalf("restored Get = %v", err)
	}
	if len(rs.Items) != 1 || rs.Items[0].Order != 1 {
		t.Errorf("restored items = %+v, want one item at order 1", rs.Items)
	}
	if rs.Artifact == nil || rs.Artifact.Key != "stacks/a.csv" {
		t.Errorf("restored artifact = %+v, want stacks/a.csv", rs.Artifact)
	}
	if rs.GenerationSeq != 1 {
		t.Errorf("restored GenerationSeq = %d, want 1", rs.GenerationSeq)
	}
}

func TestCatalog_PersistIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	datasets := dataset.NewRegistry()
	stacks := stack.NewRegistry(datasets)
	cat, err := Open(path, datasets, stacks)
	if err != nil {
		t.Fatalf("Open = %v", err)
	}
	defer cat.Close()

	datasets.CreateDataset("a")
	for i := 0; i < 3; i++ {
		if err := cat.Persist(); err != nil {
			t.Fatalf("Persist %d = %v", i, err)
		}
	}

	datasets2 := dataset.NewRegistry()
	stacks2 := stack.NewRegistry(datasets2)
	cat2, err := Open(path, datasets2, stacks2)
	if err != nil {
		t.Fatalf("reopen = %v", err)
	}
	defer cat2.Close()

	if got := len(datasets2.Datasets()); got != 1 {
		t.Errorf("restored datasets = %d, want 1", got)
	}
}
