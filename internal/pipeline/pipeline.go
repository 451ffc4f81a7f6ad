// Package pipeline implements the aggregation core: it consumes a dataset
// stack, resolves the common spatial and temporal grid, resamples every
// item onto it, and merges item data by stack order into one combined
// result with per-point provenance.
package pipeline

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"golang.org/x/sync/errgroup"

	"github.com/fieldline/geostack/internal/dataset"
	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/grid"
	"github.com/fieldline/geostack/internal/logging"
	"github.com/fieldline/geostack/internal/source"
	"github.com/fieldline/geostack/internal/stack"
)

// Pipeline runs aggregations. It reads dataset versions and their series
// and never mutates either.
type Pipeline struct {
	versions *dataset.Registry
	sources  source.Reader
	log      *slog.Logger
}

// New creates a pipeline reading versions from the registry and series
// through the given source reader.
func New(versions *dataset.Registry, sources source.Reader) *Pipeline {
	return &Pipeline{
		versions: versions,
		sources:  sources,
		log:      logging.Component("pipeline"),
	}
}

// itemPlan carries one item's resolved inputs through the run.
type itemPlan struct {
	item      stack.Item
	version   dataset.Version
	effective grid.Resolution
	resampled map[PointKey]float64
}

// Run executes the full pipeline for a stack. The context's deadline is
// checked between major stages (per-item resample, merge, stats); a run
// aborts cleanly between stages, never mid-stage.
func (p *Pipeline) Run(ctx context.Context, s stack.Stack) (*Result, error) {
	if len(s.Items) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrEmptyStack, "stack %s", s.ID)
	}

	plans := make([]*itemPlan, len(s.Items))
	for i := range s.Items {
		v, err := p.versions.Version(s.Items[i].VersionID)
		if err != nil {
			return nil, err
		}
		plans[i] = &itemPlan{
			item:      s.Items[i],
			version:   v,
			effective: s.Items[i].EffectiveResolution(v.NativeResolution),
		}
	}

	targetRes, err := p.resolveGrid(s, plans)
	if err != nil {
		return nil, err
	}

	steps := make([]grid.TimeResolution, len(plans))
	windows := make([]grid.TimeWindow, len(plans))
	for i, plan := range plans {
		steps[i] = plan.item.TimeResolution
		windows[i] = plan.item.Window
	}
	step := grid.CoarsestTimeResolution(steps)
	axis := grid.BuildTimeAxis(windows, step)
	if len(axis) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrNoOverlap, "stack %s", s.ID)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Items resample independently, so they run in parallel.
	g, gctx := errgroup.WithContext(ctx)
	for _, plan := range plans {
		plan := plan
		g.Go(func() error {
			points, err := p.sources.Read(gctx, plan.item.VersionID, plan.item.Variables, plan.item.Window)
			if err != nil {
				return apperrors.Wrapf(err, "read item order=%d", plan.item.Order)
			}
			plan.resampled = resample(points, targetRes, step)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := p.merge(s, plans, targetRes, step, axis)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.summarize(result)

	p.log.Debug("run finished",
		"stack", s.ID,
		"items", len(plans),
		"resolution", targetRes,
		"step", step.String(),
		"points", len(result.Values))

	return result, nil
}

// resolveGrid picks the output resolution: the stack's explicit resolution
// when set, otherwise the coarsest effective resolution among items. An
// explicit resolution finer than every item would fabricate precision from
// nothing; that is a mismatch, not a best effort.
func (p *Pipeline) resolveGrid(s stack.Stack, plans []*itemPlan) (grid.Resolution, error) {
	effective := make([]grid.Resolution, len(plans))
	for i, plan := range plans {
		effective[i] = plan.effective
	}

	if s.SpatialResolution == nil {
		return grid.CoarsestResolution(effective), nil
	}

	target := *s.SpatialResolution
	if !target.Valid() {
		return 0, apperrors.NewValidation("spatial_resolution", target.String())
	}
	for _, res := range effective {
		if !res.Coarser(target) {
			return target, nil
		}
	}
	return 0, apperrors.Wrapf(apperrors.ErrResolutionMismatch,
		"requested %s, finest item is %s", target, finest(effective))
}

func finest(rs []grid.Resolution) grid.Resolution {
	best := rs[0]
	for _, r := range rs[1:] {
		if r < best {
			best = r
		}
	}
	return best
}

// merge combines the resampled items in ascending stack order. A later
// item's value overwrites an earlier one on the same (variable, cell,
// bucket); gaps were dropped during resampling, so a missing value never
// overwrites a present one regardless of order.
func (p *Pipeline) merge(s stack.Stack, plans []*itemPlan, res grid.Resolution, step grid.TimeResolution, axis []time.Time) *Result {
	result := &Result{
		StackID:     s.ID,
		Resolution:  res,
		TimeStep:    step,
		TimeAxis:    axis,
		Values:      make(map[PointKey]float64),
		Provenance:  make(map[PointKey]Provenance),
		Stats:       make(map[string]VariableStats),
		GeneratedAt: time.Now().UTC(),
	}

	for _, plan := range plans {
		prov := Provenance{
			ItemID:    plan.item.ID,
			VersionID: plan.item.VersionID,
			Order:     plan.item.Order,
		}
		for key, value := range plan.resampled {
			result.Values[key] = value
			result.Provenance[key] = prov
		}
		result.Items = append(result.Items, ItemMeta{
			ItemID:    plan.item.ID,
			VersionID: plan.item.VersionID,
			Order:     plan.item.Order,
			Variables: append([]string(nil), plan.item.Variables...),
		})
	}

	return result
}

// summarize attaches per-variable distribution summaries to the result.
func (p *Pipeline) summarize(result *Result) {
	type varAcc struct {
		count  int64
		sum    float64
		min    float64
		max    float64
		sketch *ddsketch.DDSketch
	}

	accs := make(map[string]*varAcc)
	for key, value := range result.Values {
		acc := accs[key.Variable]
		if acc == nil {
			sketch, err := ddsketch.NewDefaultDDSketch(0.01)
			if err != nil {
				continue
			}
			acc = &varAcc{min: math.MaxFloat64, max: -math.MaxFloat64, sketch: sketch}
			accs[key.Variable] = acc
		}
		acc.count++
		acc.sum += value
		if value < acc.min {
			acc.min = value
		}
		if value > acc.max {
			acc.max = value
		}
		acc.sketch.Add(value)
	}

	for name, acc := range accs {
		stats := VariableStats{
			Count: acc.count,
			Min:   acc.min,
			Max:   acc.max,
			Mean:  acc.sum / float64(acc.count),
		}
		if p50, err := acc.sketch.GetValueAtQuantile(0.50); err == nil {
			stats.P50 = p50
		}
		if p95, err := acc.sketch.GetValueAtQuantile(0.95); err == nil {
			stats.P95 = p95
		}
		if p99, err := acc.sketch.GetValueAtQuantile(0.99); err == nil {
			stats.P99 = p99
		}
		result.Stats[name] = stats
	}
}
