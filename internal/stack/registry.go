package stack

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldline/geostack/internal/dataset"
	apperrors "github.com/fieldline/geostack/internal/errors"
	"github.com/fieldline/geostack/internal/grid"
)

// ItemSpec describes an item to add to a stack.
type ItemSpec struct {
	VersionID          string
	Variables          []string
	Window             grid.TimeWindow
	TimeResolution     *grid.TimeResolution // nil: version's native step
	ResolutionOverride *grid.Resolution
}

// Spec describes a stack to create.
type Spec struct {
	OutputFormat      string
	SpatialResolution *grid.Resolution
	Items             []ItemSpec
}

// Registry owns the stacks and enforces the ordering invariants. Item
// validation is eager, at add time, so invalid stacks never accumulate and
// generation never trips over a stale variable subset.
type Registry struct {
	mu       sync.Mutex
	stacks   map[string]*Stack
	versions *dataset.Registry
}

// NewRegistry creates a stack registry validating against the given
// dataset registry.
func NewRegistry(versions *dataset.Registry) *Registry {
	return &Registry{
		stacks:   make(map[string]*Stack),
		versions: versions,
	}
}

// validateItem checks an item spec against its version's declaration.
func (r *Registry) validateItem(spec ItemSpec) (dataset.Version, error) {
	v, err := r.versions.Version(spec.VersionID)
	if err != nil {
		return dataset.Version{}, err
	}

	if len(spec.Variables) == 0 {
		return dataset.Version{}, apperrors.Wrap(apperrors.ErrInvalidVariable, "no variables selected")
	}
	for _, name := range spec.Variables {
		if !v.HasVariable(name) {
			return dataset.Version{}, apperrors.Wrapf(apperrors.ErrInvalidVariable,
				"version %s does not declare %q", v.ID, name)
		}
	}

	if !spec.Window.Valid() {
		return dataset.Version{}, apperrors.Wrap(apperrors.ErrInvalidTimeRange, "window is empty or inverted")
	}
	if !spec.Window.Within(v.Coverage) {
		return dataset.Version{}, apperrors.Wrapf(apperrors.ErrInvalidTimeRange,
			"window [%s, %s) outside coverage [%s, %s)",
			spec.Window.Start.Format(time.RFC3339), spec.Window.End.Format(time.RFC3339),
			v.Coverage.Start.Format(time.RFC3339), v.Coverage.End.Format(time.RFC3339))
	}

	return v, nil
}

func (r *Registry) buildItem(stackID string, order int, spec ItemSpec, v dataset.Version) Item {
	step := v.NativeTimeResolution
	if spec.TimeResolution != nil {
		step = *spec.TimeResolution
	}
	item := Item{
		ID:             uuid.NewString(),
		StackID:        stackID,
		VersionID:      spec.VersionID,
		Order:          order,
		Variables:      append([]string(nil), spec.Variables...),
		Window:         spec.Window,
		TimeResolution: step,
	}
	if spec.ResolutionOverride != nil {
		res := *spec.ResolutionOverride
		item.ResolutionOverride = &res
	}
	return item
}

// Create builds a new stack from a spec, validating every item eagerly.
func (r *Registry) Create(spec Spec) (Stack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Stack{
		ID:           uuid.NewString(),
		OutputFormat: spec.OutputFormat,
		CreatedAt:    time.Now().UTC(),
	}
	if spec.SpatialResolution != nil {
		res := *spec.SpatialResolution
		s.SpatialResolution = &res
	}

	for i, itemSpec := range spec.Items {
		v, err := r.validateItem(itemSpec)
		if err != nil {
			return Stack{}, apperrors.Wrapf(err, "item %d", i)
		}
		s.Items = append(s.Items, r.buildItem(s.ID, len(s.Items)+1, itemSpec, v))
	}

	r.stacks[s.ID] = s
	return s.clone(), nil
}

// Get returns a stack by id.
func (r *Registry) Get(stackID string) (Stack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stacks[stackID]
	if !ok {
		return Stack{}, apperrors.Wrapf(apperrors.ErrStackNotFound, "%s", stackID)
	}
	return s.clone(), nil
}

// AddItem validates and appends an item at the tail order position.
func (r *Registry) AddItem(stackID string, spec ItemSpec) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stacks[stackID]
	if !ok {
		return Item{}, apperrors.Wrapf(apperrors.ErrStackNotFound, "%s", stackID)
	}

	v, err := r.validateItem(spec)
	if err != nil {
		return Item{}, err
	}

	item := r.buildItem(stackID, len(s.Items)+1, spec, v)
	s.Items = append(s.Items, item)
	return item, nil
}

// RemoveItem removes an item and re-densifies the order values of all
// subsequent items.
func (r *Registry) RemoveItem(stackID, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stacks[stackID]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrStackNotFound, "%s", stackID)
	}

	idx, ok := s.item(itemID)
	if !ok {
		return apperrors.Wrapf(apperrors.ErrItemNotFound, "%s", itemID)
	}

	s.Items = append(s.Items[:idx], s.Items[idx+1:]...)
	s.renumber()
	return nil
}

// Reorder atomically replaces the order of all items. newOrder must be a
// permutation of the current item ids; otherwise nothing changes and
// ErrReorderMismatch is returned. No partial reorder is ever applied.
func (r *Registry) Reorder(stackID string, newOrder []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stacks[stackID]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrStackNotFound, "%s", stackID)
	}

	if len(newOrder) != len(s.Items) {
		return apperrors.Wrapf(apperrors.ErrReorderMismatch,
			"got %d ids, stack has %d items", len(newOrder), len(s.Items))
	}

	reordered := make([]Item, 0, len(s.Items))
	seen := make(map[string]bool, len(newOrder))
	for _, id := range newOrder {
		if seen[id] {
			return apperrors.Wrapf(apperrors.ErrReorderMismatch, "duplicate item id %s", id)
		}
		seen[id] = true

		idx, ok := s.item(id)
		if !ok {
			return apperrors.Wrapf(apperrors.ErrReorderMismatch, "unknown item id %s", id)
		}
		reordered = append(reordered, s.Items[idx])
	}

	s.Items = reordered
	s.renumber()
	return nil
}

// SetArtifact publishes a generation result: the artifact reference and
// sequence number are swapped in under the registry lock, so readers see
// either the previous artifact or the new one, never a partial state.
func (r *Registry) SetArtifact(stackID string, ref ArtifactRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stacks[stackID]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrStackNotFound, "%s", stackID)
	}

	s.GenerationSeq++
	ref.Seq = s.GenerationSeq
	s.Artifact = &ref
	s.Generated = true
	return nil
}

// Snapshot is the serializable registry state.
type Snapshot struct {
	Stacks []Stack `json:"stacks"`
}

// Export copies the registry state for persistence.
func (r *Registry) Export() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var snap Snapshot
	for _, s := range r.stacks {
		snap.Stacks = append(snap.Stacks, s.clone())
	}
	return snap
}

// Import replaces the registry state with a snapshot.
func (r *Registry) Import(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stacks = make(map[string]*Stack, len(snap.Stacks))
	for i := range snap.Stacks {
		s := snap.Stacks[i].clone()
		r.stacks[s.ID] = &s
	}
}

// Stacks returns all stacks.
func (r *Registry) Stacks() []Stack {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stack, 0, len(r.stacks))
	for _, s := range r.stacks {
		out = append(out, s.clone())
	}
	return out
}
