package core

import (
	"context"

	"github.com/google/uuid"

	"skylink/pkg/domain"
)

// Viewer is a visual surface bound to datasets and active subsets. It owns
// its layers and keeps them consistent by subscribing to the bus as a
// structural subscriber.
type Viewer struct {
	s           *Session
	spec        domain.ViewerSpec
	renderer    Renderer
	layers      map[LayerKey]*Layer
	unsubscribe func()
}

func newViewer(s *Session, spec domain.ViewerSpec) (*Viewer, error) {
	if spec.ID == "" {
		spec.ID = domain.ViewerID(uuid.NewString())
	}
	renderer, err := rendererFor(spec.Kind)
	if err != nil {
		return nil, err
	}
	spec = spec.Clone()
	for axis := range spec.Axes {
		if !hasAxis(renderer, axis) {
			return nil, domain.SchemaConflictf("viewer %s: %s viewers have no axis %q", spec.ID, spec.Kind, axis)
		}
	}
	for _, id := range spec.Datasets {
		if !s.registry.Has(id) {
			return nil, domain.NotFoundf("dataset %s", id)
		}
	}
	for _, id := range spec.Subsets {
		if _, err := s.subsets.Get(id); err != nil {
			return nil, err
		}
	}
	v := &Viewer{s: s, spec: spec, renderer: renderer, layers: make(map[LayerKey]*Layer)}
	for _, ds := range spec.Datasets {
		v.ensureLayers(ds)
	}
	return v, nil
}

func hasAxis(r Renderer, name string) bool {
	for _, ax := range r.Axes() {
		if ax.Name == name {
			return true
		}
	}
	return false
}

// ID returns the viewer id.
func (v *Viewer) ID() domain.ViewerID { return v.spec.ID }

// Kind returns the viewer kind.
func (v *Viewer) Kind() domain.ViewerKind { return v.spec.Kind }

// Spec returns a copy of the viewer's persisted configuration.
func (v *Viewer) Spec() domain.ViewerSpec { return v.spec.Clone() }

// Renderer returns the viewer's renderer.
func (v *Viewer) Renderer() Renderer { return v.renderer }

func (v *Viewer) ensureLayers(ds domain.DatasetID) {
	keys := []LayerKey{{Dataset: ds}}
	for _, sub := range v.spec.Subsets {
		keys = append(keys, LayerKey{Dataset: ds, Subset: sub})
	}
	for _, key := range keys {
		if _, ok := v.layers[key]; !ok {
			v.layers[key] = newLayer(key)
		}
	}
}

// orderedKeys lists layers in attach order: each dataset's own layer
// followed by its subset layers in activation order.
func (v *Viewer) orderedKeys() []LayerKey {
	keys := make([]LayerKey, 0, len(v.layers))
	for _, ds := range v.spec.Datasets {
		if _, ok := v.layers[LayerKey{Dataset: ds}]; ok {
			keys = append(keys, LayerKey{Dataset: ds})
		}
		for _, sub := range v.spec.Subsets {
			key := LayerKey{Dataset: ds, Subset: sub}
			if _, ok := v.layers[key]; ok {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// Layers returns views of every layer in attach order.
func (v *Viewer) Layers() []LayerView {
	keys := v.orderedKeys()
	out := make([]LayerView, 0, len(keys))
	for _, key := range keys {
		out = append(out, v.view(v.layers[key]))
	}
	return out
}

// Layer returns the view of one layer.
func (v *Viewer) Layer(ds domain.DatasetID, sub domain.SubsetID) (LayerView, bool) {
	l, ok := v.layers[LayerKey{Dataset: ds, Subset: sub}]
	if !ok {
		return LayerView{}, false
	}
	return v.view(l), true
}

func (v *Viewer) view(l *Layer) LayerView {
	lv := LayerView{
		Viewer:     v.spec.ID,
		Dataset:    l.key.Dataset,
		Subset:     l.key.Subset,
		State:      l.state,
		Generation: l.generation,
		Passes:     l.passes,
		Err:        l.err,
		Render:     l.render,
	}
	if l.key.Subset != "" {
		if sub, ok := v.s.subsets.subsets[l.key.Subset]; ok {
			lv.Style = sub.Style
		}
	}
	return lv
}

// Attach binds a dataset to the viewer.
func (v *Viewer) Attach(ctx context.Context, ds domain.DatasetID) error {
	return v.s.mutate(ctx, "viewer.attach", func(context.Context) error {
		if !v.s.registry.Has(ds) {
			return domain.NotFoundf("dataset %s", ds)
		}
		for _, existing := range v.spec.Datasets {
			if existing == ds {
				return nil
			}
		}
		v.spec.Datasets = append(v.spec.Datasets, ds)
		v.ensureLayers(ds)
		return nil
	})
}

// Detach unbinds a dataset and releases its layers.
func (v *Viewer) Detach(ctx context.Context, ds domain.DatasetID) error {
	return v.s.mutate(ctx, "viewer.detach", func(context.Context) error {
		if !v.detach(ds) {
			return domain.NotFoundf("dataset %s is not attached to viewer %s", ds, v.spec.ID)
		}
		return nil
	})
}

func (v *Viewer) detach(ds domain.DatasetID) bool {
	found := false
	for i, existing := range v.spec.Datasets {
		if existing == ds {
			v.spec.Datasets = append(v.spec.Datasets[:i:i], v.spec.Datasets[i+1:]...)
			found = true
			break
		}
	}
	for key := range v.layers {
		if key.Dataset == ds {
			delete(v.layers, key)
		}
	}
	return found
}

// ActivateSubset displays a subset over every attached dataset.
func (v *Viewer) ActivateSubset(ctx context.Context, id domain.SubsetID) error {
	return v.s.mutate(ctx, "viewer.activate_subset", func(context.Context) error {
		if _, err := v.s.subsets.Get(id); err != nil {
			return err
		}
		v.activate(id)
		return nil
	})
}

func (v *Viewer) activate(id domain.SubsetID) {
	for _, existing := range v.spec.Subsets {
		if existing == id {
			return
		}
	}
	v.spec.Subsets = append(v.spec.Subsets, id)
	for _, ds := range v.spec.Datasets {
		v.ensureLayers(ds)
	}
}

// DeactivateSubset hides a subset and releases its layers.
func (v *Viewer) DeactivateSubset(ctx context.Context, id domain.SubsetID) error {
	return v.s.mutate(ctx, "viewer.deactivate_subset", func(context.Context) error {
		if !v.deactivate(id) {
			return domain.NotFoundf("subset %s is not active in viewer %s", id, v.spec.ID)
		}
		return nil
	})
}

func (v *Viewer) deactivate(id domain.SubsetID) bool {
	found := false
	for i, existing := range v.spec.Subsets {
		if existing == id {
			v.spec.Subsets = append(v.spec.Subsets[:i:i], v.spec.Subsets[i+1:]...)
			found = true
			break
		}
	}
	for key := range v.layers {
		if key.Subset == id {
			delete(v.layers, key)
		}
	}
	return found
}

// SetAxis binds a renderer axis to a component and invalidates every layer.
func (v *Viewer) SetAxis(ctx context.Context, axis string, ref domain.ComponentRef) error {
	return v.s.mutate(ctx, "viewer.set_axis", func(context.Context) error {
		if !hasAxis(v.renderer, axis) {
			return domain.SchemaConflictf("viewer %s: %s viewers have no axis %q", v.spec.ID, v.spec.Kind, axis)
		}
		if v.spec.Axes == nil {
			v.spec.Axes = make(map[string]domain.ComponentRef)
		}
		v.spec.Axes[axis] = ref
		for _, l := range v.layers {
			l.invalidate()
		}
		return nil
	})
}

// handle keeps layers consistent with shared state.
func (v *Viewer) handle(_ context.Context, ev domain.Event) error {
	switch ev.Kind {
	case domain.EventDatasetAdded:
		v.restaleErrors()
	case domain.EventDatasetRemoved:
		v.detach(ev.Dataset)
		// any path through a cascaded link visited the removed dataset
		for _, l := range v.layers {
			if l.dependsOnAny([]domain.DatasetID{ev.Dataset}) {
				l.invalidate()
			}
		}
	case domain.EventComponentAdded, domain.EventComponentUpdated, domain.EventComponentRemoved:
		for _, l := range v.layers {
			if l.state == LayerError || l.dependsOnAny([]domain.DatasetID{ev.Dataset}) {
				l.invalidate()
			}
		}
	case domain.EventLinkAdded, domain.EventLinkUpdated, domain.EventLinkRemoved:
		for _, l := range v.layers {
			if l.state == LayerError || l.dependsOnAny(ev.Datasets) {
				l.invalidate()
			}
		}
	case domain.EventSubsetDefined:
		if v.spec.FollowSubsets {
			v.activate(ev.Subset)
		}
	case domain.EventSubsetUpdated:
		for key, l := range v.layers {
			if key.Subset == ev.Subset {
				l.invalidate()
			}
		}
	case domain.EventSubsetRemoved:
		v.deactivate(ev.Subset)
	}
	return nil
}

func (v *Viewer) restaleErrors() {
	for _, l := range v.layers {
		if l.state == LayerError {
			l.invalidate()
		}
	}
}

// Degrade marks every layer as failed after the viewer's handler faulted.
func (v *Viewer) Degrade(_ domain.Event, err error) {
	for _, l := range v.layers {
		l.fail(err)
	}
}
