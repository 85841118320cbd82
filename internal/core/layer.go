package core

import (
	"context"

	"skylink/internal/logger"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

// LayerState is the reconciliation state of a layer.
type LayerState int

const (
	LayerStale LayerState = iota
	LayerRecomputing
	LayerFresh
	LayerError
)

func (s LayerState) String() string {
	switch s {
	case LayerStale:
		return "stale"
	case LayerRecomputing:
		return "recomputing"
	case LayerFresh:
		return "fresh"
	case LayerError:
		return "error"
	default:
		return "unknown"
	}
}

// LayerKey identifies a layer within its viewer. An empty Subset is the
// dataset's own layer.
type LayerKey struct {
	Dataset domain.DatasetID
	Subset  domain.SubsetID
}

func (k LayerKey) String() string {
	if k.Subset == "" {
		return string(k.Dataset)
	}
	return string(k.Dataset) + "/" + string(k.Subset)
}

// Layer is derived render state owned by one viewer. Every invalidation
// bumps the generation; a reconciliation pass only lands if the generation
// it started from is still current.
type Layer struct {
	key        LayerKey
	state      LayerState
	generation uint64
	passes     int
	err        error
	render     RenderData
	deps       map[domain.DatasetID]struct{}
}

func newLayer(key LayerKey) *Layer {
	return &Layer{key: key, state: LayerStale, generation: 1, deps: map[domain.DatasetID]struct{}{key.Dataset: {}}}
}

func (l *Layer) invalidate() {
	l.generation++
	l.state = LayerStale
}

func (l *Layer) fail(err error) {
	l.generation++
	l.state = LayerError
	l.err = err
}

func (l *Layer) dependsOnAny(ids []domain.DatasetID) bool {
	for _, id := range ids {
		if _, ok := l.deps[id]; ok {
			return true
		}
	}
	return false
}

// LayerView is a read-only copy of a layer for renderers and tests.
type LayerView struct {
	Viewer     domain.ViewerID
	Dataset    domain.DatasetID
	Subset     domain.SubsetID
	State      LayerState
	Generation uint64
	Passes     int
	Err        error
	Render     RenderData
	Style      domain.Style
}

// Active reports whether the layer currently renders data.
func (v LayerView) Active() bool { return v.State == LayerFresh }

// ticket carries one reconciliation pass from begin to finish.
type ticket struct {
	viewer     *Viewer
	key        LayerKey
	generation uint64
	inputs     LayerInputs
	renderer   Renderer
}

// compute runs the renderer. It reads only the ticket's inputs.
func (t *ticket) compute(ctx context.Context) (data RenderData, err error) {
	if err := ctx.Err(); err != nil {
		return RenderData{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("renderer %s panicked: %v", t.renderer.Kind(), r)
		}
	}()
	return t.renderer.Render(t.inputs)
}

// begin moves a stale layer to Recomputing and snapshots its inputs. Input
// resolution failures put the layer straight into Error.
func (v *Viewer) begin(l *Layer) *ticket {
	if l.state != LayerStale {
		return nil
	}
	l.state = LayerRecomputing
	l.passes++
	inputs, deps, err := v.inputs(l.key)
	l.deps = deps
	if err != nil {
		l.state = LayerError
		l.err = err
		v.s.log.Debug("layer inactive",
			logger.FieldViewer, string(v.spec.ID),
			logger.FieldLayer, l.key.String(),
			logger.FieldError, err.Error())
		return nil
	}
	return &ticket{viewer: v, key: l.key, generation: l.generation, inputs: inputs, renderer: v.renderer}
}

// finish applies a computed pass. It reports false when the layer was
// dropped or invalidated since begin, in which case the result is discarded.
func (v *Viewer) finish(t *ticket, data RenderData, err error) bool {
	l, ok := v.layers[t.key]
	if !ok || l.generation != t.generation || l.state != LayerRecomputing {
		return false
	}
	if err != nil {
		l.state = LayerError
		l.err = domain.Reconciliation(err, "render %s in viewer %s", t.key, v.spec.ID)
		return true
	}
	l.state = LayerFresh
	l.err = nil
	l.render = data
	return true
}

func (v *Viewer) inputs(key LayerKey) (LayerInputs, map[domain.DatasetID]struct{}, error) {
	deps := map[domain.DatasetID]struct{}{key.Dataset: {}}
	ds, ok := v.s.registry.lookup(key.Dataset)
	if !ok {
		return LayerInputs{}, deps, domain.NotFoundf("dataset %s", key.Dataset)
	}
	in := LayerInputs{
		Dataset: key.Dataset,
		Subset:  key.Subset,
		Size:    ds.Size(),
		Shape:   append([]int(nil), ds.Coords.Shape...),
		Axes:    make(map[string][]float64),
	}
	if key.Subset != "" {
		mask, maskDeps, err := v.s.subsets.evaluate(key.Subset, key.Dataset)
		for d := range maskDeps {
			deps[d] = struct{}{}
		}
		if err != nil {
			return LayerInputs{}, deps, err
		}
		in.Mask = mask.Clone()
	}
	for _, ax := range v.renderer.Axes() {
		ref, bound := v.spec.Axes[ax.Name]
		if !bound {
			ref = domain.Local(ax.Name)
		}
		res, err := v.s.links.Resolve(ref, key.Dataset)
		for _, d := range res.Datasets {
			deps[d] = struct{}{}
		}
		if ref.Qualified() {
			deps[ref.Dataset] = struct{}{}
		}
		if err != nil {
			if ax.Required {
				return LayerInputs{}, deps, errors.Wrapf(err, "axis %s", ax.Name)
			}
			continue
		}
		in.Axes[ax.Name] = res.Values
	}
	if cr, ok := v.renderer.(componentReader); ok && cr.ReadsComponents() {
		in.Components = make(map[string][]float64, len(ds.Components))
		for _, c := range ds.Components {
			in.Components[c.Name] = append([]float64(nil), c.Values...)
			in.ComponentOrder = append(in.ComponentOrder, c.Name)
		}
	}
	return in, deps, nil
}
