package core

import (
	"math"
	"sort"

	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

// AxisSpec declares an axis a renderer reads. Unbound axes default to the
// same-named component of the layer's dataset.
type AxisSpec struct {
	Name     string
	Required bool
}

// LayerInputs is the snapshot a renderer works from. It is fully owned by
// the reconciliation pass so Render may run off the session thread.
type LayerInputs struct {
	Dataset    domain.DatasetID
	Subset     domain.SubsetID
	Size       int
	Shape      []int
	Axes       map[string][]float64
	Mask       domain.Mask
	Components map[string][]float64
	// ComponentOrder lists Components keys in dataset order.
	ComponentOrder []string
}

// IsSubset reports whether the inputs describe a subset layer.
func (in LayerInputs) IsSubset() bool { return in.Subset != "" }

// RenderData is the render-ready output handed to the drawing backend.
type RenderData struct {
	Kind     domain.ViewerKind    `json:"kind"`
	Shape    []int                `json:"shape,omitempty"`
	Columns  map[string][]float64 `json:"columns"`
	Order    []string             `json:"order"`
	Mask     domain.Mask          `json:"mask,omitempty"`
	Selected int                  `json:"selected"`
	Rows     []int                `json:"rows,omitempty"`
}

// Renderer turns layer inputs into render data for one viewer kind.
// Render must be deterministic and must not touch session state.
type Renderer interface {
	Kind() domain.ViewerKind
	Axes() []AxisSpec
	Render(in LayerInputs) (RenderData, error)
}

// componentReader is implemented by renderers that need every component of
// the dataset rather than a fixed set of axes.
type componentReader interface {
	ReadsComponents() bool
}

func rendererFor(kind domain.ViewerKind) (Renderer, error) {
	switch kind {
	case domain.ViewerImage:
		return imageRenderer{}, nil
	case domain.ViewerSpectrum:
		return spectrumRenderer{}, nil
	case domain.ViewerCube:
		return cubeRenderer{}, nil
	case domain.ViewerTable:
		return tableRenderer{}, nil
	case domain.ViewerScatter:
		return scatterRenderer{}, nil
	default:
		return nil, domain.SchemaConflictf("unknown viewer kind %q", kind)
	}
}

func newRenderData(kind domain.ViewerKind, in LayerInputs) RenderData {
	shape := append([]int(nil), in.Shape...)
	if len(shape) == 0 {
		shape = []int{in.Size}
	}
	out := RenderData{Kind: kind, Shape: shape, Columns: make(map[string][]float64)}
	if in.IsSubset() {
		out.Mask = in.Mask.Clone()
		out.Selected = in.Mask.Count()
	} else {
		out.Selected = in.Size
	}
	return out
}

func (d *RenderData) put(name string, values []float64) {
	if _, exists := d.Columns[name]; !exists {
		d.Order = append(d.Order, name)
	}
	d.Columns[name] = values
}

func axisValues(in LayerInputs, name string) ([]float64, error) {
	v, ok := in.Axes[name]
	if !ok {
		return nil, errors.Newf("axis %s not bound", name)
	}
	return v, nil
}

func selectedRows(mask domain.Mask) []int {
	rows := make([]int, 0, mask.Count())
	for i, ok := range mask {
		if ok {
			rows = append(rows, i)
		}
	}
	return rows
}

func pick(values []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}

type imageRenderer struct{}

func (imageRenderer) Kind() domain.ViewerKind { return domain.ViewerImage }

func (imageRenderer) Axes() []AxisSpec {
	return []AxisSpec{{Name: "x", Required: true}, {Name: "y", Required: true}, {Name: "value"}}
}

func (r imageRenderer) Render(in LayerInputs) (RenderData, error) {
	out := newRenderData(r.Kind(), in)
	for _, ax := range r.Axes() {
		v, err := axisValues(in, ax.Name)
		if err != nil {
			if ax.Required {
				return RenderData{}, err
			}
			continue
		}
		out.put(ax.Name, append([]float64(nil), v...))
	}
	return out, nil
}

// spectrumRenderer draws y against x; a subset layer blanks unselected
// samples so the line breaks outside the selection.
type spectrumRenderer struct{}

func (spectrumRenderer) Kind() domain.ViewerKind { return domain.ViewerSpectrum }

func (spectrumRenderer) Axes() []AxisSpec {
	return []AxisSpec{{Name: "x", Required: true}, {Name: "y", Required: true}}
}

func (r spectrumRenderer) Render(in LayerInputs) (RenderData, error) {
	out := newRenderData(r.Kind(), in)
	xs, err := axisValues(in, "x")
	if err != nil {
		return RenderData{}, err
	}
	ys, err := axisValues(in, "y")
	if err != nil {
		return RenderData{}, err
	}
	y := append([]float64(nil), ys...)
	if in.IsSubset() {
		for i := range y {
			if !in.Mask[i] {
				y[i] = math.NaN()
			}
		}
	}
	out.put("x", append([]float64(nil), xs...))
	out.put("y", y)
	return out, nil
}

// cubeRenderer exposes the voxel coordinates; subset layers add the
// collapsed profile along z over the selected voxels.
type cubeRenderer struct{}

func (cubeRenderer) Kind() domain.ViewerKind { return domain.ViewerCube }

func (cubeRenderer) Axes() []AxisSpec {
	return []AxisSpec{
		{Name: "x", Required: true},
		{Name: "y", Required: true},
		{Name: "z", Required: true},
		{Name: "value"},
	}
}

func (r cubeRenderer) Render(in LayerInputs) (RenderData, error) {
	out := newRenderData(r.Kind(), in)
	for _, ax := range r.Axes() {
		v, err := axisValues(in, ax.Name)
		if err != nil {
			if ax.Required {
				return RenderData{}, err
			}
			continue
		}
		out.put(ax.Name, append([]float64(nil), v...))
	}
	if !in.IsSubset() {
		return out, nil
	}
	zs := in.Axes["z"]
	values, weighted := in.Axes["value"]
	sums := make(map[float64]float64)
	for i, selected := range in.Mask {
		if !selected {
			continue
		}
		w := 1.0
		if weighted {
			w = values[i]
		}
		sums[zs[i]] += w
	}
	planes := make([]float64, 0, len(sums))
	for z := range sums {
		planes = append(planes, z)
	}
	sort.Float64s(planes)
	profile := make([]float64, len(planes))
	for i, z := range planes {
		profile[i] = sums[z]
	}
	out.put("profile_z", planes)
	out.put("profile", profile)
	return out, nil
}

type tableRenderer struct{}

func (tableRenderer) Kind() domain.ViewerKind { return domain.ViewerTable }

func (tableRenderer) Axes() []AxisSpec { return nil }

func (tableRenderer) ReadsComponents() bool { return true }

func (r tableRenderer) Render(in LayerInputs) (RenderData, error) {
	out := newRenderData(r.Kind(), in)
	for _, name := range in.ComponentOrder {
		out.put(name, append([]float64(nil), in.Components[name]...))
	}
	if in.IsSubset() {
		out.Rows = selectedRows(in.Mask)
	}
	return out, nil
}

// scatterRenderer emits only the selected points for subset layers.
type scatterRenderer struct{}

func (scatterRenderer) Kind() domain.ViewerKind { return domain.ViewerScatter }

func (scatterRenderer) Axes() []AxisSpec {
	return []AxisSpec{{Name: "x", Required: true}, {Name: "y", Required: true}}
}

func (r scatterRenderer) Render(in LayerInputs) (RenderData, error) {
	out := newRenderData(r.Kind(), in)
	xs, err := axisValues(in, "x")
	if err != nil {
		return RenderData{}, err
	}
	ys, err := axisValues(in, "y")
	if err != nil {
		return RenderData{}, err
	}
	if !in.IsSubset() {
		out.put("x", append([]float64(nil), xs...))
		out.put("y", append([]float64(nil), ys...))
		return out, nil
	}
	out.Rows = selectedRows(in.Mask)
	out.put("x", pick(xs, out.Rows))
	out.put("y", pick(ys, out.Rows))
	return out, nil
}
