package export

import (
	"skylink/internal/core"
	"skylink/pkg/domain"
)

// LayerCapture is an owned copy of one fresh layer's render data.
type LayerCapture struct {
	Dataset domain.DatasetID `json:"dataset"`
	Subset  domain.SubsetID  `json:"subset,omitempty"`
	Style   domain.Style     `json:"style"`
	Render  core.RenderData  `json:"render"`
}

// Name is the artifact base name of the layer.
func (l LayerCapture) Name() string {
	if l.Subset == "" {
		return string(l.Dataset)
	}
	return string(l.Dataset) + "__" + string(l.Subset)
}

// ViewerCapture is what the worker exports. It is taken on the session
// thread so the worker never reads live session state.
type ViewerCapture struct {
	Session string            `json:"session"`
	Viewer  domain.ViewerID   `json:"viewer"`
	Kind    domain.ViewerKind `json:"kind"`
	Layers  []LayerCapture    `json:"layers"`
	// Skipped lists layers that were not fresh when captured.
	Skipped []string `json:"skipped,omitempty"`
}

// Capture copies the viewer's fresh layers.
func Capture(session string, v *core.Viewer) ViewerCapture {
	out := ViewerCapture{Session: session, Viewer: v.ID(), Kind: v.Kind()}
	for _, lv := range v.Layers() {
		lc := LayerCapture{Dataset: lv.Dataset, Subset: lv.Subset, Style: lv.Style}
		if !lv.Active() {
			out.Skipped = append(out.Skipped, lc.Name())
			continue
		}
		lc.Render = cloneRender(lv.Render)
		out.Layers = append(out.Layers, lc)
	}
	return out
}

func cloneRender(in core.RenderData) core.RenderData {
	out := in
	out.Shape = append([]int(nil), in.Shape...)
	out.Order = append([]string(nil), in.Order...)
	out.Mask = in.Mask.Clone()
	out.Rows = append([]int(nil), in.Rows...)
	out.Columns = make(map[string][]float64, len(in.Columns))
	for k, v := range in.Columns {
		out.Columns[k] = append([]float64(nil), v...)
	}
	return out
}
