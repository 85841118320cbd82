package domain

// ViewerKind is the closed set of visual representations.
type ViewerKind string

const (
	ViewerImage    ViewerKind = "image"
	ViewerSpectrum ViewerKind = "spectrum"
	ViewerCube     ViewerKind = "cube"
	ViewerTable    ViewerKind = "table"
	ViewerScatter  ViewerKind = "scatter"
)

// ViewerKinds lists every supported kind.
func ViewerKinds() []ViewerKind {
	return []ViewerKind{ViewerImage, ViewerSpectrum, ViewerCube, ViewerTable, ViewerScatter}
}

// ViewerSpec is the persisted configuration of a viewer: what it shows and
// how its axes bind to components. Layers are derived and never persisted.
type ViewerSpec struct {
	ID       ViewerID                `json:"id"`
	Kind     ViewerKind              `json:"kind"`
	Axes     map[string]ComponentRef `json:"axes,omitempty"`
	Datasets []DatasetID             `json:"datasets,omitempty"`
	Subsets  []SubsetID              `json:"subsets,omitempty"`
	// FollowSubsets activates every subset as it is defined.
	FollowSubsets bool `json:"follow_subsets,omitempty"`
}

// Clone returns a deep copy.
func (v ViewerSpec) Clone() ViewerSpec {
	out := v
	if v.Axes != nil {
		out.Axes = make(map[string]ComponentRef, len(v.Axes))
		for k, r := range v.Axes {
			out.Axes[k] = r
		}
	}
	out.Datasets = append([]DatasetID(nil), v.Datasets...)
	out.Subsets = append([]SubsetID(nil), v.Subsets...)
	return out
}
