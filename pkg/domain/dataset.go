// Package domain holds the session data model shared by the engine, the
// persistence backends, and plugins: datasets and their components, links,
// subset predicates, viewer specifications, events, and the error taxonomy.
package domain

import "strings"

// DatasetID identifies a registered dataset. Identity is immutable once registered.
type DatasetID string

// SubsetID identifies a globally defined subset.
type SubsetID string

// LinkID identifies a link in the link graph.
type LinkID string

// ViewerID identifies a viewer within a session.
type ViewerID string

// ComponentRole classifies a named component.
type ComponentRole string

const (
	RoleCoordinate ComponentRole = "coordinate"
	RoleData       ComponentRole = "data"
	RoleMask       ComponentRole = "mask"
)

// Valid reports whether the role belongs to the closed role set.
func (r ComponentRole) Valid() bool {
	switch r {
	case RoleCoordinate, RoleData, RoleMask:
		return true
	default:
		return false
	}
}

// Component is a named array over the dataset's index space. Values are stored
// flattened in row-major order; mask components are truthy where non-zero.
type Component struct {
	Name   string        `json:"name"`
	Role   ComponentRole `json:"role"`
	Unit   string        `json:"unit,omitempty"`
	Values []float64     `json:"values"`
}

// Clone returns a deep copy of the component.
func (c Component) Clone() Component {
	c.Values = append([]float64(nil), c.Values...)
	return c
}

// Axis describes one pixel axis of a dataset and, optionally, a linear world
// solution world = CRVal + CDelt*(pixel - CRPix).
type Axis struct {
	Name  string  `json:"name"`
	Unit  string  `json:"unit,omitempty"`
	CRPix float64 `json:"crpix,omitempty"`
	CRVal float64 `json:"crval,omitempty"`
	CDelt float64 `json:"cdelt,omitempty"`
}

// HasWorld reports whether the axis carries a usable world solution.
func (a Axis) HasWorld() bool { return a.CDelt != 0 }

// PixelToWorld maps a pixel coordinate to the world coordinate.
func (a Axis) PixelToWorld(p float64) float64 { return a.CRVal + a.CDelt*(p-a.CRPix) }

// WorldToPixel maps a world coordinate back to pixel space.
func (a Axis) WorldToPixel(w float64) float64 { return a.CRPix + (w-a.CRVal)/a.CDelt }

// CoordinateDescriptor describes the shape and coordinate frame of a dataset.
type CoordinateDescriptor struct {
	Frame string `json:"frame,omitempty"`
	Shape []int  `json:"shape,omitempty"`
	Axes  []Axis `json:"axes,omitempty"`
}

// HasWorld reports whether every declared axis has a world solution.
func (c CoordinateDescriptor) HasWorld() bool {
	if len(c.Axes) == 0 {
		return false
	}
	for _, ax := range c.Axes {
		if !ax.HasWorld() {
			return false
		}
	}
	return true
}

// Axis returns the named axis.
func (c CoordinateDescriptor) Axis(name string) (Axis, bool) {
	for _, ax := range c.Axes {
		if ax.Name == name {
			return ax, true
		}
	}
	return Axis{}, false
}

// Dataset is a named collection of components sharing one index space.
type Dataset struct {
	ID         DatasetID            `json:"id"`
	Label      string               `json:"label,omitempty"`
	Coords     CoordinateDescriptor `json:"coords"`
	Components []Component          `json:"components"`
	Meta       map[string]string    `json:"meta,omitempty"`
}

// Size returns the number of elements in the dataset's index space. A declared
// shape wins; otherwise the first component's length is used.
func (d Dataset) Size() int {
	if len(d.Coords.Shape) > 0 {
		n := 1
		for _, dim := range d.Coords.Shape {
			n *= dim
		}
		return n
	}
	if len(d.Components) > 0 {
		return len(d.Components[0].Values)
	}
	return 0
}

// Component returns the named component.
func (d Dataset) Component(name string) (Component, bool) {
	for _, c := range d.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

// ComponentNames lists component names in declaration order.
func (d Dataset) ComponentNames() []string {
	out := make([]string, 0, len(d.Components))
	for _, c := range d.Components {
		out = append(out, c.Name)
	}
	return out
}

// Clone returns a deep copy of the dataset.
func (d Dataset) Clone() Dataset {
	out := d
	out.Coords.Shape = append([]int(nil), d.Coords.Shape...)
	out.Coords.Axes = append([]Axis(nil), d.Coords.Axes...)
	out.Components = make([]Component, len(d.Components))
	for i, c := range d.Components {
		out.Components[i] = c.Clone()
	}
	if d.Meta != nil {
		out.Meta = make(map[string]string, len(d.Meta))
		for k, v := range d.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

// ComponentRef names a component of a dataset. An empty Dataset means the
// same-named component of whichever dataset is being evaluated.
type ComponentRef struct {
	Dataset   DatasetID `json:"dataset,omitempty"`
	Component string    `json:"component"`
}

// Ref builds a qualified component reference.
func Ref(dataset DatasetID, component string) ComponentRef {
	return ComponentRef{Dataset: dataset, Component: component}
}

// Local builds an unqualified component reference.
func Local(component string) ComponentRef {
	return ComponentRef{Component: component}
}

// Qualified reports whether the reference names a specific dataset.
func (r ComponentRef) Qualified() bool { return r.Dataset != "" }

// String renders the reference as dataset.component.
func (r ComponentRef) String() string {
	if r.Dataset == "" {
		return r.Component
	}
	return string(r.Dataset) + "." + r.Component
}

// ParseRef parses "dataset.component" or a bare component name.
func ParseRef(s string) ComponentRef {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndex(s, "."); idx > 0 {
		return ComponentRef{Dataset: DatasetID(s[:idx]), Component: s[idx+1:]}
	}
	return ComponentRef{Component: s}
}

// Mask is a per-element membership vector over a dataset's index space.
type Mask []bool

// Count returns the number of selected elements.
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a copy of the mask.
func (m Mask) Clone() Mask { return append(Mask(nil), m...) }
