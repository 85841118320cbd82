package domain

import (
	"math"
	"strconv"
)

// TransformKind enumerates the transform families a link may carry.
type TransformKind string

const (
	TransformIdentity TransformKind = "identity"
	TransformAffine   TransformKind = "affine"
	TransformExternal TransformKind = "external"
)

// TransformSpec describes the forward mapping of a link from its source
// component to its destination. Affine maps v to A*v + B. External transforms
// are opaque functions registered by name with the session. OneWay marks a
// link whose values only flow along the forward direction.
type TransformSpec struct {
	Kind   TransformKind `json:"kind"`
	A      float64       `json:"a,omitempty"`
	B      float64       `json:"b,omitempty"`
	Name   string        `json:"name,omitempty"`
	OneWay bool          `json:"one_way,omitempty"`
}

// Identity returns the identity transform.
func Identity() TransformSpec { return TransformSpec{Kind: TransformIdentity} }

// Affine returns v -> a*v + b.
func Affine(a, b float64) TransformSpec { return TransformSpec{Kind: TransformAffine, A: a, B: b} }

// External returns a reference to a named transform.
func External(name string) TransformSpec { return TransformSpec{Kind: TransformExternal, Name: name} }

// Directional returns a copy tagged as one-directional.
func (t TransformSpec) Directional() TransformSpec {
	t.OneWay = true
	return t
}

// Inverse returns the closed-form inverse for identity and affine transforms.
func (t TransformSpec) Inverse() (TransformSpec, bool) {
	switch t.Kind {
	case TransformIdentity:
		return t, true
	case TransformAffine:
		if t.A == 0 {
			return TransformSpec{}, false
		}
		return TransformSpec{Kind: TransformAffine, A: 1 / t.A, B: -t.B / t.A, OneWay: t.OneWay}, true
	default:
		return TransformSpec{}, false
	}
}

const transformTolerance = 1e-12

// Equal compares two transform specs with a small numeric tolerance.
func (t TransformSpec) Equal(o TransformSpec) bool {
	if t.Kind != o.Kind || t.OneWay != o.OneWay {
		return false
	}
	switch t.Kind {
	case TransformAffine:
		return math.Abs(t.A-o.A) <= transformTolerance && math.Abs(t.B-o.B) <= transformTolerance
	case TransformExternal:
		return t.Name == o.Name
	default:
		return true
	}
}

// String renders a short human readable description.
func (t TransformSpec) String() string {
	s := string(t.Kind)
	switch t.Kind {
	case TransformAffine:
		s = "affine(" + formatFloat(t.A) + "," + formatFloat(t.B) + ")"
	case TransformExternal:
		s = "external(" + t.Name + ")"
	}
	if t.OneWay {
		s += " one-way"
	}
	return s
}

// Link connects two components and carries the transform from From to To.
// Seq records registration order and is used to break resolution ties.
type Link struct {
	ID        LinkID        `json:"id"`
	From      ComponentRef  `json:"from"`
	To        ComponentRef  `json:"to"`
	Transform TransformSpec `json:"transform"`
	Seq       uint64        `json:"seq"`
}

// Touches reports whether the link references the dataset.
func (l Link) Touches(id DatasetID) bool {
	return l.From.Dataset == id || l.To.Dataset == id
}

// Datasets returns the two datasets joined by the link.
func (l Link) Datasets() []DatasetID {
	return []DatasetID{l.From.Dataset, l.To.Dataset}
}

// References reports whether the link uses the component.
func (l Link) References(ref ComponentRef) bool {
	return l.From == ref || l.To == ref
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
