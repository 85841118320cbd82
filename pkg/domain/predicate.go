package domain

import (
	"encoding/json"
	"sort"

	"skylink/pkg/errors"
)

// ExprKind tags each variant of the predicate tree.
type ExprKind string

const (
	ExprCompare ExprKind = "compare"
	ExprRange   ExprKind = "range"
	ExprAnd     ExprKind = "and"
	ExprOr      ExprKind = "or"
	ExprXor     ExprKind = "xor"
	ExprNot     ExprKind = "not"
	ExprBox     ExprKind = "box"
	ExprEllipse ExprKind = "ellipse"
	ExprPolygon ExprKind = "polygon"
	ExprMask    ExprKind = "mask"
	ExprAll     ExprKind = "all"
)

// Expr is a node of the subset predicate language. The set of variants is
// closed: only the types declared in this file implement it.
type Expr interface {
	Kind() ExprKind
	// Refs lists the component references the node reads, in evaluation order.
	Refs() []ComponentRef
	sealed()
}

// CompareOp enumerates the comparison operators.
type CompareOp string

const (
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpEQ CompareOp = "=="
	OpNE CompareOp = "!="
)

// Apply evaluates the comparison for a single value.
func (op CompareOp) Apply(v, threshold float64) (bool, error) {
	switch op {
	case OpLT:
		return v < threshold, nil
	case OpLE:
		return v <= threshold, nil
	case OpGT:
		return v > threshold, nil
	case OpGE:
		return v >= threshold, nil
	case OpEQ:
		return v == threshold, nil
	case OpNE:
		return v != threshold, nil
	default:
		return false, errors.Newf("unknown comparison operator %q", string(op))
	}
}

// Compare selects elements where Ref Op Value holds.
type Compare struct {
	Ref   ComponentRef
	Op    CompareOp
	Value float64
}

// Range selects elements with Lo <= Ref <= Hi.
type Range struct {
	Ref    ComponentRef
	Lo, Hi float64
}

// And intersects its terms. An empty And selects everything.
type And struct{ Terms []Expr }

// Or unions its terms. An empty Or selects nothing.
type Or struct{ Terms []Expr }

// Xor selects elements in exactly one of Left and Right.
type Xor struct{ Left, Right Expr }

// Not complements its term.
type Not struct{ Term Expr }

// Box is an axis-aligned rectangle over two coordinate components, bounds inclusive.
type Box struct {
	X, Y       ComponentRef
	XMin, XMax float64
	YMin, YMax float64
}

// Ellipse is a rotated ellipse centred on (CX, CY) with semi-axes RX and RY.
// Theta is the rotation of the RX axis in radians, counter-clockwise.
type Ellipse struct {
	X, Y   ComponentRef
	CX, CY float64
	RX, RY float64
	Theta  float64
}

// Polygon selects points inside the polygon using the even-odd rule.
type Polygon struct {
	X, Y     ComponentRef
	Vertices [][2]float64
}

// MaskRef selects elements where the referenced component is non-zero.
type MaskRef struct{ Ref ComponentRef }

// All selects every element.
type All struct{}

func (Compare) Kind() ExprKind { return ExprCompare }
func (Range) Kind() ExprKind   { return ExprRange }
func (And) Kind() ExprKind     { return ExprAnd }
func (Or) Kind() ExprKind      { return ExprOr }
func (Xor) Kind() ExprKind     { return ExprXor }
func (Not) Kind() ExprKind     { return ExprNot }
func (Box) Kind() ExprKind     { return ExprBox }
func (Ellipse) Kind() ExprKind { return ExprEllipse }
func (Polygon) Kind() ExprKind { return ExprPolygon }
func (MaskRef) Kind() ExprKind { return ExprMask }
func (All) Kind() ExprKind     { return ExprAll }

func (Compare) sealed() {}
func (Range) sealed()   {}
func (And) sealed()     {}
func (Or) sealed()      {}
func (Xor) sealed()     {}
func (Not) sealed()     {}
func (Box) sealed()     {}
func (Ellipse) sealed() {}
func (Polygon) sealed() {}
func (MaskRef) sealed() {}
func (All) sealed()     {}

func (e Compare) Refs() []ComponentRef { return []ComponentRef{e.Ref} }
func (e Range) Refs() []ComponentRef   { return []ComponentRef{e.Ref} }
func (e And) Refs() []ComponentRef     { return refsOf(e.Terms...) }
func (e Or) Refs() []ComponentRef      { return refsOf(e.Terms...) }
func (e Xor) Refs() []ComponentRef     { return refsOf(e.Left, e.Right) }
func (e Not) Refs() []ComponentRef     { return refsOf(e.Term) }
func (e Box) Refs() []ComponentRef     { return []ComponentRef{e.X, e.Y} }
func (e Ellipse) Refs() []ComponentRef { return []ComponentRef{e.X, e.Y} }
func (e Polygon) Refs() []ComponentRef { return []ComponentRef{e.X, e.Y} }
func (e MaskRef) Refs() []ComponentRef { return []ComponentRef{e.Ref} }
func (All) Refs() []ComponentRef       { return nil }

func refsOf(terms ...Expr) []ComponentRef {
	var out []ComponentRef
	seen := make(map[ComponentRef]struct{})
	for _, t := range terms {
		if t == nil {
			continue
		}
		for _, r := range t.Refs() {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// Datasets returns the distinct datasets an expression references through
// qualified component refs, sorted.
func Datasets(e Expr) []DatasetID {
	if e == nil {
		return nil
	}
	set := make(map[DatasetID]struct{})
	for _, r := range e.Refs() {
		if r.Dataset != "" {
			set[r.Dataset] = struct{}{}
		}
	}
	out := make([]DatasetID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsSpatial reports whether the expression contains a region shape.
func IsSpatial(e Expr) bool {
	switch v := e.(type) {
	case Box, Ellipse, Polygon:
		return true
	case And:
		for _, t := range v.Terms {
			if IsSpatial(t) {
				return true
			}
		}
	case Or:
		for _, t := range v.Terms {
			if IsSpatial(t) {
				return true
			}
		}
	case Xor:
		return IsSpatial(v.Left) || IsSpatial(v.Right)
	case Not:
		return IsSpatial(v.Term)
	}
	return false
}

// ValidateExpr checks structural well-formedness of an expression tree.
func ValidateExpr(e Expr) error {
	switch v := e.(type) {
	case nil:
		return errors.New("nil predicate")
	case Compare:
		if v.Ref.Component == "" {
			return errors.New("compare: empty component")
		}
		_, err := v.Op.Apply(0, 0)
		return err
	case Range:
		if v.Ref.Component == "" {
			return errors.New("range: empty component")
		}
		if v.Lo > v.Hi {
			return errors.Newf("range: lo %g > hi %g", v.Lo, v.Hi)
		}
	case And:
		for _, t := range v.Terms {
			if err := ValidateExpr(t); err != nil {
				return err
			}
		}
	case Or:
		for _, t := range v.Terms {
			if err := ValidateExpr(t); err != nil {
				return err
			}
		}
	case Xor:
		if err := ValidateExpr(v.Left); err != nil {
			return err
		}
		return ValidateExpr(v.Right)
	case Not:
		return ValidateExpr(v.Term)
	case Box:
		if v.X.Component == "" || v.Y.Component == "" {
			return errors.New("box: both axes required")
		}
	case Ellipse:
		if v.X.Component == "" || v.Y.Component == "" {
			return errors.New("ellipse: both axes required")
		}
		if v.RX <= 0 || v.RY <= 0 {
			return errors.New("ellipse: radii must be positive")
		}
	case Polygon:
		if v.X.Component == "" || v.Y.Component == "" {
			return errors.New("polygon: both axes required")
		}
		if len(v.Vertices) < 3 {
			return errors.Newf("polygon: need at least 3 vertices, got %d", len(v.Vertices))
		}
	case MaskRef:
		if v.Ref.Component == "" {
			return errors.New("mask: empty component")
		}
	case All:
	default:
		return errors.Newf("unsupported predicate %T", e)
	}
	return nil
}

// CombineMode selects how a new selection merges into an existing subset.
type CombineMode string

const (
	CombineReplace CombineMode = "replace"
	CombineAnd     CombineMode = "and"
	CombineOr      CombineMode = "or"
	CombineXor     CombineMode = "xor"
	CombineAndNot  CombineMode = "andnot"
)

// Combine merges next into current according to mode.
func Combine(current, next Expr, mode CombineMode) (Expr, error) {
	if current == nil || mode == CombineReplace || mode == "" {
		return next, nil
	}
	switch mode {
	case CombineAnd:
		return And{Terms: []Expr{current, next}}, nil
	case CombineOr:
		return Or{Terms: []Expr{current, next}}, nil
	case CombineXor:
		return Xor{Left: current, Right: next}, nil
	case CombineAndNot:
		return And{Terms: []Expr{current, Not{Term: next}}}, nil
	default:
		return nil, errors.Newf("unknown combine mode %q", string(mode))
	}
}

// wireExpr is the serialised envelope of an expression node. Numeric
// parameters are positional per kind so zero values survive the round trip.
type wireExpr struct {
	Kind     ExprKind      `json:"kind"`
	Ref      *ComponentRef `json:"ref,omitempty"`
	X        *ComponentRef `json:"x,omitempty"`
	Y        *ComponentRef `json:"y,omitempty"`
	Op       CompareOp     `json:"op,omitempty"`
	Args     []float64     `json:"args,omitempty"`
	Vertices [][2]float64  `json:"vertices,omitempty"`
	Terms    []wireExpr    `json:"terms,omitempty"`
}

// MarshalExpr encodes an expression tree as JSON.
func MarshalExpr(e Expr) ([]byte, error) {
	w, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalExpr decodes an expression tree produced by MarshalExpr.
func UnmarshalExpr(data []byte) (Expr, error) {
	var w wireExpr
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "decode predicate")
	}
	return fromWire(w)
}

func refPtr(r ComponentRef) *ComponentRef { return &r }

func toWire(e Expr) (wireExpr, error) {
	switch v := e.(type) {
	case Compare:
		return wireExpr{Kind: ExprCompare, Ref: refPtr(v.Ref), Op: v.Op, Args: []float64{v.Value}}, nil
	case Range:
		return wireExpr{Kind: ExprRange, Ref: refPtr(v.Ref), Args: []float64{v.Lo, v.Hi}}, nil
	case And:
		terms, err := termsToWire(v.Terms)
		return wireExpr{Kind: ExprAnd, Terms: terms}, err
	case Or:
		terms, err := termsToWire(v.Terms)
		return wireExpr{Kind: ExprOr, Terms: terms}, err
	case Xor:
		terms, err := termsToWire([]Expr{v.Left, v.Right})
		return wireExpr{Kind: ExprXor, Terms: terms}, err
	case Not:
		terms, err := termsToWire([]Expr{v.Term})
		return wireExpr{Kind: ExprNot, Terms: terms}, err
	case Box:
		return wireExpr{Kind: ExprBox, X: refPtr(v.X), Y: refPtr(v.Y), Args: []float64{v.XMin, v.XMax, v.YMin, v.YMax}}, nil
	case Ellipse:
		return wireExpr{Kind: ExprEllipse, X: refPtr(v.X), Y: refPtr(v.Y), Args: []float64{v.CX, v.CY, v.RX, v.RY, v.Theta}}, nil
	case Polygon:
		verts := append([][2]float64(nil), v.Vertices...)
		return wireExpr{Kind: ExprPolygon, X: refPtr(v.X), Y: refPtr(v.Y), Vertices: verts}, nil
	case MaskRef:
		return wireExpr{Kind: ExprMask, Ref: refPtr(v.Ref)}, nil
	case All:
		return wireExpr{Kind: ExprAll}, nil
	default:
		return wireExpr{}, errors.Newf("unsupported predicate %T", e)
	}
}

func termsToWire(terms []Expr) ([]wireExpr, error) {
	out := make([]wireExpr, 0, len(terms))
	for _, t := range terms {
		w, err := toWire(t)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func fromWire(w wireExpr) (Expr, error) {
	args := func(n int) error {
		if len(w.Args) != n {
			return errors.Newf("%s: want %d args, got %d", w.Kind, n, len(w.Args))
		}
		return nil
	}
	ref := func(r *ComponentRef) (ComponentRef, error) {
		if r == nil {
			return ComponentRef{}, errors.Newf("%s: missing component ref", w.Kind)
		}
		return *r, nil
	}
	switch w.Kind {
	case ExprCompare:
		r, err := ref(w.Ref)
		if err != nil {
			return nil, err
		}
		if err := args(1); err != nil {
			return nil, err
		}
		return Compare{Ref: r, Op: w.Op, Value: w.Args[0]}, nil
	case ExprRange:
		r, err := ref(w.Ref)
		if err != nil {
			return nil, err
		}
		if err := args(2); err != nil {
			return nil, err
		}
		return Range{Ref: r, Lo: w.Args[0], Hi: w.Args[1]}, nil
	case ExprAnd, ExprOr:
		terms, err := termsFromWire(w.Terms)
		if err != nil {
			return nil, err
		}
		if w.Kind == ExprAnd {
			return And{Terms: terms}, nil
		}
		return Or{Terms: terms}, nil
	case ExprXor:
		terms, err := termsFromWire(w.Terms)
		if err != nil {
			return nil, err
		}
		if len(terms) != 2 {
			return nil, errors.Newf("xor: want 2 terms, got %d", len(terms))
		}
		return Xor{Left: terms[0], Right: terms[1]}, nil
	case ExprNot:
		terms, err := termsFromWire(w.Terms)
		if err != nil {
			return nil, err
		}
		if len(terms) != 1 {
			return nil, errors.Newf("not: want 1 term, got %d", len(terms))
		}
		return Not{Term: terms[0]}, nil
	case ExprBox, ExprEllipse, ExprPolygon:
		x, err := ref(w.X)
		if err != nil {
			return nil, err
		}
		y, err := ref(w.Y)
		if err != nil {
			return nil, err
		}
		switch w.Kind {
		case ExprBox:
			if err := args(4); err != nil {
				return nil, err
			}
			return Box{X: x, Y: y, XMin: w.Args[0], XMax: w.Args[1], YMin: w.Args[2], YMax: w.Args[3]}, nil
		case ExprEllipse:
			if err := args(5); err != nil {
				return nil, err
			}
			return Ellipse{X: x, Y: y, CX: w.Args[0], CY: w.Args[1], RX: w.Args[2], RY: w.Args[3], Theta: w.Args[4]}, nil
		default:
			return Polygon{X: x, Y: y, Vertices: append([][2]float64(nil), w.Vertices...)}, nil
		}
	case ExprMask:
		r, err := ref(w.Ref)
		if err != nil {
			return nil, err
		}
		return MaskRef{Ref: r}, nil
	case ExprAll:
		return All{}, nil
	default:
		return nil, errors.Newf("unknown predicate kind %q", w.Kind)
	}
}

func termsFromWire(terms []wireExpr) ([]Expr, error) {
	out := make([]Expr, 0, len(terms))
	for _, t := range terms {
		e, err := fromWire(t)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
