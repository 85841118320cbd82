package core

import (
	"math"

	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

// valueResolver returns a component's values over the evaluation target's
// index space.
type valueResolver func(ref domain.ComponentRef) ([]float64, error)

// evaluator interprets a predicate tree against one dataset.
type evaluator struct {
	size    int
	resolve valueResolver
	cache   map[domain.ComponentRef][]float64
}

func newEvaluator(size int, resolve valueResolver) *evaluator {
	return &evaluator{size: size, resolve: resolve, cache: make(map[domain.ComponentRef][]float64)}
}

func (ev *evaluator) values(ref domain.ComponentRef) ([]float64, error) {
	if v, ok := ev.cache[ref]; ok {
		return v, nil
	}
	v, err := ev.resolve(ref)
	if err != nil {
		return nil, err
	}
	if len(v) != ev.size {
		return nil, errors.Newf("component %s resolved to %d values, dataset has %d", ref, len(v), ev.size)
	}
	ev.cache[ref] = v
	return v, nil
}

func (ev *evaluator) filled(value bool) domain.Mask {
	m := make(domain.Mask, ev.size)
	if value {
		for i := range m {
			m[i] = true
		}
	}
	return m
}

func (ev *evaluator) eval(e domain.Expr) (domain.Mask, error) {
	switch v := e.(type) {
	case domain.All:
		return ev.filled(true), nil
	case domain.Compare:
		vals, err := ev.values(v.Ref)
		if err != nil {
			return nil, err
		}
		m := make(domain.Mask, ev.size)
		for i, x := range vals {
			ok, err := v.Op.Apply(x, v.Value)
			if err != nil {
				return nil, err
			}
			m[i] = ok
		}
		return m, nil
	case domain.Range:
		vals, err := ev.values(v.Ref)
		if err != nil {
			return nil, err
		}
		m := make(domain.Mask, ev.size)
		for i, x := range vals {
			m[i] = x >= v.Lo && x <= v.Hi
		}
		return m, nil
	case domain.MaskRef:
		vals, err := ev.values(v.Ref)
		if err != nil {
			return nil, err
		}
		m := make(domain.Mask, ev.size)
		for i, x := range vals {
			m[i] = x != 0 && !math.IsNaN(x)
		}
		return m, nil
	case domain.And:
		out := ev.filled(true)
		for _, t := range v.Terms {
			m, err := ev.eval(t)
			if err != nil {
				return nil, err
			}
			for i := range out {
				out[i] = out[i] && m[i]
			}
		}
		return out, nil
	case domain.Or:
		out := ev.filled(false)
		for _, t := range v.Terms {
			m, err := ev.eval(t)
			if err != nil {
				return nil, err
			}
			for i := range out {
				out[i] = out[i] || m[i]
			}
		}
		return out, nil
	case domain.Xor:
		left, err := ev.eval(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := ev.eval(v.Right)
		if err != nil {
			return nil, err
		}
		for i := range left {
			left[i] = left[i] != right[i]
		}
		return left, nil
	case domain.Not:
		m, err := ev.eval(v.Term)
		if err != nil {
			return nil, err
		}
		for i := range m {
			m[i] = !m[i]
		}
		return m, nil
	case domain.Box:
		return ev.spatial(v.X, v.Y, func(x, y float64) bool {
			return x >= v.XMin && x <= v.XMax && y >= v.YMin && y <= v.YMax
		})
	case domain.Ellipse:
		sin, cos := math.Sincos(v.Theta)
		return ev.spatial(v.X, v.Y, func(x, y float64) bool {
			dx, dy := x-v.CX, y-v.CY
			u := (dx*cos + dy*sin) / v.RX
			w := (-dx*sin + dy*cos) / v.RY
			return u*u+w*w <= 1
		})
	case domain.Polygon:
		return ev.spatial(v.X, v.Y, func(x, y float64) bool {
			return pointInPolygon(x, y, v.Vertices)
		})
	case nil:
		return nil, errors.New("nil predicate")
	default:
		return nil, errors.Newf("unsupported predicate %T", e)
	}
}

func (ev *evaluator) spatial(xRef, yRef domain.ComponentRef, inside func(x, y float64) bool) (domain.Mask, error) {
	xs, err := ev.values(xRef)
	if err != nil {
		return nil, err
	}
	ys, err := ev.values(yRef)
	if err != nil {
		return nil, err
	}
	m := make(domain.Mask, ev.size)
	for i := range m {
		m[i] = inside(xs[i], ys[i])
	}
	return m, nil
}

// pointInPolygon applies the even-odd rule by casting a ray towards +x.
func pointInPolygon(x, y float64, verts [][2]float64) bool {
	inside := false
	n := len(verts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := verts[i][0], verts[i][1]
		xj, yj := verts[j][0], verts[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
