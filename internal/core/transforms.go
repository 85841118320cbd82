package core

import (
	"sort"

	"skylink/pkg/domain"
	"skylink/pkg/errors"
	"skylink/pkg/pluginapi"
)

// TransformFunc maps component values across a link.
type TransformFunc = pluginapi.TransformFunc

type transformEntry struct {
	forward TransformFunc
	inverse TransformFunc
	owner   string
}

// TransformCatalog holds named external transforms contributed by plugins or
// the embedding application.
type TransformCatalog struct {
	entries map[string]transformEntry
}

func newTransformCatalog() *TransformCatalog {
	return &TransformCatalog{entries: make(map[string]transformEntry)}
}

// Register adds a named transform. inverse may be nil.
func (c *TransformCatalog) Register(name string, forward, inverse TransformFunc) error {
	return c.register(name, "", forward, inverse)
}

func (c *TransformCatalog) register(name, owner string, forward, inverse TransformFunc) error {
	if name == "" {
		return errors.New("transform name required")
	}
	if forward == nil {
		return errors.Newf("transform %s: forward function required", name)
	}
	if _, exists := c.entries[name]; exists {
		return domain.DuplicateIDf("transform %s", name)
	}
	c.entries[name] = transformEntry{forward: forward, inverse: inverse, owner: owner}
	return nil
}

// Names lists registered transform names, sorted.
func (c *TransformCatalog) Names() []string {
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Invertible reports whether the named transform has an inverse.
func (c *TransformCatalog) Invertible(name string) (bool, error) {
	entry, ok := c.entries[name]
	if !ok {
		return false, domain.NotFoundf("transform %s", name)
	}
	return entry.inverse != nil, nil
}

// validate checks that a spec can be carried by a link: its external
// transform exists and a non-invertible transform is tagged one-way.
func (c *TransformCatalog) validate(spec domain.TransformSpec) error {
	switch spec.Kind {
	case domain.TransformIdentity:
		return nil
	case domain.TransformAffine:
		if spec.A == 0 && !spec.OneWay {
			return domain.LinkConflictf("affine transform with zero slope is not invertible and must be one-way")
		}
		return nil
	case domain.TransformExternal:
		invertible, err := c.Invertible(spec.Name)
		if err != nil {
			return err
		}
		if !invertible && !spec.OneWay {
			return domain.LinkConflictf("transform %s has no inverse and must be one-way", spec.Name)
		}
		return nil
	default:
		return domain.LinkConflictf("unknown transform kind %q", spec.Kind)
	}
}

// carrier returns the function that moves values across a link. forward
// carries values from the link's From component to its To component; the
// reverse direction needs an inverse and is refused for one-way links.
func (c *TransformCatalog) carrier(spec domain.TransformSpec, forward bool) (TransformFunc, bool) {
	if !forward && spec.OneWay {
		return nil, false
	}
	switch spec.Kind {
	case domain.TransformIdentity:
		return copyValues, true
	case domain.TransformAffine:
		a, b := spec.A, spec.B
		if forward {
			return func(in []float64) ([]float64, error) {
				out := make([]float64, len(in))
				for i, v := range in {
					out[i] = a*v + b
				}
				return out, nil
			}, true
		}
		if a == 0 {
			return nil, false
		}
		return func(in []float64) ([]float64, error) {
			out := make([]float64, len(in))
			for i, v := range in {
				out[i] = (v - b) / a
			}
			return out, nil
		}, true
	case domain.TransformExternal:
		entry, ok := c.entries[spec.Name]
		if !ok {
			return nil, false
		}
		fn := entry.forward
		if !forward {
			fn = entry.inverse
		}
		if fn == nil {
			return nil, false
		}
		return lengthChecked(spec.Name, fn), true
	}
	return nil, false
}

func copyValues(in []float64) ([]float64, error) {
	return append([]float64(nil), in...), nil
}

func lengthChecked(name string, fn TransformFunc) TransformFunc {
	return func(in []float64) ([]float64, error) {
		out, err := fn(append([]float64(nil), in...))
		if err != nil {
			return nil, errors.Wrapf(err, "transform %s", name)
		}
		if len(out) != len(in) {
			return nil, errors.Newf("transform %s returned %d values for %d inputs", name, len(out), len(in))
		}
		return out, nil
	}
}
