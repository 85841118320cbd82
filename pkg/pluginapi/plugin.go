// Package pluginapi is the stable surface analysis plugins build against. A
// plugin subscribes to change events, contributes named transforms, reads
// shared state through Host, and writes only through queued mutations.
package pluginapi

import (
	"context"

	"skylink/pkg/domain"
)

// Version identifies the plugin contract revision.
const Version = "v1"

// Plugin is implemented by every analysis plugin.
type Plugin interface {
	Name() string
	Version() string
	Register(Registry) error
}

// Registry receives a plugin's contributions during installation.
type Registry interface {
	// Subscribe delivers matching events to handler, in installation order
	// relative to other subscribers.
	Subscribe(interest Interest, handler Handler)
	// RegisterTransform contributes an external transform usable by links.
	// inverse may be nil, in which case links using it must be one-way.
	RegisterTransform(name string, forward, inverse TransformFunc) error
	// Host returns the session handle the plugin keeps after installation.
	Host() Host
}

// Interest filters the events a subscriber receives. Empty fields match
// everything; Datasets and Subsets narrow by the ids an event carries.
type Interest struct {
	Kinds    []domain.EventKind
	Datasets []domain.DatasetID
	Subsets  []domain.SubsetID
}

// Matches reports whether ev falls within the interest.
func (i Interest) Matches(ev domain.Event) bool {
	if len(i.Kinds) > 0 {
		found := false
		for _, k := range i.Kinds {
			if k == ev.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(i.Datasets) > 0 {
		found := false
		for _, d := range i.Datasets {
			if ev.Touches(d) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(i.Subsets) > 0 {
		found := false
		for _, s := range i.Subsets {
			if s == ev.Subset {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Handler reacts to one event. Returned errors and panics are reported to the
// session diagnostics and do not stop delivery to other subscribers.
type Handler func(ctx context.Context, ev domain.Event) error

// TransformFunc maps a component's values elementwise or as a whole; it must
// be deterministic and return a slice of the same length.
type TransformFunc func(values []float64) ([]float64, error)

// MutationFunc performs queued writes against shared state.
type MutationFunc func(ctx context.Context, m Mutator) error

// ComputeFunc runs off the session thread and returns the mutation that
// applies its result.
type ComputeFunc func(ctx context.Context) (MutationFunc, error)

// Host is a plugin's handle on the session.
type Host interface {
	Dataset(id domain.DatasetID) (domain.Dataset, error)
	Datasets() []domain.Dataset
	Links() []domain.Link
	Subset(id domain.SubsetID) (domain.Subset, error)
	Subsets() []domain.Subset
	Evaluate(subset domain.SubsetID, dataset domain.DatasetID) (domain.Mask, error)
	Resolve(ref domain.ComponentRef, through domain.DatasetID) ([]float64, error)

	// Enqueue schedules fn after the currently delivering event; outside a
	// delivery it runs immediately.
	Enqueue(name string, fn MutationFunc)
	// Submit runs compute on the session's worker pool; its returned
	// mutation is applied when the session pumps completions.
	Submit(name string, compute ComputeFunc)
}

// Mutator is the write surface available to queued mutations.
type Mutator interface {
	RegisterDataset(ctx context.Context, ds domain.Dataset) (domain.DatasetID, error)
	RemoveDataset(ctx context.Context, id domain.DatasetID) error
	AddComponent(ctx context.Context, id domain.DatasetID, c domain.Component) error
	AddLink(ctx context.Context, from, to domain.ComponentRef, spec domain.TransformSpec, replace bool) (domain.LinkID, error)
	RemoveLink(ctx context.Context, id domain.LinkID) error
	DefineSubset(ctx context.Context, id domain.SubsetID, expr domain.Expr, style domain.Style) (domain.SubsetID, error)
	UpdateSubset(ctx context.Context, id domain.SubsetID, expr domain.Expr) error
	RemoveSubset(ctx context.Context, id domain.SubsetID) error
}
