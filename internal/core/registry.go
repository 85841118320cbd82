package core

import (
	"github.com/google/uuid"

	"skylink/pkg/domain"
)

// Registry owns the loaded datasets. Reads return copies; mutations go
// through the Session so they are observed and published on the bus.
type Registry struct {
	s        *Session
	datasets map[domain.DatasetID]*domain.Dataset
	order    []domain.DatasetID
}

func newRegistry(s *Session) *Registry {
	return &Registry{s: s, datasets: make(map[domain.DatasetID]*domain.Dataset)}
}

// Get returns a copy of the dataset.
func (r *Registry) Get(id domain.DatasetID) (domain.Dataset, error) {
	ds, ok := r.datasets[id]
	if !ok {
		return domain.Dataset{}, domain.NotFoundf("dataset %s", id)
	}
	return ds.Clone(), nil
}

// Has reports whether the dataset is registered.
func (r *Registry) Has(id domain.DatasetID) bool {
	_, ok := r.datasets[id]
	return ok
}

// List returns copies of all datasets in registration order.
func (r *Registry) List() []domain.Dataset {
	out := make([]domain.Dataset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.datasets[id].Clone())
	}
	return out
}

// IDs returns dataset ids in registration order.
func (r *Registry) IDs() []domain.DatasetID {
	return append([]domain.DatasetID(nil), r.order...)
}

// lookup returns the stored dataset without copying. Callers must not
// retain or modify it.
func (r *Registry) lookup(id domain.DatasetID) (*domain.Dataset, bool) {
	ds, ok := r.datasets[id]
	return ds, ok
}

// component returns the stored values of a qualified component.
func (r *Registry) component(ref domain.ComponentRef) (domain.Component, error) {
	ds, ok := r.datasets[ref.Dataset]
	if !ok {
		return domain.Component{}, domain.NotFoundf("dataset %s", ref.Dataset)
	}
	c, ok := ds.Component(ref.Component)
	if !ok {
		return domain.Component{}, domain.NotFoundf("component %s", ref)
	}
	return c, nil
}

func (r *Registry) register(ds domain.Dataset) (domain.DatasetID, error) {
	if ds.ID == "" {
		ds.ID = domain.DatasetID(uuid.NewString())
	}
	if _, exists := r.datasets[ds.ID]; exists {
		return "", domain.DuplicateIDf("dataset %s", ds.ID)
	}
	stored, err := normalizeDataset(ds)
	if err != nil {
		return "", err
	}
	r.datasets[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
	r.s.bus.publish(domain.Event{
		Kind:     domain.EventDatasetAdded,
		Dataset:  stored.ID,
		Datasets: []domain.DatasetID{stored.ID},
	})
	return stored.ID, nil
}

// normalizeDataset validates component names, roles and lengths and returns
// an owned copy.
func normalizeDataset(ds domain.Dataset) (domain.Dataset, error) {
	out := ds.Clone()
	size := out.Size()
	seen := make(map[string]struct{}, len(out.Components))
	for i := range out.Components {
		c := &out.Components[i]
		if c.Name == "" {
			return domain.Dataset{}, domain.SchemaConflictf("dataset %s: component %d has no name", ds.ID, i)
		}
		if _, dup := seen[c.Name]; dup {
			return domain.Dataset{}, domain.SchemaConflictf("dataset %s: component %s declared twice", ds.ID, c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Role == "" {
			c.Role = domain.RoleData
		}
		if !c.Role.Valid() {
			return domain.Dataset{}, domain.SchemaConflictf("dataset %s: component %s has unknown role %q", ds.ID, c.Name, c.Role)
		}
		if len(c.Values) != size {
			return domain.Dataset{}, domain.SchemaConflictf("dataset %s: component %s has %d values, index space has %d", ds.ID, c.Name, len(c.Values), size)
		}
	}
	return out, nil
}

func (r *Registry) remove(id domain.DatasetID) error {
	if _, ok := r.datasets[id]; !ok {
		return domain.NotFoundf("dataset %s", id)
	}
	removed := r.s.links.removeLinksFor(id)
	delete(r.datasets, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.s.subsets.invalidateDataset(id)

	touched := []domain.DatasetID{id}
	seen := map[domain.DatasetID]struct{}{id: {}}
	removedIDs := make([]domain.LinkID, 0, len(removed))
	for _, l := range removed {
		removedIDs = append(removedIDs, l.ID)
		for _, d := range l.Datasets() {
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				touched = append(touched, d)
			}
		}
	}
	r.s.bus.publish(domain.Event{
		Kind:         domain.EventDatasetRemoved,
		Dataset:      id,
		Datasets:     touched,
		RemovedLinks: removedIDs,
	})
	return nil
}

func (r *Registry) addComponent(id domain.DatasetID, c domain.Component) error {
	ds, ok := r.datasets[id]
	if !ok {
		return domain.NotFoundf("dataset %s", id)
	}
	if c.Name == "" {
		return domain.SchemaConflictf("dataset %s: component has no name", id)
	}
	if c.Role == "" {
		c.Role = domain.RoleData
	}
	if !c.Role.Valid() {
		return domain.SchemaConflictf("dataset %s: component %s has unknown role %q", id, c.Name, c.Role)
	}
	size := ds.Size()
	if len(ds.Components) == 0 && len(ds.Coords.Shape) == 0 {
		size = len(c.Values)
	}
	if len(c.Values) != size {
		return domain.SchemaConflictf("dataset %s: component %s has %d values, index space has %d", id, c.Name, len(c.Values), size)
	}
	c = c.Clone()
	kind := domain.EventComponentAdded
	replaced := false
	for i := range ds.Components {
		if ds.Components[i].Name == c.Name {
			ds.Components[i] = c
			kind = domain.EventComponentUpdated
			replaced = true
			break
		}
	}
	if !replaced {
		ds.Components = append(ds.Components, c)
	}
	r.s.subsets.invalidateDataset(id)
	r.s.bus.publish(domain.Event{
		Kind:      kind,
		Dataset:   id,
		Component: c.Name,
		Datasets:  []domain.DatasetID{id},
	})
	return nil
}

func (r *Registry) removeComponent(ref domain.ComponentRef) error {
	ds, ok := r.datasets[ref.Dataset]
	if !ok {
		return domain.NotFoundf("dataset %s", ref.Dataset)
	}
	idx := -1
	for i := range ds.Components {
		if ds.Components[i].Name == ref.Component {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.NotFoundf("component %s", ref)
	}
	for _, l := range r.s.links.LinksFor(ref.Dataset) {
		if l.References(ref) {
			return domain.SchemaConflictf("component %s is referenced by link %s", ref, l.ID)
		}
	}
	// An unqualified ref may resolve against any dataset, so it pins the
	// component name everywhere.
	for _, sub := range r.s.subsets.List() {
		for _, used := range sub.Predicate.Refs() {
			if used == ref || (!used.Qualified() && used.Component == ref.Component) {
				return domain.SchemaConflictf("component %s is referenced by subset %s", ref, sub.ID)
			}
		}
	}
	ds.Components = append(ds.Components[:idx:idx], ds.Components[idx+1:]...)
	r.s.subsets.invalidateDataset(ref.Dataset)
	r.s.bus.publish(domain.Event{
		Kind:      domain.EventComponentRemoved,
		Dataset:   ref.Dataset,
		Component: ref.Component,
		Datasets:  []domain.DatasetID{ref.Dataset},
	})
	return nil
}
