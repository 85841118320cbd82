package core

import (
	"github.com/google/uuid"

	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

// SubsetStore owns subset definitions and caches their per-dataset masks.
// Failures are cached alongside masks so an unevaluatable pair is not
// re-resolved until the subset, a dataset it depends on, or a link changes.
type SubsetStore struct {
	s           *Session
	subsets     map[domain.SubsetID]*domain.Subset
	order       []domain.SubsetID
	cache       map[evalKey]*evalEntry
	evaluations uint64
}

type evalKey struct {
	subset  domain.SubsetID
	dataset domain.DatasetID
}

type evalEntry struct {
	mask domain.Mask
	err  error
	deps map[domain.DatasetID]struct{}
}

func newSubsetStore(s *Session) *SubsetStore {
	return &SubsetStore{
		s:       s,
		subsets: make(map[domain.SubsetID]*domain.Subset),
		cache:   make(map[evalKey]*evalEntry),
	}
}

// Get returns the subset definition.
func (st *SubsetStore) Get(id domain.SubsetID) (domain.Subset, error) {
	sub, ok := st.subsets[id]
	if !ok {
		return domain.Subset{}, domain.NotFoundf("subset %s", id)
	}
	return *sub, nil
}

// List returns subsets in definition order.
func (st *SubsetStore) List() []domain.Subset {
	out := make([]domain.Subset, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, *st.subsets[id])
	}
	return out
}

// Evaluations counts mask computations that missed the cache.
func (st *SubsetStore) Evaluations() uint64 { return st.evaluations }

// Evaluate returns the subset's mask over the dataset. Resolution failures
// are returned as ErrUnevaluatable and cached.
func (st *SubsetStore) Evaluate(id domain.SubsetID, dataset domain.DatasetID) (domain.Mask, error) {
	mask, _, err := st.evaluate(id, dataset)
	if err != nil {
		return nil, err
	}
	return mask.Clone(), nil
}

// evaluate returns the cached mask without copying, plus the datasets the
// result depends on.
func (st *SubsetStore) evaluate(id domain.SubsetID, dataset domain.DatasetID) (domain.Mask, map[domain.DatasetID]struct{}, error) {
	sub, ok := st.subsets[id]
	if !ok {
		return nil, nil, domain.NotFoundf("subset %s", id)
	}
	ds, ok := st.s.registry.lookup(dataset)
	if !ok {
		return nil, nil, domain.NotFoundf("dataset %s", dataset)
	}
	key := evalKey{subset: id, dataset: dataset}
	if entry, ok := st.cache[key]; ok {
		return entry.mask, entry.deps, entry.err
	}

	st.evaluations++
	deps := map[domain.DatasetID]struct{}{dataset: {}}
	for _, d := range domain.Datasets(sub.Predicate) {
		deps[d] = struct{}{}
	}
	ev := newEvaluator(ds.Size(), func(ref domain.ComponentRef) ([]float64, error) {
		res, err := st.s.links.Resolve(ref, dataset)
		for _, d := range res.Datasets {
			deps[d] = struct{}{}
		}
		if err != nil {
			return nil, err
		}
		return res.Values, nil
	})
	mask, err := ev.eval(sub.Predicate)
	if err != nil {
		err = domain.Unevaluatable(err, "subset %s on dataset %s", id, dataset)
		mask = nil
	}
	st.cache[key] = &evalEntry{mask: mask, err: err, deps: deps}
	return mask, deps, err
}

func (st *SubsetStore) invalidateSubset(id domain.SubsetID) {
	for key := range st.cache {
		if key.subset == id {
			delete(st.cache, key)
		}
	}
}

func (st *SubsetStore) invalidateDataset(id domain.DatasetID) {
	for key, entry := range st.cache {
		if key.dataset == id {
			delete(st.cache, key)
			continue
		}
		if _, ok := entry.deps[id]; ok {
			delete(st.cache, key)
		}
	}
}

func (st *SubsetStore) invalidateAll() {
	clear(st.cache)
}

func validatePredicate(id domain.SubsetID, expr domain.Expr) error {
	if err := domain.ValidateExpr(expr); err != nil {
		return errors.Mark(errors.Wrapf(err, "subset %s", id), domain.ErrSchemaConflict)
	}
	return nil
}

func (st *SubsetStore) define(id domain.SubsetID, label string, expr domain.Expr, style domain.Style) (domain.SubsetID, error) {
	if id == "" {
		id = domain.SubsetID(uuid.NewString())
	}
	if _, exists := st.subsets[id]; exists {
		return "", domain.DuplicateIDf("subset %s", id)
	}
	if err := validatePredicate(id, expr); err != nil {
		return "", err
	}
	if label == "" {
		label = string(id)
	}
	st.subsets[id] = &domain.Subset{ID: id, Label: label, Predicate: expr, Style: style}
	st.order = append(st.order, id)
	st.s.bus.publish(domain.Event{
		Kind:     domain.EventSubsetDefined,
		Subset:   id,
		Datasets: domain.Datasets(expr),
	})
	return id, nil
}

func (st *SubsetStore) update(id domain.SubsetID, expr domain.Expr) error {
	sub, ok := st.subsets[id]
	if !ok {
		return domain.NotFoundf("subset %s", id)
	}
	if err := validatePredicate(id, expr); err != nil {
		return err
	}
	sub.Predicate = expr
	st.invalidateSubset(id)
	st.s.bus.publish(domain.Event{
		Kind:     domain.EventSubsetUpdated,
		Subset:   id,
		Datasets: domain.Datasets(expr),
	})
	return nil
}

func (st *SubsetStore) combine(id domain.SubsetID, expr domain.Expr, mode domain.CombineMode) error {
	sub, ok := st.subsets[id]
	if !ok {
		return domain.NotFoundf("subset %s", id)
	}
	merged, err := domain.Combine(sub.Predicate, expr, mode)
	if err != nil {
		return errors.Mark(err, domain.ErrSchemaConflict)
	}
	return st.update(id, merged)
}

func (st *SubsetStore) updateStyle(id domain.SubsetID, style domain.Style) error {
	sub, ok := st.subsets[id]
	if !ok {
		return domain.NotFoundf("subset %s", id)
	}
	sub.Style = style
	st.s.bus.publish(domain.Event{Kind: domain.EventSubsetStyleUpdated, Subset: id})
	return nil
}

func (st *SubsetStore) remove(id domain.SubsetID) error {
	if _, ok := st.subsets[id]; !ok {
		return domain.NotFoundf("subset %s", id)
	}
	delete(st.subsets, id)
	for i, existing := range st.order {
		if existing == id {
			st.order = append(st.order[:i:i], st.order[i+1:]...)
			break
		}
	}
	st.invalidateSubset(id)
	st.s.bus.publish(domain.Event{Kind: domain.EventSubsetRemoved, Subset: id})
	return nil
}
