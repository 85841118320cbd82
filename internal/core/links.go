package core

import (
	"fmt"

	"skylink/pkg/domain"
)

// LinkGraph relates components across datasets. Nodes are components; each
// link is an edge usable in whichever directions its transform can carry.
type LinkGraph struct {
	s     *Session
	links map[domain.LinkID]*domain.Link
	order []domain.LinkID
	seq   uint64
}

// Resolution is the result of resolving a component through a dataset.
// Values live in the index space of the through dataset and in the value
// space of Ref.
type Resolution struct {
	Ref    domain.ComponentRef
	Source domain.ComponentRef
	Values []float64
	// Path lists the traversed links from Ref to Source; empty when Ref is
	// read directly from the through dataset.
	Path []domain.LinkID
	// Datasets lists every dataset visited along the path.
	Datasets []domain.DatasetID
}

func newLinkGraph(s *Session) *LinkGraph {
	return &LinkGraph{s: s, links: make(map[domain.LinkID]*domain.Link)}
}

// Get returns the link by id.
func (g *LinkGraph) Get(id domain.LinkID) (domain.Link, error) {
	l, ok := g.links[id]
	if !ok {
		return domain.Link{}, domain.NotFoundf("link %s", id)
	}
	return *l, nil
}

// Links returns all links in registration order.
func (g *LinkGraph) Links() []domain.Link {
	out := make([]domain.Link, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.links[id])
	}
	return out
}

// LinksFor returns the links touching a dataset in registration order.
func (g *LinkGraph) LinksFor(id domain.DatasetID) []domain.Link {
	var out []domain.Link
	for _, lid := range g.order {
		if l := g.links[lid]; l.Touches(id) {
			out = append(out, *l)
		}
	}
	return out
}

func (g *LinkGraph) add(from, to domain.ComponentRef, spec domain.TransformSpec, replace bool) (domain.LinkID, error) {
	if !from.Qualified() || !to.Qualified() {
		return "", domain.LinkConflictf("link endpoints must name a dataset: %s, %s", from, to)
	}
	if from.Dataset == to.Dataset {
		return "", domain.LinkConflictf("link %s -> %s joins a dataset to itself", from, to)
	}
	if _, err := g.s.registry.component(from); err != nil {
		return "", err
	}
	if _, err := g.s.registry.component(to); err != nil {
		return "", err
	}
	if spec.Kind == "" {
		spec.Kind = domain.TransformIdentity
	}
	if err := g.s.catalog.validate(spec); err != nil {
		return "", err
	}

	if existing := g.between(from, to); existing != nil {
		if compatible(existing, from, to, spec) {
			return existing.ID, nil
		}
		if !replace {
			return "", domain.LinkConflictf("link %s already relates %s and %s with %s; %s requires replace",
				existing.ID, existing.From, existing.To, existing.Transform, spec)
		}
		existing.From, existing.To, existing.Transform = from, to, spec
		g.s.subsets.invalidateAll()
		g.s.bus.publish(domain.Event{
			Kind:     domain.EventLinkUpdated,
			Link:     existing.ID,
			Datasets: existing.Datasets(),
		})
		return existing.ID, nil
	}

	g.seq++
	l := &domain.Link{
		ID:        domain.LinkID(fmt.Sprintf("link-%d", g.seq)),
		From:      from,
		To:        to,
		Transform: spec,
		Seq:       g.seq,
	}
	g.insert(l)
	g.s.subsets.invalidateAll()
	g.s.bus.publish(domain.Event{
		Kind:     domain.EventLinkAdded,
		Link:     l.ID,
		Datasets: l.Datasets(),
	})
	return l.ID, nil
}

// insert stores a link keeping registration order; restored links carry
// their own sequence numbers.
func (g *LinkGraph) insert(l *domain.Link) {
	g.links[l.ID] = l
	idx := len(g.order)
	for idx > 0 && g.links[g.order[idx-1]].Seq > l.Seq {
		idx--
	}
	g.order = append(g.order, "")
	copy(g.order[idx+1:], g.order[idx:])
	g.order[idx] = l.ID
	if l.Seq > g.seq {
		g.seq = l.Seq
	}
}

func (g *LinkGraph) between(a, b domain.ComponentRef) *domain.Link {
	for _, id := range g.order {
		l := g.links[id]
		if (l.From == a && l.To == b) || (l.From == b && l.To == a) {
			return l
		}
	}
	return nil
}

// compatible reports whether a requested link restates an existing one.
func compatible(existing *domain.Link, from, to domain.ComponentRef, spec domain.TransformSpec) bool {
	if existing.From == from && existing.To == to {
		return existing.Transform.Equal(spec)
	}
	if spec.OneWay || existing.Transform.OneWay {
		return false
	}
	inv, ok := spec.Inverse()
	return ok && inv.Equal(existing.Transform)
}

func (g *LinkGraph) remove(id domain.LinkID) error {
	l, ok := g.links[id]
	if !ok {
		return domain.NotFoundf("link %s", id)
	}
	g.drop(id)
	g.s.subsets.invalidateAll()
	g.s.bus.publish(domain.Event{
		Kind:     domain.EventLinkRemoved,
		Link:     id,
		Datasets: l.Datasets(),
	})
	return nil
}

func (g *LinkGraph) drop(id domain.LinkID) {
	delete(g.links, id)
	for i, existing := range g.order {
		if existing == id {
			g.order = append(g.order[:i:i], g.order[i+1:]...)
			return
		}
	}
}

// removeLinksFor drops every link touching the dataset without publishing;
// the registry reports them on its DatasetRemoved event.
func (g *LinkGraph) removeLinksFor(id domain.DatasetID) []domain.Link {
	removed := g.LinksFor(id)
	for _, l := range removed {
		g.drop(l.ID)
	}
	if len(removed) > 0 {
		g.s.subsets.invalidateAll()
	}
	return removed
}

type resolveStep struct {
	parent  domain.ComponentRef
	link    domain.LinkID
	carrier TransformFunc
	depth   int
}

// Resolve finds the component of through that ref is linked to and carries
// its values back into ref's value space. The search is breadth first, so
// shorter paths win; among equal lengths the earliest registered links win.
func (g *LinkGraph) Resolve(ref domain.ComponentRef, through domain.DatasetID) (Resolution, error) {
	if !g.s.registry.Has(through) {
		return Resolution{}, domain.NotFoundf("dataset %s", through)
	}
	if !ref.Qualified() || ref.Dataset == through {
		own := domain.Ref(through, ref.Component)
		c, err := g.s.registry.component(own)
		if err != nil {
			return Resolution{}, domain.Unreachablef("component %s is not defined on %s", ref.Component, through)
		}
		return Resolution{
			Ref:      ref,
			Source:   own,
			Values:   append([]float64(nil), c.Values...),
			Datasets: []domain.DatasetID{through},
		}, nil
	}
	if _, err := g.s.registry.component(ref); err != nil {
		return Resolution{}, domain.Unreachablef("component %s: %v", ref, err)
	}

	steps := map[domain.ComponentRef]resolveStep{ref: {}}
	queue := []domain.ComponentRef{ref}
	var goal *domain.ComponentRef
	for len(queue) > 0 && goal == nil {
		cur := queue[0]
		queue = queue[1:]
		for _, id := range g.order {
			l := g.links[id]
			var next domain.ComponentRef
			var carrier TransformFunc
			var ok bool
			switch cur {
			case l.From:
				// values flow from To back into From's space
				next = l.To
				carrier, ok = g.s.catalog.carrier(l.Transform, false)
			case l.To:
				next = l.From
				carrier, ok = g.s.catalog.carrier(l.Transform, true)
			default:
				continue
			}
			if !ok {
				continue
			}
			if _, seen := steps[next]; seen {
				continue
			}
			steps[next] = resolveStep{parent: cur, link: l.ID, carrier: carrier, depth: steps[cur].depth + 1}
			if next.Dataset == through {
				found := next
				goal = &found
				break
			}
			queue = append(queue, next)
		}
	}
	if goal == nil {
		return Resolution{}, domain.Unreachablef("no link path from %s to %s", ref, through)
	}

	src, err := g.s.registry.component(*goal)
	if err != nil {
		return Resolution{}, domain.Unreachablef("component %s: %v", *goal, err)
	}
	values := append([]float64(nil), src.Values...)
	depth := steps[*goal].depth
	path := make([]domain.LinkID, depth)
	datasets := []domain.DatasetID{through}
	for node := *goal; node != ref; {
		st := steps[node]
		values, err = st.carrier(values)
		if err != nil {
			return Resolution{}, domain.Unreachablef("carry %s across %s: %v", node, st.link, err)
		}
		depth--
		path[depth] = st.link
		if st.parent.Dataset != datasets[len(datasets)-1] {
			datasets = append(datasets, st.parent.Dataset)
		}
		node = st.parent
	}
	return Resolution{
		Ref:      ref,
		Source:   *goal,
		Values:   values,
		Path:     path,
		Datasets: datasets,
	}, nil
}
