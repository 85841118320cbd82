package core

import (
	"context"

	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

// Snapshot captures shared state and viewer configuration. Layers and
// evaluation caches are derived and not included.
func (s *Session) Snapshot() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		Name:     s.opts.name,
		SavedAt:  s.opts.clock.Now(),
		Datasets: s.registry.List(),
		Links:    s.links.Links(),
		Subsets:  s.subsets.List(),
		Viewers:  make([]domain.ViewerSpec, 0, len(s.viewerOrder)),
	}
	for _, id := range s.viewerOrder {
		snap.Viewers = append(snap.Viewers, s.viewers[id].Spec())
	}
	return snap
}

// Restore rebuilds a snapshot into an empty session, keeping every id and
// the original link registration order. External transforms referenced by
// links must be registered beforehand. On failure the session is left empty
// and no event from the partial rebuild is delivered.
func (s *Session) Restore(ctx context.Context, snap domain.SessionSnapshot) error {
	if len(s.registry.order) > 0 || len(s.links.order) > 0 || len(s.subsets.order) > 0 || len(s.viewerOrder) > 0 {
		return domain.SchemaConflictf("restore %s: session %s is not empty", snap.Name, s.opts.name)
	}
	err := s.mutate(ctx, "session.restore", func(context.Context) error {
		mark := s.bus.mark()
		if err := s.restore(snap); err != nil {
			s.reset()
			s.bus.rollback(mark)
			return err
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "restore %s", snap.Name)
	}
	return nil
}

func (s *Session) restore(snap domain.SessionSnapshot) error {
	for _, ds := range snap.Datasets {
		if _, err := s.registry.register(ds); err != nil {
			return err
		}
	}
	for _, l := range snap.Links {
		if err := s.links.restore(l); err != nil {
			return err
		}
	}
	for _, sub := range snap.Subsets {
		if _, err := s.subsets.define(sub.ID, sub.Label, sub.Predicate, sub.Style); err != nil {
			return err
		}
	}
	for _, spec := range snap.Viewers {
		if _, err := s.addViewer(spec); err != nil {
			return err
		}
	}
	return nil
}

// restore re-inserts a persisted link with its id and sequence number.
func (g *LinkGraph) restore(l domain.Link) error {
	if l.ID == "" {
		return domain.LinkConflictf("link without id")
	}
	if _, exists := g.links[l.ID]; exists {
		return domain.DuplicateIDf("link %s", l.ID)
	}
	if l.From.Dataset == l.To.Dataset {
		return domain.LinkConflictf("link %s joins a dataset to itself", l.ID)
	}
	if _, err := g.s.registry.component(l.From); err != nil {
		return err
	}
	if _, err := g.s.registry.component(l.To); err != nil {
		return err
	}
	if err := g.s.catalog.validate(l.Transform); err != nil {
		return err
	}
	if existing := g.between(l.From, l.To); existing != nil {
		return domain.LinkConflictf("link %s duplicates %s", l.ID, existing.ID)
	}
	stored := l
	g.insert(&stored)
	g.s.subsets.invalidateAll()
	g.s.bus.publish(domain.Event{Kind: domain.EventLinkAdded, Link: l.ID, Datasets: l.Datasets()})
	return nil
}

func (s *Session) reset() {
	for _, v := range s.viewers {
		v.unsubscribe()
	}
	clear(s.viewers)
	s.viewerOrder = nil
	s.registry.datasets = make(map[domain.DatasetID]*domain.Dataset)
	s.registry.order = nil
	s.links.links = make(map[domain.LinkID]*domain.Link)
	s.links.order = nil
	s.links.seq = 0
	s.subsets.subsets = make(map[domain.SubsetID]*domain.Subset)
	s.subsets.order = nil
	s.subsets.invalidateAll()
}
