package core

import (
	"context"
	"time"

	"skylink/internal/logger"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
	"skylink/pkg/pluginapi"
)

// Session owns the shared state of one analysis session: datasets, links,
// subsets, the event bus that orders every change, and the viewers that
// render it. All methods must be called from one goroutine; off-thread work
// goes through Submit and lands via Pump.
type Session struct {
	opts sessionOptions
	log  Logger

	registry    *Registry
	links       *LinkGraph
	subsets     *SubsetStore
	catalog     *TransformCatalog
	bus         *Bus
	diagnostics *Diagnostics
	runner      *Runner

	viewers     map[domain.ViewerID]*Viewer
	viewerOrder []domain.ViewerID
	plugins     map[string]PluginMetadata
	pluginOrder []string

	depth      int
	batchDepth int
}

var _ pluginapi.Mutator = (*Session)(nil)

// NewSession constructs an empty session.
func NewSession(opts ...SessionOption) *Session {
	o := defaultSessionOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	s := &Session{
		opts:    o,
		log:     o.logger,
		catalog: newTransformCatalog(),
		viewers: make(map[domain.ViewerID]*Viewer),
		plugins: make(map[string]PluginMetadata),
	}
	s.registry = newRegistry(s)
	s.links = newLinkGraph(s)
	s.subsets = newSubsetStore(s)
	s.bus = newBus(s)
	s.diagnostics = newDiagnostics(o.diagnosticsCapacity, o.clock, o.diagnosticSink)
	s.runner = newRunner(o.runnerConcurrency)
	return s
}

// Name returns the session label.
func (s *Session) Name() string { return s.opts.name }

// Registry returns the data registry.
func (s *Session) Registry() *Registry { return s.registry }

// LinkGraph returns the link graph.
func (s *Session) LinkGraph() *LinkGraph { return s.links }

// SubsetStore returns the subset store.
func (s *Session) SubsetStore() *SubsetStore { return s.subsets }

// Transforms returns the external transform catalog.
func (s *Session) Transforms() *TransformCatalog { return s.catalog }

// Bus returns the event bus.
func (s *Session) Bus() *Bus { return s.bus }

// Diagnostics returns the diagnostics channel.
func (s *Session) Diagnostics() *Diagnostics { return s.diagnostics }

// Runner returns the off-thread compute runner.
func (s *Session) Runner() *Runner { return s.runner }

// mutate runs fn as one outermost mutation: events it publishes and the
// deferred mutations they queue are drained before it returns, then stale
// layers are reconciled. Nested calls run inline inside the outer mutation.
func (s *Session) mutate(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.bus.Delivering() {
		return errors.Wrapf(domain.ErrReentrantMutation, "%s", op)
	}
	if s.depth > 0 {
		return fn(ctx)
	}
	ctx, span := s.opts.tracer.Start(ctx, op)
	start := time.Now()
	err := func() error {
		s.depth++
		defer func() { s.depth-- }()
		err := fn(ctx)
		s.bus.drain(ctx)
		return err
	}()
	if err == nil && s.batchDepth == 0 && s.opts.autoReconcile {
		s.reconcile(ctx)
	}
	s.opts.metrics.Observe(ctx, op, err == nil, time.Since(start))
	span.End(err)
	if err != nil {
		s.log.Debug("mutation rejected",
			logger.FieldSession, s.opts.name,
			logger.FieldOperation, op,
			logger.FieldError, err.Error())
	}
	return err
}

// Batch runs fn with reconciliation deferred until it returns, so any number
// of mutations inside collapse to one pass per affected layer.
func (s *Session) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.bus.Delivering() {
		return errors.Wrap(domain.ErrReentrantMutation, "batch")
	}
	s.batchDepth++
	err := func() error {
		defer func() { s.batchDepth-- }()
		return fn(ctx)
	}()
	if s.batchDepth == 0 && s.opts.autoReconcile {
		s.reconcile(ctx)
	}
	return err
}

// Subscribe registers an application-level event handler.
func (s *Session) Subscribe(name string, interest Interest, handler Handler) func() {
	return s.bus.Subscribe(name, interest, handler)
}

// Enqueue runs fn as a mutation after the current event delivery, or
// immediately when nothing is being delivered. Failures are reported to
// diagnostics.
func (s *Session) Enqueue(ctx context.Context, name string, fn pluginapi.MutationFunc) {
	run := func(ctx context.Context) error { return fn(ctx, s) }
	if s.bus.Delivering() || s.depth > 0 {
		s.bus.enqueue(name, run)
		return
	}
	if err := s.mutate(ctx, name, run); err != nil {
		s.diagnostics.report(Diagnostic{Severity: SeverityError, Source: name, Operation: "enqueue", Err: err})
	}
}

// Submit runs compute on the runner. Its mutation is applied by Pump.
func (s *Session) Submit(ctx context.Context, name string, compute pluginapi.ComputeFunc) {
	s.runner.Submit(ctx, name, func(ctx context.Context) (ApplyFunc, error) {
		mf, err := compute(ctx)
		if err != nil || mf == nil {
			return nil, err
		}
		return func(ctx context.Context) error { return mf(ctx, s) }, nil
	})
}

// Pump applies completed off-thread computations in completion order and
// returns how many were applied.
func (s *Session) Pump(ctx context.Context) (int, error) {
	if s.bus.Delivering() {
		return 0, errors.Wrap(domain.ErrReentrantMutation, "pump")
	}
	applied := 0
	for _, c := range s.runner.drain() {
		if c.Err != nil {
			s.diagnostics.report(Diagnostic{Severity: SeverityError, Source: c.Name, Operation: "compute", Err: c.Err})
			s.log.Warn("computation failed", logger.FieldOperation, c.Name, logger.FieldError, c.Err.Error())
			continue
		}
		if c.Apply == nil {
			continue
		}
		if err := s.mutate(ctx, "apply", c.Apply); err != nil {
			s.diagnostics.report(Diagnostic{Severity: SeverityError, Source: c.Name, Operation: "apply", Err: err})
			s.log.Warn("applying computation failed", logger.FieldOperation, c.Name, logger.FieldError, err.Error())
			continue
		}
		applied++
	}
	return applied, nil
}

// Await waits for all off-thread work, including work submitted while
// applying completions, and pumps its results.
func (s *Session) Await(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.runner.Wait()
		if _, err := s.Pump(ctx); err != nil {
			return err
		}
		if s.runner.Pending() == 0 && s.runner.queued() == 0 {
			return nil
		}
	}
}

// Close waits for in-flight computations and discards their results.
func (s *Session) Close() error {
	s.runner.Wait()
	s.runner.drain()
	return nil
}

// Reconcile synchronously recomputes every stale layer and returns the
// number of passes rendered. Layers whose inputs no longer resolve move to
// LayerError without a pass.
func (s *Session) Reconcile(ctx context.Context) (int, error) {
	if s.bus.Delivering() {
		return 0, errors.Wrap(domain.ErrReentrantMutation, "reconcile")
	}
	return s.reconcile(ctx), nil
}

func (s *Session) reconcile(ctx context.Context) int {
	ctx, span := s.opts.tracer.Start(ctx, "reconcile")
	start := time.Now()
	passes := 0
	for _, id := range s.viewerOrder {
		v := s.viewers[id]
		for _, key := range v.orderedKeys() {
			t := v.begin(v.layers[key])
			if t == nil {
				continue
			}
			passes++
			data, err := t.compute(ctx)
			v.finish(t, data, err)
		}
	}
	s.opts.metrics.Observe(ctx, "reconcile", true, time.Since(start))
	span.End(nil)
	if passes > 0 {
		s.log.Debug("reconciled", logger.FieldSession, s.opts.name, logger.FieldCount, passes)
	}
	return passes
}

// ReconcileAsync begins every stale layer on the session thread and renders
// them on the runner. Results land on Pump; a pass whose layer was
// invalidated in the meantime is discarded.
func (s *Session) ReconcileAsync(ctx context.Context) (int, error) {
	if s.bus.Delivering() {
		return 0, errors.Wrap(domain.ErrReentrantMutation, "reconcile")
	}
	started := 0
	for _, id := range s.viewerOrder {
		v := s.viewers[id]
		for _, key := range v.orderedKeys() {
			t := v.begin(v.layers[key])
			if t == nil {
				continue
			}
			started++
			s.runner.Submit(ctx, "render:"+string(v.spec.ID)+"/"+key.String(), func(ctx context.Context) (ApplyFunc, error) {
				data, err := t.compute(ctx)
				return func(context.Context) error {
					if !t.viewer.finish(t, data, err) {
						s.log.Debug("discarded superseded pass",
							logger.FieldViewer, string(t.viewer.spec.ID),
							logger.FieldLayer, t.key.String(),
							logger.FieldGeneration, t.generation)
					}
					return nil
				}, nil
			})
		}
	}
	return started, nil
}

// Dataset returns a copy of a registered dataset.
func (s *Session) Dataset(id domain.DatasetID) (domain.Dataset, error) { return s.registry.Get(id) }

// Datasets returns copies of all datasets in registration order.
func (s *Session) Datasets() []domain.Dataset { return s.registry.List() }

// Links returns all links in registration order.
func (s *Session) Links() []domain.Link { return s.links.Links() }

// Subset returns a subset definition.
func (s *Session) Subset(id domain.SubsetID) (domain.Subset, error) { return s.subsets.Get(id) }

// Subsets returns all subsets in definition order.
func (s *Session) Subsets() []domain.Subset { return s.subsets.List() }

// Evaluate returns the subset's mask over a dataset.
func (s *Session) Evaluate(subset domain.SubsetID, dataset domain.DatasetID) (domain.Mask, error) {
	return s.subsets.Evaluate(subset, dataset)
}

// Resolve resolves a component through a dataset via the link graph.
func (s *Session) Resolve(ref domain.ComponentRef, through domain.DatasetID) (Resolution, error) {
	return s.links.Resolve(ref, through)
}

// RegisterDataset adds a dataset, generating an id when empty.
func (s *Session) RegisterDataset(ctx context.Context, ds domain.Dataset) (domain.DatasetID, error) {
	var id domain.DatasetID
	err := s.mutate(ctx, "dataset.register", func(context.Context) error {
		var err error
		id, err = s.registry.register(ds)
		return err
	})
	return id, err
}

// RemoveDataset removes a dataset along with every link touching it.
func (s *Session) RemoveDataset(ctx context.Context, id domain.DatasetID) error {
	return s.mutate(ctx, "dataset.remove", func(context.Context) error {
		return s.registry.remove(id)
	})
}

// AddComponent adds or replaces a component of a dataset.
func (s *Session) AddComponent(ctx context.Context, id domain.DatasetID, c domain.Component) error {
	return s.mutate(ctx, "component.add", func(context.Context) error {
		return s.registry.addComponent(id, c)
	})
}

// RemoveComponent removes a component not referenced by any link or subset.
func (s *Session) RemoveComponent(ctx context.Context, ref domain.ComponentRef) error {
	return s.mutate(ctx, "component.remove", func(context.Context) error {
		return s.registry.removeComponent(ref)
	})
}

// AddLink relates two components. An existing link between the same pair
// with a different transform is only overwritten when replace is set.
func (s *Session) AddLink(ctx context.Context, from, to domain.ComponentRef, spec domain.TransformSpec, replace bool) (domain.LinkID, error) {
	var id domain.LinkID
	err := s.mutate(ctx, "link.add", func(context.Context) error {
		var err error
		id, err = s.links.add(from, to, spec, replace)
		return err
	})
	return id, err
}

// RemoveLink removes a link.
func (s *Session) RemoveLink(ctx context.Context, id domain.LinkID) error {
	return s.mutate(ctx, "link.remove", func(context.Context) error {
		return s.links.remove(id)
	})
}

// RegisterTransform contributes an external transform usable by links.
func (s *Session) RegisterTransform(name string, forward, inverse TransformFunc) error {
	if s.bus.Delivering() {
		return errors.Wrapf(domain.ErrReentrantMutation, "register transform %s", name)
	}
	return s.catalog.Register(name, forward, inverse)
}

// DefineSubset adds a subset, generating an id when empty.
func (s *Session) DefineSubset(ctx context.Context, id domain.SubsetID, expr domain.Expr, style domain.Style) (domain.SubsetID, error) {
	return s.DefineLabeledSubset(ctx, id, "", expr, style)
}

// DefineLabeledSubset adds a subset with a display label.
func (s *Session) DefineLabeledSubset(ctx context.Context, id domain.SubsetID, label string, expr domain.Expr, style domain.Style) (domain.SubsetID, error) {
	var out domain.SubsetID
	err := s.mutate(ctx, "subset.define", func(context.Context) error {
		var err error
		out, err = s.subsets.define(id, label, expr, style)
		return err
	})
	return out, err
}

// UpdateSubset replaces a subset's predicate.
func (s *Session) UpdateSubset(ctx context.Context, id domain.SubsetID, expr domain.Expr) error {
	return s.mutate(ctx, "subset.update", func(context.Context) error {
		return s.subsets.update(id, expr)
	})
}

// CombineSubset merges expr into a subset's predicate using mode.
func (s *Session) CombineSubset(ctx context.Context, id domain.SubsetID, expr domain.Expr, mode domain.CombineMode) error {
	return s.mutate(ctx, "subset.combine", func(context.Context) error {
		return s.subsets.combine(id, expr, mode)
	})
}

// UpdateSubsetStyle changes how a subset is drawn.
func (s *Session) UpdateSubsetStyle(ctx context.Context, id domain.SubsetID, style domain.Style) error {
	return s.mutate(ctx, "subset.style", func(context.Context) error {
		return s.subsets.updateStyle(id, style)
	})
}

// RemoveSubset deletes a subset; viewers drop its layers.
func (s *Session) RemoveSubset(ctx context.Context, id domain.SubsetID) error {
	return s.mutate(ctx, "subset.remove", func(context.Context) error {
		return s.subsets.remove(id)
	})
}

// AddViewer creates a viewer and subscribes it to the bus.
func (s *Session) AddViewer(ctx context.Context, spec domain.ViewerSpec) (*Viewer, error) {
	var v *Viewer
	err := s.mutate(ctx, "viewer.add", func(context.Context) error {
		var err error
		v, err = s.addViewer(spec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Session) addViewer(spec domain.ViewerSpec) (*Viewer, error) {
	if _, exists := s.viewers[spec.ID]; exists && spec.ID != "" {
		return nil, domain.DuplicateIDf("viewer %s", spec.ID)
	}
	v, err := newViewer(s, spec)
	if err != nil {
		return nil, err
	}
	v.unsubscribe = s.bus.subscribe("viewer:"+string(v.spec.ID), Interest{}, v.handle, v)
	s.viewers[v.spec.ID] = v
	s.viewerOrder = append(s.viewerOrder, v.spec.ID)
	return v, nil
}

// RemoveViewer closes a viewer and releases its layers.
func (s *Session) RemoveViewer(ctx context.Context, id domain.ViewerID) error {
	return s.mutate(ctx, "viewer.remove", func(context.Context) error {
		v, ok := s.viewers[id]
		if !ok {
			return domain.NotFoundf("viewer %s", id)
		}
		v.unsubscribe()
		clear(v.layers)
		delete(s.viewers, id)
		for i, existing := range s.viewerOrder {
			if existing == id {
				s.viewerOrder = append(s.viewerOrder[:i:i], s.viewerOrder[i+1:]...)
				break
			}
		}
		return nil
	})
}

// Viewer returns a viewer by id.
func (s *Session) Viewer(id domain.ViewerID) (*Viewer, error) {
	v, ok := s.viewers[id]
	if !ok {
		return nil, domain.NotFoundf("viewer %s", id)
	}
	return v, nil
}

// Viewers returns viewers in creation order.
func (s *Session) Viewers() []*Viewer {
	out := make([]*Viewer, 0, len(s.viewerOrder))
	for _, id := range s.viewerOrder {
		out = append(out, s.viewers[id])
	}
	return out
}
