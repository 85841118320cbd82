package core

import (
	"context"
	"sort"

	"skylink/internal/logger"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
	"skylink/pkg/pluginapi"
)

// Plugin is an analysis module that subscribes to change events and
// contributes transforms.
type Plugin = pluginapi.Plugin

// PluginRegistry accumulates plugin contributions during registration.
// Nothing reaches the session unless Register succeeds.
type PluginRegistry struct {
	host          pluginapi.Host
	subscriptions []pluginSubscription
	transforms    map[string]pluginTransform
}

type pluginSubscription struct {
	interest Interest
	handler  Handler
}

type pluginTransform struct {
	forward TransformFunc
	inverse TransformFunc
}

// NewPluginRegistry constructs a plugin registry bound to host.
func NewPluginRegistry(host pluginapi.Host) *PluginRegistry {
	return &PluginRegistry{host: host, transforms: make(map[string]pluginTransform)}
}

// Subscribe records an event subscription.
func (r *PluginRegistry) Subscribe(interest Interest, handler Handler) {
	if handler == nil {
		return
	}
	r.subscriptions = append(r.subscriptions, pluginSubscription{interest: interest, handler: handler})
}

// RegisterTransform records an external transform.
func (r *PluginRegistry) RegisterTransform(name string, forward, inverse TransformFunc) error {
	if name == "" {
		return errors.New("transform name required")
	}
	if forward == nil {
		return errors.Newf("transform %s: forward function required", name)
	}
	if _, exists := r.transforms[name]; exists {
		return domain.DuplicateIDf("transform %s registered twice", name)
	}
	r.transforms[name] = pluginTransform{forward: forward, inverse: inverse}
	return nil
}

// Host returns the session handle for the plugin.
func (r *PluginRegistry) Host() pluginapi.Host { return r.host }

// Transforms returns the names of contributed transforms, sorted.
func (r *PluginRegistry) Transforms() []string {
	out := make([]string, 0, len(r.transforms))
	for name := range r.transforms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PluginMetadata describes an installed plugin.
type PluginMetadata struct {
	Name          string
	Version       string
	Subscriptions int
	Transforms    []string
}

// InstallPlugin registers a plugin's subscriptions and transforms. A plugin
// name may only be installed once per session.
func (s *Session) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, errors.New("plugin cannot be nil")
	}
	if s.bus.Delivering() {
		return PluginMetadata{}, errors.Wrapf(domain.ErrReentrantMutation, "install plugin %s", plugin.Name())
	}
	name := plugin.Name()
	if _, ok := s.plugins[name]; ok {
		return PluginMetadata{}, domain.DuplicateIDf("plugin %s already registered", name)
	}

	registry := NewPluginRegistry(&pluginHost{s: s, plugin: name})
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, errors.Wrapf(err, "register plugin %s", name)
	}
	names := registry.Transforms()
	for _, tn := range names {
		if _, exists := s.catalog.entries[tn]; exists {
			return PluginMetadata{}, domain.DuplicateIDf("plugin %s: transform %s", name, tn)
		}
	}
	for _, tn := range names {
		t := registry.transforms[tn]
		if err := s.catalog.register(tn, name, t.forward, t.inverse); err != nil {
			return PluginMetadata{}, err
		}
	}
	for _, sub := range registry.subscriptions {
		s.bus.Subscribe(name, sub.interest, sub.handler)
	}

	meta := PluginMetadata{
		Name:          name,
		Version:       plugin.Version(),
		Subscriptions: len(registry.subscriptions),
		Transforms:    names,
	}
	s.plugins[name] = meta
	s.pluginOrder = append(s.pluginOrder, name)
	s.log.Info("plugin installed", logger.FieldPlugin, name, "version", meta.Version)
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins in
// installation order.
func (s *Session) RegisteredPlugins() []PluginMetadata {
	out := make([]PluginMetadata, 0, len(s.pluginOrder))
	for _, name := range s.pluginOrder {
		meta := s.plugins[name]
		meta.Transforms = append([]string(nil), meta.Transforms...)
		out = append(out, meta)
	}
	return out
}

// pluginHost is the Host handed to a plugin. Reads are served directly;
// writes are queued so they never run inside event delivery.
type pluginHost struct {
	s      *Session
	plugin string
}

func (h *pluginHost) Dataset(id domain.DatasetID) (domain.Dataset, error) {
	return h.s.Dataset(id)
}

func (h *pluginHost) Datasets() []domain.Dataset { return h.s.Datasets() }

func (h *pluginHost) Links() []domain.Link { return h.s.Links() }

func (h *pluginHost) Subset(id domain.SubsetID) (domain.Subset, error) {
	return h.s.Subset(id)
}

func (h *pluginHost) Subsets() []domain.Subset { return h.s.Subsets() }

func (h *pluginHost) Evaluate(subset domain.SubsetID, dataset domain.DatasetID) (domain.Mask, error) {
	return h.s.Evaluate(subset, dataset)
}

func (h *pluginHost) Resolve(ref domain.ComponentRef, through domain.DatasetID) ([]float64, error) {
	res, err := h.s.Resolve(ref, through)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

func (h *pluginHost) Enqueue(name string, fn pluginapi.MutationFunc) {
	h.s.Enqueue(context.Background(), h.plugin+":"+name, fn)
}

func (h *pluginHost) Submit(name string, compute pluginapi.ComputeFunc) {
	h.s.Submit(context.Background(), h.plugin+":"+name, compute)
}
