// Package autolink aligns every image dataset to a reference image. The
// first image registered becomes the reference; later images are linked to
// it by pixel position or through their linear world solutions.
package autolink

import (
	"context"
	"sync"

	"skylink/pkg/domain"
	"skylink/pkg/errors"
	"skylink/pkg/pluginapi"
)

// Mode selects how images are aligned to the reference.
type Mode string

const (
	ModePixels Mode = "pixels"
	ModeWCS    Mode = "wcs"
)

// Method reports how one dataset ended up aligned.
type Method string

const (
	MethodSelf   Method = "self"
	MethodPixels Method = "pixels"
	MethodWCS    Method = "wcs"
)

// ErrSpatialSubsets is returned when the mode cannot change because region
// subsets would silently move.
var ErrSpatialSubsets = errors.New("alignment can only be changed after existing spatial subsets are deleted")

const pluginName = "autolink"

// Plugin links image datasets to a reference image.
type Plugin struct {
	mu        sync.Mutex
	host      pluginapi.Host
	mode      Mode
	reference domain.DatasetID
	images    []domain.DatasetID
	methods   map[domain.DatasetID]Method
}

// New returns a plugin aligning in mode.
func New(mode Mode) (*Plugin, error) {
	if err := validMode(mode); err != nil {
		return nil, err
	}
	return &Plugin{mode: mode, methods: make(map[domain.DatasetID]Method)}, nil
}

func validMode(mode Mode) error {
	switch mode {
	case ModePixels, ModeWCS:
		return nil
	default:
		return errors.WithHint(errors.Newf("unknown alignment mode %q", mode), "use pixels or wcs")
	}
}

func (p *Plugin) Name() string    { return pluginName }
func (p *Plugin) Version() string { return "0.1.0" }

// Register subscribes to dataset lifecycle events.
func (p *Plugin) Register(reg pluginapi.Registry) error {
	p.host = reg.Host()
	reg.Subscribe(pluginapi.Interest{Kinds: []domain.EventKind{domain.EventDatasetAdded}}, p.onAdded)
	reg.Subscribe(pluginapi.Interest{Kinds: []domain.EventKind{domain.EventDatasetRemoved}}, p.onRemoved)
	return nil
}

// Mode returns the current alignment mode.
func (p *Plugin) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Reference returns the reference image, if any.
func (p *Plugin) Reference() (domain.DatasetID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reference, p.reference != ""
}

// AlignmentMethod reports how ds is aligned to the reference.
func (p *Plugin) AlignmentMethod(ds domain.DatasetID) (Method, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reference == "" {
		return "", domain.NotFoundf("no reference image")
	}
	m, ok := p.methods[ds]
	if !ok {
		return "", domain.NotFoundf("dataset %s is not aligned", ds)
	}
	return m, nil
}

// SetMode switches the alignment mode and relinks every image. It is refused
// while spatial subsets exist.
func (p *Plugin) SetMode(mode Mode) error {
	if err := validMode(mode); err != nil {
		return err
	}
	p.mu.Lock()
	current := p.mode
	p.mu.Unlock()
	if mode == current {
		return nil
	}
	if p.host == nil {
		return errors.New("autolink plugin is not installed")
	}
	for _, sub := range p.host.Subsets() {
		if domain.IsSpatial(sub.Predicate) {
			return errors.Wrapf(ErrSpatialSubsets, "subset %s", sub.ID)
		}
	}
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	p.host.Enqueue("relink", p.relinkAll)
	return nil
}

// image reports whether ds is 2-d with pixel coordinate components.
func image(ds domain.Dataset) bool {
	if len(ds.Coords.Shape) != 2 {
		return false
	}
	for _, name := range pixelAxes(ds) {
		if _, ok := ds.Component(name); !ok {
			return false
		}
	}
	return true
}

// pixelAxes names the components holding pixel coordinates, taken from the
// declared axes when there are exactly two.
func pixelAxes(ds domain.Dataset) [2]string {
	if len(ds.Coords.Axes) == 2 && ds.Coords.Axes[0].Name != "" && ds.Coords.Axes[1].Name != "" {
		return [2]string{ds.Coords.Axes[0].Name, ds.Coords.Axes[1].Name}
	}
	return [2]string{"x", "y"}
}

func (p *Plugin) onAdded(_ context.Context, ev domain.Event) error {
	ds, err := p.host.Dataset(ev.Dataset)
	if err != nil {
		return err
	}
	if !image(ds) {
		return nil
	}
	p.mu.Lock()
	p.images = append(p.images, ds.ID)
	if p.reference == "" {
		p.reference = ds.ID
		p.methods[ds.ID] = MethodSelf
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	id := ds.ID
	p.host.Enqueue("link "+string(id), func(ctx context.Context, m pluginapi.Mutator) error {
		return p.link(ctx, m, id)
	})
	return nil
}

func (p *Plugin) onRemoved(_ context.Context, ev domain.Event) error {
	if p.dropImage(ev.Dataset) {
		p.host.Enqueue("relink", p.relinkAll)
	}
	return nil
}

// dropImage forgets id and reports whether a new reference was promoted.
func (p *Plugin) dropImage(id domain.DatasetID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.images {
		if existing == id {
			p.images = append(p.images[:i:i], p.images[i+1:]...)
			break
		}
	}
	delete(p.methods, id)
	if id != p.reference {
		return false
	}
	// the removal cascaded every link to the old reference
	p.reference = ""
	clear(p.methods)
	if len(p.images) == 0 {
		return false
	}
	p.reference = p.images[0]
	p.methods[p.reference] = MethodSelf
	return true
}

func (p *Plugin) relinkAll(ctx context.Context, m pluginapi.Mutator) error {
	p.mu.Lock()
	images := append([]domain.DatasetID(nil), p.images...)
	reference := p.reference
	p.mu.Unlock()
	var errs error
	for _, id := range images {
		if id == reference {
			continue
		}
		if err := p.link(ctx, m, id); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// link aligns both pixel axes of id to the reference, replacing whatever
// alignment links already exist.
func (p *Plugin) link(ctx context.Context, m pluginapi.Mutator, id domain.DatasetID) error {
	p.mu.Lock()
	reference, mode := p.reference, p.mode
	p.mu.Unlock()
	if reference == "" || reference == id {
		return nil
	}
	ds, err := p.host.Dataset(id)
	if err != nil {
		return err
	}
	ref, err := p.host.Dataset(reference)
	if err != nil {
		return err
	}
	method := MethodPixels
	specs := [2]domain.TransformSpec{domain.Identity(), domain.Identity()}
	if mode == ModeWCS {
		if a, b, ok := worldAffine(ds, ref); ok {
			method = MethodWCS
			specs = [2]domain.TransformSpec{domain.Affine(a[0], b[0]), domain.Affine(a[1], b[1])}
		}
	}
	from, to := pixelAxes(ds), pixelAxes(ref)
	for i := range specs {
		if _, err := m.AddLink(ctx, domain.Ref(id, from[i]), domain.Ref(reference, to[i]), specs[i], true); err != nil {
			return errors.Wrapf(err, "align %s to %s", id, reference)
		}
	}
	p.mu.Lock()
	p.methods[id] = method
	p.mu.Unlock()
	return nil
}

// worldAffine composes ds's pixel-to-world solution with the reference's
// world-to-pixel solution, per axis: ref = a*pix + b.
func worldAffine(ds, ref domain.Dataset) (a, b [2]float64, ok bool) {
	if len(ds.Coords.Axes) != 2 || len(ref.Coords.Axes) != 2 || !ds.Coords.HasWorld() || !ref.Coords.HasWorld() {
		return a, b, false
	}
	for i := 0; i < 2; i++ {
		src, dst := ds.Coords.Axes[i], ref.Coords.Axes[i]
		if src.Unit != dst.Unit {
			return a, b, false
		}
		a[i] = src.CDelt / dst.CDelt
		b[i] = dst.WorldToPixel(src.PixelToWorld(0))
	}
	return a, b, true
}
