// Package smoothing derives boxcar-smoothed copies of one-dimensional
// datasets. Smoothing runs on the session's worker pool and the result is
// registered as a new dataset when the session pumps completions.
package smoothing

import (
	"context"
	"strconv"

	"skylink/pkg/domain"
	"skylink/pkg/errors"
	"skylink/pkg/pluginapi"
)

const (
	pluginName = "smoothing"
	// MetaSource names the dataset a smoothed copy was derived from.
	MetaSource = "smoothing.source"
	// MetaWidth records the boxcar width.
	MetaWidth = "smoothing.width"
)

// Plugin smooths the configured component of every 1-d dataset.
type Plugin struct {
	host      pluginapi.Host
	width     int
	component string
	suffix    string
}

// Option configures the plugin.
type Option func(*Plugin)

// WithComponent selects the component to smooth; defaults to flux.
func WithComponent(name string) Option { return func(p *Plugin) { p.component = name } }

// WithSuffix sets the id suffix of derived datasets; defaults to _smooth.
func WithSuffix(suffix string) Option { return func(p *Plugin) { p.suffix = suffix } }

// New returns a plugin using an odd boxcar width of at least 1.
func New(width int, opts ...Option) (*Plugin, error) {
	if width < 1 || width%2 == 0 {
		return nil, errors.Newf("boxcar width must be odd and positive, got %d", width)
	}
	p := &Plugin{width: width, component: "flux", suffix: "_smooth"}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Plugin) Name() string    { return pluginName }
func (p *Plugin) Version() string { return "0.1.0" }

func (p *Plugin) Register(reg pluginapi.Registry) error {
	p.host = reg.Host()
	reg.Subscribe(pluginapi.Interest{Kinds: []domain.EventKind{domain.EventDatasetAdded}}, p.onAdded)
	return nil
}

func (p *Plugin) onAdded(_ context.Context, ev domain.Event) error {
	ds, err := p.host.Dataset(ev.Dataset)
	if err != nil {
		return err
	}
	if len(ds.Coords.Shape) > 1 || ds.Meta[MetaSource] != "" {
		return nil
	}
	if _, ok := ds.Component(p.component); !ok {
		return nil
	}
	p.host.Submit("smooth "+string(ds.ID), func(ctx context.Context) (pluginapi.MutationFunc, error) {
		derived, err := p.derive(ctx, ds)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, m pluginapi.Mutator) error {
			_, err := m.RegisterDataset(ctx, derived)
			return err
		}, nil
	})
	return nil
}

// derive builds the smoothed dataset from a copy of the source; it must not
// touch the session.
func (p *Plugin) derive(ctx context.Context, src domain.Dataset) (domain.Dataset, error) {
	out := domain.Dataset{
		ID:     src.ID + domain.DatasetID(p.suffix),
		Label:  src.Label,
		Coords: domain.CoordinateDescriptor{Frame: src.Coords.Frame, Shape: append([]int(nil), src.Coords.Shape...), Axes: append([]domain.Axis(nil), src.Coords.Axes...)},
		Meta:   map[string]string{MetaSource: string(src.ID), MetaWidth: strconv.Itoa(p.width)},
	}
	for _, c := range src.Components {
		if err := ctx.Err(); err != nil {
			return domain.Dataset{}, err
		}
		switch {
		case c.Name == p.component:
			c = c.Clone()
			c.Values = Boxcar(c.Values, p.width)
		case c.Role == domain.RoleCoordinate:
			c = c.Clone()
		default:
			continue
		}
		out.Components = append(out.Components, c)
	}
	return out, nil
}

// Boxcar returns the centred moving average of values. Windows are
// truncated at the edges.
func Boxcar(values []float64, width int) []float64 {
	half := width / 2
	out := make([]float64, len(values))
	for i := range values {
		lo, hi := max(0, i-half), min(len(values), i+half+1)
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}
