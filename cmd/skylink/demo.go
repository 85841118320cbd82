package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"skylink/internal/adapters/export"
	"skylink/internal/blob"
	"skylink/internal/core"
	"skylink/internal/logger"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
	"skylink/plugins/autolink"
	"skylink/plugins/smoothing"
)

type demoOptions struct {
	name    string
	save    bool
	export  bool
	formats []string
	align   string
}

func newDemoCmd(a *app) *cobra.Command {
	opts := demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Build the two-image plus spectrum scenario and print its layers",
		Long: `Build a session with two overlapping images and a spectrum, align the
images with the autolink plugin, derive a smoothed spectrum, define subsets,
and print every viewer layer after reconciliation.

Examples:
  skylink demo
  skylink demo --align pixels
  skylink demo --save --name night1
  skylink demo --export --format json --format csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDemo(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "demo", "session name used for snapshots and artifact keys")
	f.BoolVar(&opts.save, "save", false, "save the session snapshot to the configured store")
	f.BoolVar(&opts.export, "export", false, "export layer artifacts to the configured blob store")
	f.StringSliceVar(&opts.formats, "format", nil, "export formats (json, csv, png)")
	f.StringVar(&opts.align, "align", string(autolink.ModeWCS), "image alignment mode (pixels or wcs)")
	return cmd
}

func (a *app) runDemo(ctx context.Context, out io.Writer, opts demoOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sessionOpts, err := core.OptionsFromConfig(a.cfg, nil)
	if err != nil {
		return err
	}
	s := core.NewSession(append(sessionOpts, core.WithName(opts.name))...)
	defer func() { _ = s.Close() }()

	linker, err := autolink.New(autolink.Mode(opts.align))
	if err != nil {
		return err
	}
	smoother, err := smoothing.New(3)
	if err != nil {
		return err
	}
	for _, p := range []core.Plugin{linker, smoother} {
		if _, err := s.InstallPlugin(p); err != nil {
			return err
		}
	}
	if err := buildScenario(ctx, s); err != nil {
		return err
	}
	if _, err := s.Reconcile(ctx); err != nil {
		return err
	}

	for _, id := range []domain.DatasetID{"sky", "sky_shift"} {
		method, err := linker.AlignmentMethod(id)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "alignment %s: %s\n", id, method)
	}
	printLayers(out, s)
	for _, d := range s.Diagnostics().Entries() {
		_, _ = fmt.Fprintf(out, "diagnostic %s %s: %v\n", d.Source, d.Operation, d.Err)
	}

	if opts.save {
		store, err := core.OpenSnapshotStore(ctx, a.cfg.Storage)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		info, err := s.SaveSnapshot(ctx, store, "")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "saved %s (%d datasets, %d links, %d subsets, %d viewers)\n",
			info.Name, info.Datasets, info.Links, info.Subsets, info.Viewers)
	}
	if opts.export {
		return a.exportViewers(ctx, out, s, opts.formats)
	}
	return nil
}

// buildScenario registers two images one pixel apart on the sky, a spectrum,
// two subsets, and one viewer per kind of data.
func buildScenario(ctx context.Context, s *core.Session) error {
	image := func(id domain.DatasetID, ra float64) domain.Dataset {
		return domain.Dataset{
			ID:    id,
			Label: string(id),
			Coords: domain.CoordinateDescriptor{
				Frame: "icrs",
				Shape: []int{3, 3},
				Axes: []domain.Axis{
					{Name: "x", Unit: "deg", CRVal: ra, CDelt: 1},
					{Name: "y", Unit: "deg", CRVal: -20, CDelt: 1},
				},
			},
			Components: []domain.Component{
				{Name: "x", Role: domain.RoleCoordinate, Values: []float64{0, 1, 2, 0, 1, 2, 0, 1, 2}},
				{Name: "y", Role: domain.RoleCoordinate, Values: []float64{0, 0, 0, 1, 1, 1, 2, 2, 2}},
				{Name: "flux", Values: []float64{1, 4, 2, 7, 9, 3, 5, 8, 6}},
			},
		}
	}
	spec := domain.Dataset{
		ID:    "spec",
		Label: "spectrum",
		Components: []domain.Component{
			{Name: "wave", Role: domain.RoleCoordinate, Unit: "um", Values: []float64{1, 1.5, 2, 2.5, 3, 3.5}},
			{Name: "flux", Values: []float64{2, 6, 9, 4, 7, 1}},
		},
	}
	err := s.Batch(ctx, func(ctx context.Context) error {
		for _, ds := range []domain.Dataset{image("sky", 337.5), image("sky_shift", 338.5), spec} {
			if _, err := s.RegisterDataset(ctx, ds); err != nil {
				return err
			}
		}
		region := domain.Box{X: domain.Ref("sky", "x"), Y: domain.Ref("sky", "y"), XMin: 0.5, XMax: 2.5, YMin: 0.5, YMax: 2.5}
		if _, err := s.DefineSubset(ctx, "region", region, domain.Style{Color: "#ff7f0e", Opacity: 0.6}); err != nil {
			return err
		}
		bright := domain.Compare{Ref: domain.Local("flux"), Op: domain.OpGT, Value: 5}
		if _, err := s.DefineSubset(ctx, "bright", bright, domain.Style{Color: "#1f77b4", Opacity: 0.8}); err != nil {
			return err
		}
		if _, err := s.AddViewer(ctx, domain.ViewerSpec{
			ID: "sky-view", Kind: domain.ViewerImage,
			Datasets: []domain.DatasetID{"sky", "sky_shift"},
			Subsets:  []domain.SubsetID{"region"},
			Axes:     map[string]domain.ComponentRef{"value": domain.Local("flux")},
		}); err != nil {
			return err
		}
		_, err := s.AddViewer(ctx, domain.ViewerSpec{
			ID: "spec-view", Kind: domain.ViewerSpectrum,
			Datasets: []domain.DatasetID{"spec"},
			Subsets:  []domain.SubsetID{"bright"},
			Axes:     map[string]domain.ComponentRef{"x": domain.Local("wave"), "y": domain.Local("flux")},
		})
		return err
	})
	if err != nil {
		return err
	}
	// the smoothed spectrum lands once the worker pool drains
	if err := s.Await(ctx); err != nil {
		return err
	}
	v, err := s.Viewer("spec-view")
	if err != nil {
		return err
	}
	return v.Attach(ctx, "spec_smooth")
}

func printLayers(out io.Writer, s *core.Session) {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VIEWER\tDATASET\tSUBSET\tSTATE\tSELECTED")
	for _, v := range s.Viewers() {
		for _, l := range v.Layers() {
			subset := string(l.Subset)
			if subset == "" {
				subset = "-"
			}
			selected := "-"
			if l.Active() {
				selected = fmt.Sprint(l.Render.Selected)
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID(), l.Dataset, subset, l.State, selected)
		}
	}
	_ = tw.Flush()
}

func (a *app) exportViewers(ctx context.Context, out io.Writer, s *core.Session, formats []string) error {
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return err
	}
	w := export.NewWorker(store, export.FromConfig(a.cfg.Export), export.WithLogger(logger.ComponentLogger("skylink.export")))
	w.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(stopCtx)
	}()

	fs := make([]export.Format, 0, len(formats))
	for _, f := range formats {
		fs = append(fs, export.Format(f))
	}
	var ids []string
	for _, v := range s.Viewers() {
		rec, err := w.Enqueue(ctx, export.Request{Capture: export.Capture(s.Name(), v), Formats: fs, RequestedBy: "cli", Presign: true})
		if err != nil {
			return errors.Wrapf(err, "export %s", v.ID())
		}
		ids = append(ids, rec.ID)
	}
	for _, id := range ids {
		rec, err := w.Await(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status == export.StatusFailed {
			return errors.Newf("export %s of %s failed: %s", rec.ID, rec.Viewer, rec.Error)
		}
		for _, art := range rec.Artifacts {
			_, _ = fmt.Fprintf(out, "exported %s (%d bytes)\n", art.Key, art.SizeBytes)
		}
	}
	return nil
}
