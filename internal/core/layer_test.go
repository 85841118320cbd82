package core_test

import (
	"context"
	"testing"

	"skylink/internal/core"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

func TestBatchCoalescesToSinglePass(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	mustRegister(t, s, imgDataset())
	v, err := s.AddViewer(ctx, domain.ViewerSpec{ID: "tbl", Kind: domain.ViewerTable, Datasets: []domain.DatasetID{"img"}})
	if err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	before := mustLayer(t, v, "img", "")
	if before.Passes != 1 {
		t.Fatalf("expected initial pass, got %d", before.Passes)
	}

	err = s.Batch(ctx, func(ctx context.Context) error {
		for i := 1; i <= 3; i++ {
			flux := []float64{float64(i), 0, 0, 0, 0, 0}
			if err := s.AddComponent(ctx, "img", domain.Component{Name: "flux", Values: flux}); err != nil {
				return err
			}
			if got := mustLayer(t, v, "img", ""); got.State != core.LayerStale {
				t.Fatalf("expected stale inside batch, got %s", got.State)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	after := mustLayer(t, v, "img", "")
	if after.Passes != before.Passes+1 {
		t.Fatalf("expected exactly one recompute, got %d", after.Passes-before.Passes)
	}
	if after.Render.Columns["flux"][0] != 3 {
		t.Fatalf("expected render to reflect final state, got %v", after.Render.Columns["flux"])
	}
}

func TestManualReconcileCoalesces(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, core.WithAutoReconcile(false))
	mustRegister(t, s, imgDataset())
	v, err := s.AddViewer(ctx, domain.ViewerSpec{ID: "tbl", Kind: domain.ViewerTable, Datasets: []domain.DatasetID{"img"}})
	if err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.AddComponent(ctx, "img", domain.Component{Name: "flux", Values: make([]float64, 6)}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	passes, err := s.Reconcile(ctx)
	if err != nil || passes != 1 {
		t.Fatalf("expected one pass, got %d (%v)", passes, err)
	}
	first := mustLayer(t, v, "img", "")

	// idempotent: nothing stale, nothing recomputed
	passes, _ = s.Reconcile(ctx)
	second := mustLayer(t, v, "img", "")
	if passes != 0 || second.Passes != first.Passes || second.State != core.LayerFresh {
		t.Fatalf("expected idempotent reconcile, got passes=%d layer=%+v", passes, second)
	}
}

func TestReconcileCountsOnlyRenderedPasses(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, core.WithAutoReconcile(false))
	mustRegister(t, s, specDataset())
	v, err := s.AddViewer(ctx, domain.ViewerSpec{ID: "broken", Kind: domain.ViewerSpectrum, Datasets: []domain.DatasetID{"spec"},
		Axes: map[string]domain.ComponentRef{"x": domain.Local("wave"), "y": domain.Local("missing")}})
	if err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	passes, err := s.Reconcile(ctx)
	if err != nil || passes != 0 {
		t.Fatalf("expected no rendered pass, got %d (%v)", passes, err)
	}
	if got := mustLayer(t, v, "spec", ""); got.State != core.LayerError {
		t.Fatalf("expected unresolved layer in error, got %s", got.State)
	}
}

func TestSupersededPassIsDiscarded(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, core.WithAutoReconcile(false))
	mustRegister(t, s, imgDataset())
	v, err := s.AddViewer(ctx, domain.ViewerSpec{ID: "tbl", Kind: domain.ViewerTable, Datasets: []domain.DatasetID{"img"}})
	if err != nil {
		t.Fatalf("add viewer: %v", err)
	}

	started, err := s.ReconcileAsync(ctx)
	if err != nil || started != 1 {
		t.Fatalf("expected one async pass, got %d (%v)", started, err)
	}
	if got := mustLayer(t, v, "img", ""); got.State != core.LayerRecomputing {
		t.Fatalf("expected recomputing, got %s", got.State)
	}
	s.Runner().Wait()

	// invalidate again before the first pass lands
	if err := s.AddComponent(ctx, "img", domain.Component{Name: "flux", Values: []float64{9, 9, 9, 9, 9, 9}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.Pump(ctx); err != nil {
		t.Fatalf("pump: %v", err)
	}
	got := mustLayer(t, v, "img", "")
	if got.State != core.LayerStale {
		t.Fatalf("superseded pass must not land, layer is %s", got.State)
	}
	if len(got.Render.Columns) != 0 {
		t.Fatalf("stale render leaked: %v", got.Render.Columns)
	}

	if _, err := s.ReconcileAsync(ctx); err != nil {
		t.Fatalf("second async pass: %v", err)
	}
	if err := s.Await(ctx); err != nil {
		t.Fatalf("await: %v", err)
	}
	got = mustLayer(t, v, "img", "")
	if got.State != core.LayerFresh || got.Render.Columns["flux"][0] != 9 {
		t.Fatalf("expected fresh layer with latest flux, got %s %v", got.State, got.Render.Columns["flux"])
	}
}

func TestViewerAttachActivateAndAxes(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	mustRegister(t, s, imgDataset())
	mustRegister(t, s, specDataset())
	if _, err := s.DefineSubset(ctx, "bright", brightPredicate(), domain.Style{}); err != nil {
		t.Fatalf("define: %v", err)
	}
	v, err := s.AddViewer(ctx, domain.ViewerSpec{
		ID:   "plot",
		Kind: domain.ViewerScatter,
		Axes: map[string]domain.ComponentRef{"y": domain.Local("flux")},
	})
	if err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	if err := v.Attach(ctx, "img"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := v.Attach(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found attaching missing dataset, got %v", err)
	}
	if err := v.ActivateSubset(ctx, "bright"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	lv := mustLayer(t, v, "img", "bright")
	if lv.State != core.LayerFresh || len(lv.Render.Columns["x"]) != 3 {
		t.Fatalf("expected 3 picked points, got %s %+v", lv.State, lv.Render)
	}

	// spec has no x component until the axis is rebound
	if err := v.Attach(ctx, "spec"); err != nil {
		t.Fatalf("attach spec: %v", err)
	}
	if got := mustLayer(t, v, "spec", ""); got.State != core.LayerError || !errors.Is(got.Err, domain.ErrUnreachable) {
		t.Fatalf("expected unreachable axis, got %s %v", got.State, got.Err)
	}
	if err := v.SetAxis(ctx, "x", domain.Local("wave")); err != nil {
		t.Fatalf("set axis: %v", err)
	}
	if got := mustLayer(t, v, "spec", ""); got.State != core.LayerFresh {
		t.Fatalf("expected spec layer fresh after rebinding, got %s %v", got.State, got.Err)
	}
	if got := mustLayer(t, v, "img", ""); got.State != core.LayerError {
		t.Fatalf("img has no wave component, expected error, got %s", got.State)
	}
	if err := v.SetAxis(ctx, "colour", domain.Local("flux")); !errors.Is(err, domain.ErrSchemaConflict) {
		t.Fatalf("expected schema conflict for unknown axis, got %v", err)
	}

	if err := v.DeactivateSubset(ctx, "bright"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, ok := v.Layer("img", "bright"); ok {
		t.Fatalf("expected subset layer released")
	}
	if err := v.Detach(ctx, "img"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if err := v.Detach(ctx, "img"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found detaching twice, got %v", err)
	}
	if len(v.Layers()) != 1 {
		t.Fatalf("expected only spec layer, got %+v", v.Layers())
	}
}

func TestViewerLifecycleAndValidation(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	mustRegister(t, s, imgDataset())
	if _, err := s.AddViewer(ctx, domain.ViewerSpec{Kind: "globe"}); !errors.Is(err, domain.ErrSchemaConflict) {
		t.Fatalf("expected schema conflict for unknown kind, got %v", err)
	}
	if _, err := s.AddViewer(ctx, domain.ViewerSpec{Kind: domain.ViewerImage, Datasets: []domain.DatasetID{"nope"}}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found dataset, got %v", err)
	}
	if _, err := s.AddViewer(ctx, domain.ViewerSpec{Kind: domain.ViewerImage, Subsets: []domain.SubsetID{"nope"}}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found subset, got %v", err)
	}
	v, err := s.AddViewer(ctx, domain.ViewerSpec{ID: "im", Kind: domain.ViewerImage, Datasets: []domain.DatasetID{"img"}, Axes: map[string]domain.ComponentRef{"value": domain.Local("flux")}})
	if err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	if _, err := s.AddViewer(ctx, domain.ViewerSpec{ID: "im", Kind: domain.ViewerImage}); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected duplicate viewer, got %v", err)
	}
	lv := mustLayer(t, v, "img", "")
	if lv.State != core.LayerFresh || lv.Render.Kind != domain.ViewerImage || len(lv.Render.Shape) != 2 {
		t.Fatalf("unexpected image layer: %+v", lv)
	}
	if len(s.Viewers()) != 1 {
		t.Fatalf("expected one viewer")
	}
	if err := s.RemoveViewer(ctx, "im"); err != nil {
		t.Fatalf("remove viewer: %v", err)
	}
	if _, err := s.Viewer("im"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected viewer gone, got %v", err)
	}
	if err := s.RemoveViewer(ctx, "im"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second removal, got %v", err)
	}
	// datasets and subsets outlive the viewer
	if _, err := s.Dataset("img"); err != nil {
		t.Fatalf("dataset must persist: %v", err)
	}
}

func TestSubsetUpdateAndRemovalReachViewers(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	mustRegister(t, s, imgDataset())
	v, err := s.AddViewer(ctx, domain.ViewerSpec{ID: "tbl", Kind: domain.ViewerTable, Datasets: []domain.DatasetID{"img"}, FollowSubsets: true})
	if err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	if _, err := s.DefineSubset(ctx, "sel", brightPredicate(), domain.Style{}); err != nil {
		t.Fatalf("define: %v", err)
	}
	if got := mustLayer(t, v, "img", "sel"); got.Render.Selected != 3 {
		t.Fatalf("expected 3 selected, got %d", got.Render.Selected)
	}
	if err := s.UpdateSubset(ctx, "sel", domain.Range{Ref: domain.Local("flux"), Lo: 5, Hi: 7}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := mustLayer(t, v, "img", "sel"); got.Render.Selected != 3 || got.Passes != 2 {
		t.Fatalf("expected recompute after update, got %+v", got)
	}
	if err := s.CombineSubset(ctx, "sel", domain.Compare{Ref: domain.Local("x"), Op: domain.OpGE, Value: 1}, domain.CombineAnd); err != nil {
		t.Fatalf("combine: %v", err)
	}
	if got := mustLayer(t, v, "img", "sel"); got.Render.Selected != 3 {
		t.Fatalf("expected 3 selected after intersect, got %d", got.Render.Selected)
	}
	if err := s.UpdateSubsetStyle(ctx, "sel", domain.Style{Color: "red"}); err != nil {
		t.Fatalf("style: %v", err)
	}
	if got := mustLayer(t, v, "img", "sel"); got.Style.Color != "red" || got.Passes != 3 {
		t.Fatalf("style change must not recompute, got %+v", got)
	}
	if err := s.RemoveSubset(ctx, "sel"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := v.Layer("img", "sel"); ok {
		t.Fatalf("expected subset layer dropped")
	}
}
