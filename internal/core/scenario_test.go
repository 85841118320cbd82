package core_test

import (
	"context"
	"testing"

	"skylink/internal/core"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

func TestLinkedSubsetReconcilesAcrossDatasets(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	mustRegister(t, s, imgDataset())
	mustRegister(t, s, specDataset())
	mustLink(t, s, domain.Ref("img", "x"), domain.Ref("spec", "wave"), domain.Affine(1, 0))
	if _, err := s.DefineSubset(ctx, "bright", brightPredicate(), domain.Style{Color: "#ffcc00", Opacity: 0.8}); err != nil {
		t.Fatalf("define subset: %v", err)
	}

	v, err := s.AddViewer(ctx, domain.ViewerSpec{
		ID:       "table",
		Kind:     domain.ViewerTable,
		Datasets: []domain.DatasetID{"img", "spec"},
		Subsets:  []domain.SubsetID{"bright"},
	})
	if err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	layers := v.Layers()
	if len(layers) != 4 {
		t.Fatalf("expected 4 layers, got %d", len(layers))
	}
	for _, lv := range layers {
		if lv.State != core.LayerFresh {
			t.Fatalf("layer %s/%s not fresh: %s (%v)", lv.Dataset, lv.Subset, lv.State, lv.Err)
		}
	}

	direct := make(domain.Mask, 6)
	for i, f := range imgDataset().Components[2].Values {
		direct[i] = f > 5
	}
	mask, err := s.Evaluate("bright", "img")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !masksEqual(mask, direct) {
		t.Fatalf("mask %v does not match direct evaluation %v", mask, direct)
	}
	lv := mustLayer(t, v, "img", "bright")
	if !masksEqual(lv.Render.Mask, direct) || lv.Render.Selected != 3 {
		t.Fatalf("unexpected subset render: %+v", lv.Render)
	}
	if got := lv.Render.Rows; len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 5 {
		t.Fatalf("unexpected selected rows: %v", got)
	}
	if lv.Style.Color != "#ffcc00" {
		t.Fatalf("expected subset style on layer, got %+v", lv.Style)
	}
	specLayer := mustLayer(t, v, "spec", "bright")
	if !masksEqual(specLayer.Render.Mask, domain.Mask{false, true, false, true}) {
		t.Fatalf("unexpected spec mask: %v", specLayer.Render.Mask)
	}
}

func TestRemovingDisplayedDatasetCascades(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	mustRegister(t, s, imgDataset())
	mustRegister(t, s, specDataset())
	link := mustLink(t, s, domain.Ref("img", "x"), domain.Ref("spec", "wave"), domain.Identity())
	if _, err := s.DefineSubset(ctx, "bright", brightPredicate(), domain.Style{}); err != nil {
		t.Fatalf("define subset: %v", err)
	}
	v, err := s.AddViewer(ctx, domain.ViewerSpec{
		ID:       "table",
		Kind:     domain.ViewerTable,
		Datasets: []domain.DatasetID{"img", "spec"},
		Subsets:  []domain.SubsetID{"bright"},
	})
	if err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	before := mustLayer(t, v, "img", "")

	var removed domain.Event
	s.Subscribe("watch", core.Interest{Kinds: []domain.EventKind{domain.EventDatasetRemoved}}, func(_ context.Context, ev domain.Event) error {
		removed = ev
		return nil
	})
	if err := s.RemoveDataset(ctx, "spec"); err != nil {
		t.Fatalf("remove dataset: %v", err)
	}

	if _, err := s.Dataset("spec"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after removal, got %v", err)
	}
	if len(s.Links()) != 0 {
		t.Fatalf("expected link removed, got %+v", s.Links())
	}
	if len(removed.RemovedLinks) != 1 || removed.RemovedLinks[0] != link {
		t.Fatalf("expected removal event to report link %s, got %+v", link, removed)
	}
	for _, lv := range v.Layers() {
		if lv.Dataset == "spec" {
			t.Fatalf("viewer still holds layer for removed dataset: %+v", lv)
		}
	}
	if got := v.Spec().Datasets; len(got) != 1 || got[0] != "img" {
		t.Fatalf("expected only img attached, got %v", got)
	}
	after := mustLayer(t, v, "img", "")
	if after.State != core.LayerFresh || after.Passes != before.Passes || after.Generation != before.Generation {
		t.Fatalf("img layer disturbed by removal: before %+v after %+v", before, after)
	}
	if _, err := s.Subset("bright"); err != nil {
		t.Fatalf("subset must survive dataset removal: %v", err)
	}
}

func TestUnevaluatableSubsetIsInactiveNotFatal(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	mustRegister(t, s, imgDataset())
	mustRegister(t, s, domain.Dataset{
		ID:         "cat",
		Components: []domain.Component{{Name: "mag", Values: []float64{10, 12}}},
	})
	if _, err := s.DefineSubset(ctx, "bright", brightPredicate(), domain.Style{}); err != nil {
		t.Fatalf("define subset: %v", err)
	}
	v, err := s.AddViewer(ctx, domain.ViewerSpec{
		Kind:          domain.ViewerTable,
		Datasets:      []domain.DatasetID{"img", "cat"},
		Subsets:       []domain.SubsetID{"bright"},
		FollowSubsets: true,
	})
	if err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	if _, err := s.DefineSubset(ctx, "faint", domain.Compare{Ref: domain.Local("mag"), Op: domain.OpGT, Value: 11}, domain.Style{}); err != nil {
		t.Fatalf("define faint: %v", err)
	}

	lv := mustLayer(t, v, "img", "faint")
	if lv.State != core.LayerError || !errors.Is(lv.Err, domain.ErrUnevaluatable) {
		t.Fatalf("expected unevaluatable error layer, got %s %v", lv.State, lv.Err)
	}
	if lv.Active() {
		t.Fatalf("error layer must not be active")
	}
	if got := mustLayer(t, v, "cat", "faint"); got.State != core.LayerFresh || got.Render.Selected != 1 {
		t.Fatalf("expected faint fresh on cat, got %+v", got)
	}
	if got := mustLayer(t, v, "cat", "bright"); got.State != core.LayerError {
		t.Fatalf("expected bright inactive on cat, got %s", got.State)
	}

	// a component supplying the missing field revives the layer
	if err := s.AddComponent(ctx, "img", domain.Component{Name: "mag", Values: []float64{1, 20, 3, 40, 5, 60}}); err != nil {
		t.Fatalf("add component: %v", err)
	}
	if got := mustLayer(t, v, "img", "faint"); got.State != core.LayerFresh || got.Render.Selected != 3 {
		t.Fatalf("expected revived layer, got %s %v", got.State, got.Err)
	}
}
