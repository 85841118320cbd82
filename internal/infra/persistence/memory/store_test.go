package memory

import (
	"context"
	"testing"
	"time"

	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

func sampleSnapshot(name string) domain.SessionSnapshot {
	return domain.SessionSnapshot{
		Name:    name,
		SavedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Datasets: []domain.Dataset{{
			ID: "img",
			Components: []domain.Component{
				{Name: "x", Role: domain.RoleCoordinate, Values: []float64{0, 1}},
				{Name: "flux", Role: domain.RoleData, Values: []float64{3, 7}},
			},
		}},
		Subsets: []domain.Subset{{
			ID:        "bright",
			Predicate: domain.Compare{Ref: domain.Local("flux"), Op: domain.OpGT, Value: 5},
		}},
		Viewers: []domain.ViewerSpec{{ID: "v1", Kind: domain.ViewerImage, Datasets: []domain.DatasetID{"img"}}},
	}
}

func TestStoreSaveLoadIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	snap := sampleSnapshot("demo")
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.Datasets[0].Components[0].Values[0] = 99

	loaded, err := store.Load(ctx, "demo")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Datasets[0].Components[0].Values[0] != 0 {
		t.Fatalf("expected stored copy to be isolated from caller mutation")
	}
	loaded.Datasets[0].Label = "changed"
	again, _ := store.Load(ctx, "demo")
	if again.Datasets[0].Label != "" {
		t.Fatalf("expected loaded copy to be isolated from store")
	}
}

func TestStoreListDeleteAndErrors(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if err := store.Save(ctx, domain.SessionSnapshot{}); err == nil {
		t.Fatalf("expected error for unnamed snapshot")
	}
	for _, name := range []string{"b", "a"} {
		if err := store.Save(ctx, sampleSnapshot(name)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	infos, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "a" || infos[1].Name != "b" {
		t.Fatalf("unexpected infos: %+v", infos)
	}
	if infos[0].Datasets != 1 || infos[0].Subsets != 1 || infos[0].Viewers != 1 {
		t.Fatalf("unexpected counts: %+v", infos[0])
	}
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(ctx, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found deleting twice, got %v", err)
	}
	if got := store.Names(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("unexpected names: %v", got)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStoreImportReplacesContents(t *testing.T) {
	store := NewStore()
	_ = store.Save(context.Background(), sampleSnapshot("old"))
	store.Import([]domain.SessionSnapshot{sampleSnapshot("new")})
	if got := store.Names(); len(got) != 1 || got[0] != "new" {
		t.Fatalf("expected import to replace contents, got %v", got)
	}
}
