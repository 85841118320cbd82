package domain

import (
	"encoding/json"
	"testing"
	"time"

	"skylink/pkg/errors"
)

func sampleSnapshot() SessionSnapshot {
	return SessionSnapshot{
		Name:    "night1",
		SavedAt: time.Date(2026, 10, 1, 22, 0, 0, 0, time.UTC),
		Datasets: []Dataset{
			{ID: "sky", Components: []Component{{Name: "flux", Role: RoleData, Values: []float64{1, 2}}}},
			{ID: "spec", Components: []Component{{Name: "flux", Role: RoleData, Values: []float64{3}}}},
		},
		Links: []Link{{ID: "l1", From: Ref("sky", "flux"), To: Ref("spec", "flux"), Transform: Affine(2, 0), Seq: 1}},
		Subsets: []Subset{{
			ID:        "bright",
			Predicate: And{Terms: []Expr{Compare{Ref: Local("flux"), Op: OpGT, Value: 1}, Box{X: Local("x"), Y: Local("y"), XMin: 0, XMax: 2, YMin: 0, YMax: 2}}},
			Style:     Style{Color: "#ff0000", Opacity: 0.5},
		}},
		Viewers: []ViewerSpec{{ID: "v1", Kind: ViewerImage, Datasets: []DatasetID{"sky"}, Axes: map[string]ComponentRef{"x": Local("x")}}},
	}
}

func TestSnapshotInfoAndSort(t *testing.T) {
	info := sampleSnapshot().Info()
	if info.Datasets != 2 || info.Links != 1 || info.Subsets != 1 || info.Viewers != 1 {
		t.Fatalf("unexpected info %+v", info)
	}
	infos := []SnapshotInfo{{Name: "b"}, {Name: "a"}, {Name: "c"}}
	SortInfos(infos)
	if infos[0].Name != "a" || infos[2].Name != "c" {
		t.Fatalf("not sorted: %+v", infos)
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	snap := sampleSnapshot()
	cp := snap.Clone()
	cp.Datasets[0].Components[0].Values[0] = 99
	cp.Viewers[0].Axes["x"] = Local("z")
	cp.Links[0].ID = "other"
	if snap.Datasets[0].Components[0].Values[0] != 1 || snap.Viewers[0].Axes["x"] != Local("x") || snap.Links[0].ID != "l1" {
		t.Fatalf("clone shares state with original")
	}
}

func TestSnapshotJSONKeepsPredicates(t *testing.T) {
	data, err := json.Marshal(sampleSnapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back SessionSnapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	and, ok := back.Subsets[0].Predicate.(And)
	if !ok || len(and.Terms) != 2 {
		t.Fatalf("predicate lost: %#v", back.Subsets[0].Predicate)
	}
	if box, ok := and.Terms[1].(Box); !ok || box.XMax != 2 {
		t.Fatalf("box term lost: %#v", and.Terms[1])
	}
	if back.Subsets[0].Style.Color != "#ff0000" || !back.SavedAt.Equal(sampleSnapshot().SavedAt) {
		t.Fatalf("unexpected decoded subset %+v", back.Subsets[0])
	}
}

func TestSubsetUnmarshalRejectsBadPredicate(t *testing.T) {
	var sub Subset
	err := json.Unmarshal([]byte(`{"id":"s","predicate":{"kind":"circle"}}`), &sub)
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err        error
		sentinel   error
		structural bool
	}{
		{NotFoundf("dataset %s", "x"), ErrNotFound, true},
		{DuplicateIDf("link %s", "l"), ErrDuplicateID, true},
		{SchemaConflictf("shape"), ErrSchemaConflict, true},
		{LinkConflictf("cycle"), ErrLinkConflict, true},
		{Unreachablef("a to b"), ErrUnreachable, false},
		{Unevaluatable(errors.New("boom"), "subset s"), ErrUnevaluatable, false},
		{Unevaluatable(nil, "subset s"), ErrUnevaluatable, false},
		{Reconciliation(errors.New("panic"), "viewer v"), ErrReconciliation, false},
	}
	for _, c := range cases {
		if !errors.Is(c.err, c.sentinel) {
			t.Fatalf("%v is not %v", c.err, c.sentinel)
		}
		if IsStructural(c.err) != c.structural {
			t.Fatalf("IsStructural(%v)=%v", c.err, !c.structural)
		}
	}
	cause := errors.New("root cause")
	if !errors.Is(Unevaluatable(cause, "wrap"), cause) {
		t.Fatalf("cause not inspectable through mark")
	}
	both := Unevaluatable(Unreachablef("img.x via spec"), "subset %s", "s1")
	if !errors.Is(both, ErrUnevaluatable) || !errors.Is(both, ErrUnreachable) || IsStructural(both) {
		t.Fatalf("expected both marks preserved and non-structural: %v", both)
	}
}
