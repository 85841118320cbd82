package core_test

import (
	"context"
	"testing"

	"skylink/internal/core"
	"skylink/pkg/domain"
)

func newSession(t *testing.T, opts ...core.SessionOption) *core.Session {
	t.Helper()
	s := core.NewSession(opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// imgDataset is a 2x3 image whose flux exceeds 5 at flat indices 1, 3 and 5.
func imgDataset() domain.Dataset {
	return domain.Dataset{
		ID:     "img",
		Coords: domain.CoordinateDescriptor{Shape: []int{2, 3}},
		Components: []domain.Component{
			{Name: "x", Role: domain.RoleCoordinate, Values: []float64{0, 1, 2, 0, 1, 2}},
			{Name: "y", Role: domain.RoleCoordinate, Values: []float64{0, 0, 0, 1, 1, 1}},
			{Name: "flux", Values: []float64{1, 6, 3, 9, 5, 7}},
		},
	}
}

func specDataset() domain.Dataset {
	return domain.Dataset{
		ID: "spec",
		Components: []domain.Component{
			{Name: "wave", Role: domain.RoleCoordinate, Values: []float64{0, 1, 2, 3}},
			{Name: "flux", Values: []float64{4, 8, 2, 6}},
		},
	}
}

func mustRegister(t *testing.T, s *core.Session, ds domain.Dataset) domain.DatasetID {
	t.Helper()
	id, err := s.RegisterDataset(context.Background(), ds)
	if err != nil {
		t.Fatalf("register %s: %v", ds.ID, err)
	}
	return id
}

func mustLink(t *testing.T, s *core.Session, from, to domain.ComponentRef, spec domain.TransformSpec) domain.LinkID {
	t.Helper()
	id, err := s.AddLink(context.Background(), from, to, spec, false)
	if err != nil {
		t.Fatalf("link %s -> %s: %v", from, to, err)
	}
	return id
}

func brightPredicate() domain.Expr {
	return domain.Compare{Ref: domain.Local("flux"), Op: domain.OpGT, Value: 5}
}

func mustLayer(t *testing.T, v *core.Viewer, ds domain.DatasetID, sub domain.SubsetID) core.LayerView {
	t.Helper()
	lv, ok := v.Layer(ds, sub)
	if !ok {
		t.Fatalf("viewer %s has no layer %s/%s", v.ID(), ds, sub)
	}
	return lv
}

func masksEqual(a, b domain.Mask) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func floatsClose(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		d := a[i] - b[i]
		if d < -tol || d > tol {
			return false
		}
	}
	return true
}

// testSession embeds a session so helpers can add context-free shortcuts.
type testSession struct {
	*core.Session
}

func linkInterest() core.Interest {
	return core.Interest{Kinds: []domain.EventKind{domain.EventLinkAdded, domain.EventLinkUpdated, domain.EventLinkRemoved}}
}

func componentInterest() core.Interest {
	return core.Interest{Kinds: []domain.EventKind{domain.EventComponentAdded, domain.EventComponentUpdated, domain.EventComponentRemoved}}
}
