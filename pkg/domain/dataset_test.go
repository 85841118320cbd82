package domain

import (
	"math"
	"testing"
)

func TestDatasetSize(t *testing.T) {
	shaped := Dataset{Coords: CoordinateDescriptor{Shape: []int{2, 3}}, Components: []Component{{Name: "x", Values: []float64{1}}}}
	if got := shaped.Size(); got != 6 {
		t.Fatalf("shape should win, got %d", got)
	}
	flat := Dataset{Components: []Component{{Name: "x", Values: []float64{1, 2, 3}}}}
	if got := flat.Size(); got != 3 {
		t.Fatalf("expected first component length, got %d", got)
	}
	if got := (Dataset{}).Size(); got != 0 {
		t.Fatalf("empty dataset size %d", got)
	}
}

func TestDatasetCloneIsDeep(t *testing.T) {
	ds := Dataset{
		ID:         "img",
		Coords:     CoordinateDescriptor{Shape: []int{2}, Axes: []Axis{{Name: "x", CDelt: 1}}},
		Components: []Component{{Name: "flux", Role: RoleData, Values: []float64{1, 2}}},
		Meta:       map[string]string{"origin": "test"},
	}
	cp := ds.Clone()
	cp.Coords.Shape[0] = 9
	cp.Coords.Axes[0].Name = "y"
	cp.Components[0].Values[0] = 42
	cp.Meta["origin"] = "changed"

	if ds.Coords.Shape[0] != 2 || ds.Coords.Axes[0].Name != "x" {
		t.Fatalf("coords shared with clone: %+v", ds.Coords)
	}
	if ds.Components[0].Values[0] != 1 {
		t.Fatalf("component values shared with clone")
	}
	if ds.Meta["origin"] != "test" {
		t.Fatalf("meta shared with clone")
	}
	if names := ds.ComponentNames(); len(names) != 1 || names[0] != "flux" {
		t.Fatalf("unexpected names %v", names)
	}
	if _, ok := ds.Component("missing"); ok {
		t.Fatalf("missing component reported present")
	}
}

func TestAxisWorldRoundTrip(t *testing.T) {
	ax := Axis{Name: "ra", CRPix: 1, CRVal: 337.5, CDelt: 0.5}
	if !ax.HasWorld() {
		t.Fatalf("axis with CDelt should have world")
	}
	w := ax.PixelToWorld(3)
	if w != 338.5 {
		t.Fatalf("PixelToWorld(3)=%v", w)
	}
	if p := ax.WorldToPixel(w); math.Abs(p-3) > 1e-12 {
		t.Fatalf("WorldToPixel=%v", p)
	}

	cd := CoordinateDescriptor{Axes: []Axis{ax, {Name: "dec"}}}
	if cd.HasWorld() {
		t.Fatalf("descriptor with a pixel-only axis has no world")
	}
	if (CoordinateDescriptor{}).HasWorld() {
		t.Fatalf("descriptor without axes has no world")
	}
	if got, ok := cd.Axis("ra"); !ok || got.CRVal != 337.5 {
		t.Fatalf("Axis(ra)=%+v,%v", got, ok)
	}
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		in   string
		want ComponentRef
	}{
		{"flux", Local("flux")},
		{" sky.flux ", Ref("sky", "flux")},
		{"sky.v2.flux", Ref("sky.v2", "flux")},
		{".flux", Local(".flux")},
	}
	for _, c := range cases {
		if got := ParseRef(c.in); got != c.want {
			t.Fatalf("ParseRef(%q)=%+v want %+v", c.in, got, c.want)
		}
	}
	if s := Ref("sky", "flux").String(); s != "sky.flux" {
		t.Fatalf("String=%q", s)
	}
	if Local("flux").Qualified() {
		t.Fatalf("local ref reported qualified")
	}
}

func TestComponentRoleValid(t *testing.T) {
	for _, r := range []ComponentRole{RoleCoordinate, RoleData, RoleMask} {
		if !r.Valid() {
			t.Fatalf("%s should be valid", r)
		}
	}
	if ComponentRole("weight").Valid() {
		t.Fatalf("unknown role accepted")
	}
}

func TestMaskCountAndClone(t *testing.T) {
	m := Mask{true, false, true}
	if m.Count() != 2 {
		t.Fatalf("Count=%d", m.Count())
	}
	cp := m.Clone()
	cp[1] = true
	if m[1] {
		t.Fatalf("clone shares storage")
	}
}
