package domain

import (
	"math"
	"testing"
)

func TestTransformInverse(t *testing.T) {
	inv, ok := Affine(2, 4).Inverse()
	if !ok || !inv.Equal(Affine(0.5, -2)) {
		t.Fatalf("inverse of affine(2,4)=%v,%v", inv, ok)
	}
	tr := Affine(2, 3)
	back, _ := tr.Inverse()
	v := 7.5
	if got := back.A*(tr.A*v+tr.B) + back.B; math.Abs(got-v) > 1e-12 {
		t.Fatalf("round trip drifted: %g", got)
	}
	if _, ok := Affine(0, 1).Inverse(); ok {
		t.Fatalf("degenerate affine has no inverse")
	}
	if _, ok := External("log10").Inverse(); ok {
		t.Fatalf("external transforms have no closed-form inverse")
	}
	if inv, ok := Identity().Directional().Inverse(); !ok || !inv.OneWay {
		t.Fatalf("identity inverse should keep direction flag, got %v", inv)
	}
	if !Identity().Equal(Identity()) || Identity().Equal(Identity().Directional()) {
		t.Fatalf("identity equality must account for direction")
	}
}

func TestTransformEqualAndString(t *testing.T) {
	if !Affine(1, 0).Equal(Affine(1+1e-13, 0)) {
		t.Fatalf("tolerance not applied")
	}
	if Affine(1, 0).Equal(Affine(1, 0).Directional()) {
		t.Fatalf("direction flag ignored")
	}
	if External("a").Equal(External("b")) {
		t.Fatalf("external names ignored")
	}
	cases := map[string]TransformSpec{
		"identity":                Identity(),
		"affine(2,-1.5)":          Affine(2, -1.5),
		"external(log10) one-way": External("log10").Directional(),
	}
	for want, spec := range cases {
		if got := spec.String(); got != want {
			t.Fatalf("String=%q want %q", got, want)
		}
	}
}

func TestLinkHelpers(t *testing.T) {
	l := Link{ID: "l1", From: Ref("a", "x"), To: Ref("b", "x"), Transform: Identity()}
	if !l.Touches("a") || !l.Touches("b") || l.Touches("c") {
		t.Fatalf("Touches wrong for %+v", l)
	}
	if ds := l.Datasets(); len(ds) != 2 || ds[0] != "a" || ds[1] != "b" {
		t.Fatalf("Datasets=%v", ds)
	}
	if !l.References(Ref("b", "x")) || l.References(Ref("b", "y")) {
		t.Fatalf("References wrong")
	}
}

func TestEventClassification(t *testing.T) {
	link := Event{Kind: EventLinkUpdated, Datasets: []DatasetID{"a", "b"}}
	if !link.IsLinkEvent() || link.IsComponentEvent() {
		t.Fatalf("link event misclassified")
	}
	comp := Event{Kind: EventComponentAdded, Dataset: "a"}
	if !comp.IsComponentEvent() || comp.IsLinkEvent() {
		t.Fatalf("component event misclassified")
	}
	if !link.Touches("b") || !comp.Touches("a") || comp.Touches("b") {
		t.Fatalf("Touches wrong")
	}
}
