package pluginapi

import (
	"testing"

	"skylink/pkg/domain"
)

func TestInterestMatches(t *testing.T) {
	linkEv := domain.Event{Kind: domain.EventLinkAdded, Link: "l1", Datasets: []domain.DatasetID{"a", "b"}}
	subsetEv := domain.Event{Kind: domain.EventSubsetUpdated, Subset: "bright"}
	addEv := domain.Event{Kind: domain.EventDatasetAdded, Dataset: "a"}

	cases := []struct {
		name     string
		interest Interest
		ev       domain.Event
		want     bool
	}{
		{"empty matches all", Interest{}, linkEv, true},
		{"kind hit", Interest{Kinds: []domain.EventKind{domain.EventDatasetAdded, domain.EventLinkAdded}}, linkEv, true},
		{"kind miss", Interest{Kinds: []domain.EventKind{domain.EventDatasetAdded}}, subsetEv, false},
		{"dataset via link endpoints", Interest{Datasets: []domain.DatasetID{"b"}}, linkEv, true},
		{"dataset direct", Interest{Datasets: []domain.DatasetID{"a"}}, addEv, true},
		{"dataset miss", Interest{Datasets: []domain.DatasetID{"c"}}, linkEv, false},
		{"subset hit", Interest{Subsets: []domain.SubsetID{"bright"}}, subsetEv, true},
		{"subset miss", Interest{Subsets: []domain.SubsetID{"faint"}}, subsetEv, false},
		{"all filters must hold", Interest{Kinds: []domain.EventKind{domain.EventLinkAdded}, Datasets: []domain.DatasetID{"z"}}, linkEv, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.interest.Matches(c.ev); got != c.want {
				t.Fatalf("Matches=%v want %v", got, c.want)
			}
		})
	}
}
