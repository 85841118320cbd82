package domain

// EventKind enumerates the change notifications emitted by shared state.
type EventKind string

const (
	EventDatasetAdded       EventKind = "dataset_added"
	EventDatasetRemoved     EventKind = "dataset_removed"
	EventComponentAdded     EventKind = "component_added"
	EventComponentUpdated   EventKind = "component_updated"
	EventComponentRemoved   EventKind = "component_removed"
	EventLinkAdded          EventKind = "link_added"
	EventLinkUpdated        EventKind = "link_updated"
	EventLinkRemoved        EventKind = "link_removed"
	EventSubsetDefined      EventKind = "subset_defined"
	EventSubsetUpdated      EventKind = "subset_updated"
	EventSubsetStyleUpdated EventKind = "subset_style_updated"
	EventSubsetRemoved      EventKind = "subset_removed"
)

// Event describes exactly one mutation of shared state. Seq is assigned by
// the bus and is strictly increasing within a session.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      EventKind `json:"kind"`
	Dataset   DatasetID `json:"dataset,omitempty"`
	Component string    `json:"component,omitempty"`
	Subset    SubsetID  `json:"subset,omitempty"`
	Link      LinkID    `json:"link,omitempty"`
	// Datasets lists every dataset the mutation touched; link events carry both ends.
	Datasets []DatasetID `json:"datasets,omitempty"`
	// RemovedLinks lists links cascaded away by a dataset removal.
	RemovedLinks []LinkID `json:"removed_links,omitempty"`
}

// Touches reports whether the event concerns the dataset.
func (e Event) Touches(id DatasetID) bool {
	if e.Dataset == id {
		return true
	}
	for _, d := range e.Datasets {
		if d == id {
			return true
		}
	}
	return false
}

// IsLinkEvent reports whether the event changed the link graph.
func (e Event) IsLinkEvent() bool {
	switch e.Kind {
	case EventLinkAdded, EventLinkUpdated, EventLinkRemoved:
		return true
	}
	return false
}

// IsComponentEvent reports whether the event changed a dataset's components.
func (e Event) IsComponentEvent() bool {
	switch e.Kind {
	case EventComponentAdded, EventComponentUpdated, EventComponentRemoved:
		return true
	}
	return false
}
