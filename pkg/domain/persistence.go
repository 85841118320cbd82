package domain

import (
	"context"
	"sort"
	"time"
)

// SessionSnapshot is the durable form of a session: shared state plus viewer
// configuration. Derived layers and evaluation caches are rebuilt on restore.
type SessionSnapshot struct {
	Name     string       `json:"name"`
	SavedAt  time.Time    `json:"saved_at"`
	Datasets []Dataset    `json:"datasets"`
	Links    []Link       `json:"links"`
	Subsets  []Subset     `json:"subsets"`
	Viewers  []ViewerSpec `json:"viewers"`
}

// SnapshotInfo summarises a stored snapshot.
type SnapshotInfo struct {
	Name     string    `json:"name"`
	SavedAt  time.Time `json:"saved_at"`
	Datasets int       `json:"datasets"`
	Links    int       `json:"links"`
	Subsets  int       `json:"subsets"`
	Viewers  int       `json:"viewers"`
}

// Info summarises the snapshot.
func (s SessionSnapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		Name:     s.Name,
		SavedAt:  s.SavedAt,
		Datasets: len(s.Datasets),
		Links:    len(s.Links),
		Subsets:  len(s.Subsets),
		Viewers:  len(s.Viewers),
	}
}

// Clone returns a deep copy of the snapshot. Predicates are immutable trees and
// are shared.
func (s SessionSnapshot) Clone() SessionSnapshot {
	out := s
	out.Datasets = make([]Dataset, len(s.Datasets))
	for i, d := range s.Datasets {
		out.Datasets[i] = d.Clone()
	}
	out.Links = append([]Link(nil), s.Links...)
	out.Subsets = append([]Subset(nil), s.Subsets...)
	out.Viewers = make([]ViewerSpec, len(s.Viewers))
	for i, v := range s.Viewers {
		out.Viewers[i] = v.Clone()
	}
	return out
}

// SortInfos orders snapshot summaries by name.
func SortInfos(infos []SnapshotInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
}

// SnapshotStore persists named session snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot SessionSnapshot) error
	Load(ctx context.Context, name string) (SessionSnapshot, error)
	List(ctx context.Context) ([]SnapshotInfo, error)
	Delete(ctx context.Context, name string) error
	Close() error
}
