package export

import (
	"context"
	"sync"
	"time"

	"skylink/pkg/domain"
)

// AuditLogger records export lifecycle transitions.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry is one lifecycle transition.
type AuditEntry struct {
	ID         string          `json:"id"`
	Export     string          `json:"export"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor,omitempty"`
	Session    string          `json:"session"`
	Viewer     domain.ViewerID `json:"viewer"`
	Status     Status          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Note       string          `json:"note,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// MemoryAuditLog keeps entries in memory.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMemoryAuditLog constructs an empty log.
func NewMemoryAuditLog() *MemoryAuditLog { return &MemoryAuditLog{} }

// Record implements AuditLogger.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.entries...)
}
