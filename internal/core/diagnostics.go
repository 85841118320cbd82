package core

import (
	"sync"
	"time"

	"skylink/pkg/domain"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Diagnostic records a non-fatal fault: a failing subscriber, a deferred
// mutation that errored, or an off-thread computation that did not complete.
type Diagnostic struct {
	Seq       uint64
	At        time.Time
	Severity  Severity
	Source    string
	Operation string
	Event     domain.EventKind
	EventSeq  uint64
	Err       error
}

// Message renders the diagnostic's error text.
func (d Diagnostic) Message() string {
	if d.Err == nil {
		return ""
	}
	return d.Err.Error()
}

// Diagnostics is a bounded ring of the most recent diagnostics. It is safe for
// concurrent use because runner completions report from worker goroutines.
type Diagnostics struct {
	mu    sync.Mutex
	ring  []Diagnostic
	next  int
	full  bool
	seq   uint64
	sink  func(Diagnostic)
	clock Clock
}

func newDiagnostics(capacity int, clock Clock, sink func(Diagnostic)) *Diagnostics {
	if capacity <= 0 {
		capacity = defaultDiagnosticsCapacity
	}
	return &Diagnostics{ring: make([]Diagnostic, capacity), sink: sink, clock: clock}
}

func (d *Diagnostics) report(diag Diagnostic) Diagnostic {
	d.mu.Lock()
	d.seq++
	diag.Seq = d.seq
	if diag.At.IsZero() {
		diag.At = d.clock.Now()
	}
	d.ring[d.next] = diag
	d.next = (d.next + 1) % len(d.ring)
	if d.next == 0 {
		d.full = true
	}
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink(diag)
	}
	return diag
}

// Entries returns retained diagnostics, oldest first.
func (d *Diagnostics) Entries() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.full {
		return append([]Diagnostic(nil), d.ring[:d.next]...)
	}
	out := make([]Diagnostic, 0, len(d.ring))
	out = append(out, d.ring[d.next:]...)
	return append(out, d.ring[:d.next]...)
}

// Total returns how many diagnostics were ever reported, including evicted ones.
func (d *Diagnostics) Total() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}
