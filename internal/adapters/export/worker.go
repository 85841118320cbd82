// Package export writes viewer layers to a blob store as artifacts. Exports
// run on a background worker so the session thread only pays for a copy of
// the render data.
package export

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skylink/internal/blob"
	"skylink/internal/config"
	"skylink/internal/logger"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

// Status is the lifecycle stage of an export.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions follow.
func (s Status) Terminal() bool { return s == StatusSucceeded || s == StatusFailed }

const defaultQueueSize = 32

var (
	// ErrQueueFull is returned when the worker cannot accept more exports.
	ErrQueueFull = errors.New("export queue full")
	// ErrStopped is returned by Enqueue after Stop and recorded on exports
	// still queued at shutdown.
	ErrStopped = errors.New("export worker stopped")
)

// Artifact is one stored object.
type Artifact struct {
	Key         string    `json:"key"`
	Layer       string    `json:"layer"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks one export request.
type Record struct {
	ID          string          `json:"id"`
	Session     string          `json:"session"`
	Viewer      domain.ViewerID `json:"viewer"`
	Formats     []Format        `json:"formats"`
	Status      Status          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Artifacts   []Artifact      `json:"artifacts,omitempty"`
	Skipped     []string        `json:"skipped,omitempty"`
	RequestedBy string          `json:"requested_by,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (r *Record) copy() Record {
	out := *r
	out.Formats = append([]Format(nil), r.Formats...)
	out.Artifacts = append([]Artifact(nil), r.Artifacts...)
	out.Skipped = append([]string(nil), r.Skipped...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Request describes what to export. Capture must be taken on the session
// thread.
type Request struct {
	Capture     ViewerCapture
	Formats     []Format
	RequestedBy string
	Reason      string
	// Presign attaches a download URL to each artifact when the store
	// supports it.
	Presign bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithQueueSize bounds the number of pending exports.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithPrefix sets the key prefix artifacts are written under.
func WithPrefix(prefix string) Option { return func(w *Worker) { w.prefix = prefix } }

// WithAudit records lifecycle transitions.
func WithAudit(a AuditLogger) Option { return func(w *Worker) { w.audit = a } }

// WithLogger replaces the component logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option { return func(w *Worker) { w.now = now } }

// FromConfig applies the export section of the configuration.
func FromConfig(cfg config.ExportConfig) Option {
	return func(w *Worker) {
		WithQueueSize(cfg.QueueSize)(w)
		if cfg.Prefix != "" {
			w.prefix = cfg.Prefix
		}
	}
}

// Worker executes exports asynchronously.
type Worker struct {
	store     blob.Store
	audit     AuditLogger
	log       *zap.SugaredLogger
	now       func() time.Time
	prefix    string
	queueSize int

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*job

	// stopMu orders sends on queue against Stop.
	stopMu  sync.RWMutex
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type job struct {
	record Record
	done   chan struct{}
}

type task struct {
	id  string
	req Request
}

// NewWorker constructs a worker writing to store.
func NewWorker(store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		store:     store,
		log:       logger.ComponentLogger("skylink.export"),
		now:       time.Now,
		prefix:    "exports",
		queueSize: defaultQueueSize,
		jobs:      make(map[string]*job),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan task, w.queueSize)
	return w
}

// Start begins processing exports.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop halts the worker and waits for the running export. Exports still
// queued are failed with ErrStopped.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopMu.Lock()
	w.stopped = true
	w.stopMu.Unlock()
	w.cancel()
	w.drain()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			if w.ctx.Err() != nil {
				w.abandon(t)
				continue
			}
			w.process(t)
		}
	}
}

// drain fails every queued export. Nothing is sent once stopped is set.
func (w *Worker) drain() {
	for {
		select {
		case t := <-w.queue:
			w.abandon(t)
		default:
			return
		}
	}
}

func (w *Worker) abandon(t task) {
	w.transition(t.id, func(r *Record) {
		r.Status = StatusFailed
		r.Error = ErrStopped.Error()
	})
}

// Enqueue validates the request and schedules it.
func (w *Worker) Enqueue(ctx context.Context, req Request) (Record, error) {
	if w.store == nil {
		return Record{}, errors.New("export store not configured")
	}
	if req.Capture.Viewer == "" {
		return Record{}, errors.New("export capture has no viewer")
	}
	formats, err := normalizeFormats(req.Capture.Kind, req.Formats)
	if err != nil {
		return Record{}, err
	}
	req.Formats = formats

	w.stopMu.RLock()
	defer w.stopMu.RUnlock()
	if w.stopped {
		return Record{}, ErrStopped
	}

	now := w.now().UTC()
	j := &job{
		record: Record{
			ID:          uuid.NewString(),
			Session:     req.Capture.Session,
			Viewer:      req.Capture.Viewer,
			Formats:     formats,
			Status:      StatusQueued,
			Skipped:     append([]string(nil), req.Capture.Skipped...),
			RequestedBy: req.RequestedBy,
			Reason:      req.Reason,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		done: make(chan struct{}),
	}

	w.mu.Lock()
	w.jobs[j.record.ID] = j
	queued := j.record.copy()
	w.mu.Unlock()
	w.record(ctx, queued, "")

	select {
	case w.queue <- task{id: queued.ID, req: req}:
	default:
		w.transition(queued.ID, func(r *Record) {
			r.Status = StatusFailed
			r.Error = ErrQueueFull.Error()
		})
		return Record{}, ErrQueueFull
	}
	return queued, nil
}

func normalizeFormats(kind domain.ViewerKind, formats []Format) ([]Format, error) {
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	out := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{}, len(formats))
	for _, f := range formats {
		if _, dup := seen[f]; dup {
			continue
		}
		if !supports(kind, f) {
			return nil, errors.Newf("format %s not supported for %s viewers", f, kind)
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// Get returns a copy of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	j, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return j.record.copy(), true
}

// Await blocks until the export reaches a terminal status.
func (w *Worker) Await(ctx context.Context, id string) (Record, error) {
	w.mu.RLock()
	j, ok := w.jobs[id]
	w.mu.RUnlock()
	if !ok {
		return Record{}, domain.NotFoundf("export %s", id)
	}
	select {
	case <-j.done:
		rec, _ := w.Get(id)
		return rec, nil
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

func (w *Worker) process(t task) {
	w.transition(t.id, func(r *Record) { r.Status = StatusRunning })
	artifacts, err := w.write(t)
	if err != nil {
		w.transition(t.id, func(r *Record) {
			r.Status = StatusFailed
			r.Error = err.Error()
		})
		return
	}
	w.transition(t.id, func(r *Record) {
		r.Status = StatusSucceeded
		r.Artifacts = artifacts
	})
}

func (w *Worker) write(t task) ([]Artifact, error) {
	c := t.req.Capture
	artifacts := make([]Artifact, 0, len(c.Layers)*len(t.req.Formats))
	for _, layer := range c.Layers {
		for _, format := range t.req.Formats {
			out, err := materialize(format, c.Kind, layer)
			if err != nil {
				return nil, err
			}
			key := blob.Key(w.prefix, c.Session, string(c.Viewer), layer.Name()+"."+string(format))
			info, err := w.store.Put(w.ctx, key, bytes.NewReader(out.payload), blob.PutOptions{
				ContentType: out.contentType,
				Overwrite:   true,
				Metadata: map[string]string{
					"session": c.Session,
					"viewer":  string(c.Viewer),
					"dataset": string(layer.Dataset),
					"subset":  string(layer.Subset),
				},
			})
			if err != nil {
				return nil, errors.Wrapf(err, "store %s", key)
			}
			a := Artifact{
				Key:         info.Key,
				Layer:       layer.Name(),
				Format:      format,
				ContentType: out.contentType,
				SizeBytes:   info.Size,
				ETag:        info.ETag,
				CreatedAt:   w.now().UTC(),
			}
			if t.req.Presign {
				url, err := w.store.PresignURL(w.ctx, info.Key, blob.SignedURLOptions{Method: "GET", Expiry: time.Hour})
				switch {
				case err == nil:
					a.URL = url
				case !errors.Is(err, blob.ErrUnsupported):
					return nil, errors.Wrapf(err, "presign %s", key)
				}
			}
			artifacts = append(artifacts, a)
		}
	}
	return artifacts, nil
}

func (w *Worker) transition(id string, apply func(*Record)) {
	now := w.now().UTC()
	w.mu.Lock()
	j, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	apply(&j.record)
	j.record.UpdatedAt = now
	if j.record.Status.Terminal() {
		j.record.CompletedAt = &now
	}
	snapshot := j.record.copy()
	if snapshot.Status.Terminal() {
		close(j.done)
	}
	w.mu.Unlock()
	w.record(w.ctx, snapshot, snapshot.Error)
}

func (w *Worker) record(ctx context.Context, rec Record, note string) {
	fields := []any{
		"export", rec.ID,
		logger.FieldSession, rec.Session,
		logger.FieldViewer, string(rec.Viewer),
		logger.FieldStatus, string(rec.Status),
	}
	switch rec.Status {
	case StatusFailed:
		w.log.Warnw("export failed", append(fields, logger.FieldError, note)...)
	case StatusSucceeded:
		w.log.Infow("export complete", append(fields, logger.FieldCount, len(rec.Artifacts))...)
	default:
		w.log.Debugw("export "+string(rec.Status), fields...)
	}
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Export:     rec.ID,
		Action:     "viewer_export",
		Actor:      rec.RequestedBy,
		Session:    rec.Session,
		Viewer:     rec.Viewer,
		Status:     rec.Status,
		Reason:     rec.Reason,
		Note:       note,
		OccurredAt: rec.UpdatedAt,
	})
}
