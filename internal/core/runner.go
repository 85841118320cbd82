package core

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"skylink/pkg/errors"
)

// ApplyFunc lands the result of an off-thread computation. It runs on the
// session thread when the session pumps completions.
type ApplyFunc func(ctx context.Context) error

// Completion is a finished computation waiting in the mailbox.
type Completion struct {
	Name  string
	Apply ApplyFunc
	Err   error
}

// Runner executes computations on a bounded worker pool and posts their
// completions to a mailbox. It never touches session state.
type Runner struct {
	group   errgroup.Group
	mu      sync.Mutex
	mailbox []Completion
	pending atomic.Int64
}

func newRunner(concurrency int) *Runner {
	r := &Runner{}
	if concurrency <= 0 {
		concurrency = defaultRunnerConcurrency
	}
	r.group.SetLimit(concurrency)
	return r
}

// Submit schedules fn. It blocks while the pool is saturated.
func (r *Runner) Submit(ctx context.Context, name string, fn func(ctx context.Context) (ApplyFunc, error)) {
	r.pending.Add(1)
	r.group.Go(func() error {
		apply, err := r.run(ctx, fn)
		r.mu.Lock()
		r.mailbox = append(r.mailbox, Completion{Name: name, Apply: apply, Err: err})
		r.mu.Unlock()
		r.pending.Add(-1)
		return nil
	})
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) (ApplyFunc, error)) (apply ApplyFunc, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			apply, err = nil, errors.Newf("panic: %v", rec)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(ctx)
}

// Pending returns how many submitted computations have not completed.
func (r *Runner) Pending() int { return int(r.pending.Load()) }

// Wait blocks until every submitted computation has completed.
func (r *Runner) Wait() {
	_ = r.group.Wait()
}

// drain takes every completion from the mailbox in completion order.
func (r *Runner) drain() []Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.mailbox
	r.mailbox = nil
	return out
}

func (r *Runner) queued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mailbox)
}
