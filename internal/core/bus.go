package core

import (
	"context"

	"skylink/internal/logger"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
	"skylink/pkg/pluginapi"
)

type (
	// Interest filters delivered events by kind and id.
	Interest = pluginapi.Interest
	// Handler reacts to a delivered event.
	Handler = pluginapi.Handler
)

// structuralSubscriber is implemented by subscribers whose failure leaves
// derived state inconsistent; they are degraded instead of merely logged.
type structuralSubscriber interface {
	Degrade(ev domain.Event, err error)
}

type subscription struct {
	id         uint64
	name       string
	interest   Interest
	handler    Handler
	structural structuralSubscriber
	cancelled  bool
}

type deferredMutation struct {
	name string
	fn   func(ctx context.Context) error
}

// busItem is either an event or a deferred mutation; both share one FIFO so
// queued effects keep a total order with the events that caused them.
type busItem struct {
	event    *domain.Event
	deferred *deferredMutation
}

// Bus delivers change events synchronously, in publication order, to
// subscribers in subscription order. It is confined to the session thread.
type Bus struct {
	s          *Session
	subs       []*subscription
	nextSubID  uint64
	queue      []busItem
	seq        uint64
	delivering bool
	delivered  uint64
}

func newBus(s *Session) *Bus {
	return &Bus{s: s}
}

// Subscribe registers handler under name and returns a cancel function.
func (b *Bus) Subscribe(name string, interest Interest, handler Handler) func() {
	return b.subscribe(name, interest, handler, nil)
}

func (b *Bus) subscribe(name string, interest Interest, handler Handler, structural structuralSubscriber) func() {
	b.nextSubID++
	sub := &subscription{id: b.nextSubID, name: name, interest: interest, handler: handler, structural: structural}
	b.subs = append(b.subs, sub)
	return func() { b.unsubscribe(sub.id) }
}

func (b *Bus) unsubscribe(id uint64) {
	for i, sub := range b.subs {
		if sub.id == id {
			sub.cancelled = true
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Delivering reports whether an event is currently being delivered.
func (b *Bus) Delivering() bool { return b.delivering }

// Delivered returns the number of events delivered so far.
func (b *Bus) Delivered() uint64 { return b.delivered }

// LastSeq returns the sequence number of the most recently published event.
func (b *Bus) LastSeq() uint64 { return b.seq }

func (b *Bus) publish(ev domain.Event) {
	b.seq++
	ev.Seq = b.seq
	b.queue = append(b.queue, busItem{event: &ev})
}

func (b *Bus) enqueue(name string, fn func(ctx context.Context) error) {
	b.queue = append(b.queue, busItem{deferred: &deferredMutation{name: name, fn: fn}})
}

// busMark is a position in the queue and the event sequence.
type busMark struct {
	queued int
	seq    uint64
}

func (b *Bus) mark() busMark {
	return busMark{queued: len(b.queue), seq: b.seq}
}

// rollback drops everything queued since m and rewinds the sequence, so a
// mutation that undoes its own state changes leaves nothing to deliver.
func (b *Bus) rollback(m busMark) {
	if m.queued > len(b.queue) {
		return
	}
	clear(b.queue[m.queued:])
	b.queue = b.queue[:m.queued]
	b.seq = m.seq
}

// drain delivers queued events and runs deferred mutations until the queue
// is empty. Items appended while draining are processed in the same pass.
func (b *Bus) drain(ctx context.Context) {
	for len(b.queue) > 0 {
		item := b.queue[0]
		b.queue[0] = busItem{}
		b.queue = b.queue[1:]
		if item.event != nil {
			b.deliver(ctx, *item.event)
			continue
		}
		b.runDeferred(ctx, item.deferred)
	}
	b.queue = nil
}

func (b *Bus) deliver(ctx context.Context, ev domain.Event) {
	subs := append([]*subscription(nil), b.subs...)
	b.delivering = true
	defer func() { b.delivering = false }()
	for _, sub := range subs {
		if sub.cancelled || !sub.interest.Matches(ev) {
			continue
		}
		if err := b.invoke(ctx, sub, ev); err != nil {
			b.s.diagnostics.report(Diagnostic{
				Severity:  SeverityError,
				Source:    sub.name,
				Operation: "deliver",
				Event:     ev.Kind,
				EventSeq:  ev.Seq,
				Err:       err,
			})
			b.s.log.Warn("subscriber failed",
				logger.FieldComponent, sub.name,
				logger.FieldEvent, string(ev.Kind),
				logger.FieldSeq, ev.Seq,
				logger.FieldError, err.Error())
			if sub.structural != nil {
				sub.structural.Degrade(ev, domain.Reconciliation(err, "%s handling %s", sub.name, ev.Kind))
			}
		}
	}
	b.delivered++
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return sub.handler(ctx, ev)
}

func (b *Bus) runDeferred(ctx context.Context, m *deferredMutation) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("panic: %v", r)
			}
		}()
		return m.fn(ctx)
	}()
	if err != nil {
		b.s.diagnostics.report(Diagnostic{
			Severity:  SeverityError,
			Source:    m.name,
			Operation: "deferred",
			Err:       err,
		})
		b.s.log.Warn("deferred mutation failed",
			logger.FieldOperation, m.name,
			logger.FieldError, err.Error())
	}
}
