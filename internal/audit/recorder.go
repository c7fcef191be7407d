// Package audit copies delivery and command events from the event bus into
// the store's append-only audit trail.
package audit

import (
	"context"
	"time"

	"alertbot/internal/eventbus"
	"alertbot/internal/storage"
	logx "alertbot/pkg/logx"
)

type Recorder struct {
	bus   eventbus.Bus
	store storage.Store
	log   logx.Logger

	events <-chan eventbus.Event
	unsub  func()
}

// NewRecorder subscribes immediately, so events published before Run starts
// are buffered rather than missed.
func NewRecorder(bus eventbus.Bus, store storage.Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Recorder{bus: bus, store: store, log: log.With(logx.String("comp", "audit"))}
	r.events, r.unsub = bus.Subscribe(256)
	return r
}

// Run records events until ctx ends, then writes whatever is still buffered.
// Events are dropped when the subscription buffer overflows.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.unsub()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case e, ok := <-r.events:
			if !ok {
				return nil
			}
			r.record(e)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case e, ok := <-r.events:
			if !ok {
				return
			}
			r.record(e)
		default:
			return
		}
	}
}

func (r *Recorder) record(e eventbus.Event) {
	entry, keep := Entry(e)
	if !keep {
		return
	}
	wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.store.AppendAudit(wctx, entry); err != nil {
		r.log.Warn("audit append failed", logx.String("kind", e.Type), logx.Err(err))
	}
}

// Entry converts a bus event into an audit entry. Unknown payloads are skipped.
func Entry(e eventbus.Event) (storage.AuditEntry, bool) {
	switch d := e.Data.(type) {
	case eventbus.Delivery:
		return storage.AuditEntry{
			At:        pick(d.At, e.Time),
			Kind:      e.Type,
			Recipient: d.Recipient,
			RunID:     d.RunID,
			Action:    d.Reason,
			Detail:    d.ImageRef,
			OK:        d.Error == "",
			Error:     d.Error,
		}, true
	case eventbus.Command:
		return storage.AuditEntry{
			At:        pick(d.At, e.Time),
			Kind:      e.Type,
			Recipient: d.Recipient,
			Action:    d.Command,
			OK:        d.Error == "",
			Error:     d.Error,
		}, true
	default:
		return storage.AuditEntry{}, false
	}
}

func pick(a, b time.Time) time.Time {
	if !a.IsZero() {
		return a
	}
	return b
}
