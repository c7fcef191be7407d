// Package state holds the per-recipient notification record shared by the
// outbound notifier and the inbound command server.
//
// Recipient values are copied, never shared: every helper that changes a
// record returns the changed copy.
package state

import "time"

// Recipient is the notification state of one recipient address.
// The zero value is the pristine state of a recipient never seen before.
type Recipient struct {
	LastTemplateSent *time.Time `json:"last_template_sent,omitempty"`
	SessionUntil     *time.Time `json:"session_until,omitempty"`
	Paused           bool       `json:"paused,omitempty"`
	PausedUntil      *time.Time `json:"paused_until,omitempty"`

	// LastEventSent is informational; no decision reads it.
	LastEventSent *time.Time `json:"last_event_sent,omitempty"`
	// WelcomedAt marks the one-time evidence push granted on the first ALERTAS.
	WelcomedAt *time.Time `json:"welcomed_at,omitempty"`
}

// Map is the full store content keyed by recipient identifier.
type Map map[string]Recipient

// Get returns the record for id, or the pristine record when absent.
func (m Map) Get(id string) Recipient {
	if m == nil {
		return Recipient{}
	}
	return m[id]
}

// Clone returns a deep copy.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// At returns a pointer to a copy of t in UTC.
func At(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

func (r Recipient) IsZero() bool {
	return r.LastTemplateSent == nil && r.SessionUntil == nil && !r.Paused &&
		r.PausedUntil == nil && r.LastEventSent == nil && r.WelcomedAt == nil
}

// Clone copies the timestamp pointers so the result shares nothing with r.
func (r Recipient) Clone() Recipient {
	cp := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := *t
		return &v
	}
	return Recipient{
		LastTemplateSent: cp(r.LastTemplateSent),
		SessionUntil:     cp(r.SessionUntil),
		Paused:           r.Paused,
		PausedUntil:      cp(r.PausedUntil),
		LastEventSent:    cp(r.LastEventSent),
		WelcomedAt:       cp(r.WelcomedAt),
	}
}

// Equal compares field values, not pointer identity.
func (r Recipient) Equal(o Recipient) bool {
	eq := func(a, b *time.Time) bool {
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return a.Equal(*b)
	}
	return r.Paused == o.Paused &&
		eq(r.LastTemplateSent, o.LastTemplateSent) &&
		eq(r.SessionUntil, o.SessionUntil) &&
		eq(r.PausedUntil, o.PausedUntil) &&
		eq(r.LastEventSent, o.LastEventSent) &&
		eq(r.WelcomedAt, o.WelcomedAt)
}
