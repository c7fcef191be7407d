// Package dispatch decides, per recipient, which outbound message an evidence
// event warrants and how the recipient's record changes as a result.
//
// Evaluate is pure. Callers persist Decision.Next when nothing was sent (or
// the send failed) and Decision.OnSuccess after a delivered message.
package dispatch

import (
	"time"

	"alertbot/internal/state"
)

type Action int

const (
	Skip Action = iota
	SendSession
	SendTemplate
)

func (a Action) String() string {
	switch a {
	case SendSession:
		return "session"
	case SendTemplate:
		return "template"
	default:
		return "skip"
	}
}

// Reasons reported in Decision.Reason.
const (
	ReasonPaused   = "paused"
	ReasonSession  = "session_open"
	ReasonTemplate = "template_due"
	ReasonCooldown = "cooldown"
)

type Policy struct {
	TemplateCooldown time.Duration
	SessionDuration  time.Duration
}

type Decision struct {
	Action Action
	Reason string
	// Next is st with an expired pause cleared. It is the state to keep when
	// no message goes out or the send fails.
	Next state.Recipient
	// OnSuccess is the state to keep after a delivered message.
	OnSuccess state.Recipient
	// Healed reports that Next differs from the input.
	Healed bool
}

// Evaluate applies the rules in order: pause, open session, template cooldown.
func Evaluate(st state.Recipient, now time.Time, p Policy) Decision {
	next, healed := st.Heal(now)
	d := Decision{Action: Skip, Next: next, OnSuccess: next, Healed: healed}

	switch {
	case next.PauseActive(now):
		d.Reason = ReasonPaused
	case next.SessionActive(now):
		d.Action = SendSession
		d.Reason = ReasonSession
		d.OnSuccess = next.WithEventSent(now)
	case next.TemplateDue(now, p.TemplateCooldown):
		d.Action = SendTemplate
		d.Reason = ReasonTemplate
		d.OnSuccess = next.WithTemplateSent(now)
	default:
		d.Reason = ReasonCooldown
	}
	return d
}

// Persist returns the record to store for the decision given the send outcome.
// The bool is false when the stored record would not change.
func (d Decision) Persist(sent bool) (state.Recipient, bool) {
	if d.Action != Skip && sent {
		return d.OnSuccess, true
	}
	return d.Next, d.Healed
}
