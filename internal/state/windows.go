package state

import "time"

// PauseActive reports whether notifications are suppressed at now.
// A future PausedUntil pauses regardless of Paused; a bare Paused flag with no
// PausedUntil is the manual pause and never expires.
func (r Recipient) PauseActive(now time.Time) bool {
	if r.PausedUntil != nil {
		return r.PausedUntil.After(now)
	}
	return r.Paused
}

// PauseExpired reports whether a timed pause is present but over.
func (r Recipient) PauseExpired(now time.Time) bool {
	return r.PausedUntil != nil && !r.PausedUntil.After(now)
}

// Heal clears an expired timed pause. The bool reports whether anything changed.
func (r Recipient) Heal(now time.Time) (Recipient, bool) {
	if !r.PauseExpired(now) {
		return r, false
	}
	out := r.Clone()
	out.Paused = false
	out.PausedUntil = nil
	return out, true
}

// SessionActive reports whether a free-form session window is open at now.
func (r Recipient) SessionActive(now time.Time) bool {
	return r.SessionUntil != nil && r.SessionUntil.After(now)
}

// TemplateDue reports whether the template cooldown has elapsed.
func (r Recipient) TemplateDue(now time.Time, cooldown time.Duration) bool {
	if r.LastTemplateSent == nil {
		return true
	}
	return now.Sub(*r.LastTemplateSent) >= cooldown
}

// WithPause returns r paused until now+d.
func (r Recipient) WithPause(now time.Time, d time.Duration) Recipient {
	out := r.Clone()
	out.Paused = true
	out.PausedUntil = At(now.Add(d))
	return out
}

// WithSession returns r with any pause cleared and a session open until now+d.
func (r Recipient) WithSession(now time.Time, d time.Duration) Recipient {
	out := r.Clone()
	out.Paused = false
	out.PausedUntil = nil
	out.SessionUntil = At(now.Add(d))
	return out
}

// WithTemplateSent records a delivered template at now.
func (r Recipient) WithTemplateSent(now time.Time) Recipient {
	out := r.Clone()
	out.LastTemplateSent = At(now)
	return out
}

// WithEventSent records a delivered session message at now.
func (r Recipient) WithEventSent(now time.Time) Recipient {
	out := r.Clone()
	out.LastEventSent = At(now)
	return out
}

// WithWelcomed records that the one-time evidence push was granted at now.
func (r Recipient) WithWelcomed(now time.Time) Recipient {
	out := r.Clone()
	out.WelcomedAt = At(now)
	return out
}
