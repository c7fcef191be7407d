// Package command applies recipient text commands received by the webhook to
// that recipient's notification state.
package command

import (
	"strings"
	"time"

	"alertbot/internal/i18n"
	"alertbot/internal/state"
)

// Recognized commands, compared after trimming and upper-casing.
const (
	Menu   = "MENU"
	Ayuda  = "AYUDA"
	Help   = "HELP"
	Pause  = "PARAR"
	Resume = "ALERTAS"
)

const DefaultPauseDuration = 6 * time.Hour

type Input struct {
	State   state.Recipient
	Now     time.Time
	Text    string
	Sender  string
	Allowed bool

	SessionDuration time.Duration
	PauseDuration   time.Duration

	// Catalog and Location render the reply; nil means Spanish and UTC.
	Catalog  *i18n.Catalog
	Location *time.Location
}

type Result struct {
	// Command is the normalized command, or Menu for empty and unknown text.
	Command string
	// Reply is the text to answer with; empty when Ignored.
	Reply string
	Next  state.Recipient
	// Changed reports that Next must be persisted.
	Changed bool
	// PushEvidence asks for the latest evidence to be sent to the sender. It is
	// set once per recipient, on the first ALERTAS.
	PushEvidence bool
	Ignored      bool
}

// Normalize trims and upper-cases raw inbound text.
func Normalize(text string) string {
	return strings.ToUpper(strings.TrimSpace(text))
}

// Process is pure: it computes the reply and the next state without I/O.
func Process(in Input) Result {
	if !in.Allowed {
		return Result{Next: in.State, Ignored: true}
	}

	cat := in.Catalog
	if cat == nil {
		cat = i18n.New("")
	}
	pause := in.PauseDuration
	if pause <= 0 {
		pause = DefaultPauseDuration
	}

	next, healed := in.State.Heal(in.Now)
	res := Result{Next: next, Changed: healed}

	switch cmd := Normalize(in.Text); cmd {
	case Pause:
		res.Command = Pause
		res.Next = next.WithPause(in.Now, pause)
		res.Changed = true
		res.Reply = cat.Sprintf(i18n.KeyPaused, i18n.Timestamp(*res.Next.PausedUntil, in.Location))
	case Resume:
		res.Command = Resume
		res.Next = next.WithSession(in.Now, in.SessionDuration)
		if next.WelcomedAt == nil {
			res.PushEvidence = true
			res.Next = res.Next.WithWelcomed(in.Now)
		}
		res.Changed = true
		res.Reply = cat.Sprintf(i18n.KeySessionOpened, i18n.Duration(in.SessionDuration))
	default:
		res.Command = Menu
		res.Reply = cat.Sprintf(i18n.KeyMenu, i18n.Duration(in.SessionDuration), i18n.Duration(pause))
	}
	return res
}
