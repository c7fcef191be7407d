package command

import (
	"strings"
	"testing"
	"time"

	"alertbot/internal/dispatch"
	"alertbot/internal/i18n"
	"alertbot/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0     = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	utc3   = time.FixedZone("UTC-3", -3*3600)
	policy = dispatch.Policy{TemplateCooldown: time.Hour, SessionDuration: 24 * time.Hour}
)

func input(st state.Recipient, now time.Time, text string) Input {
	return Input{
		State:           st,
		Now:             now,
		Text:            text,
		Sender:          "whatsapp:+1555",
		Allowed:         true,
		SessionDuration: 24 * time.Hour,
		PauseDuration:   DefaultPauseDuration,
		Catalog:         i18n.New("es"),
		Location:        utc3,
	}
}

func TestMenuVariants(t *testing.T) {
	t.Parallel()
	menu := Process(input(state.Recipient{}, t0, "MENU")).Reply
	require.NotEmpty(t, menu)
	for _, text := range []string{"", "   ", "menu", "Ayuda", "help", "hola", "parar ya"} {
		text := text
		t.Run(text, func(t *testing.T) {
			t.Parallel()
			st := state.Recipient{LastTemplateSent: state.At(t0.Add(-time.Minute))}
			res := Process(input(st, t0, text))
			assert.Equal(t, Menu, res.Command)
			assert.Equal(t, menu, res.Reply)
			assert.False(t, res.Changed)
			assert.False(t, res.PushEvidence)
			assert.True(t, res.Next.Equal(st))
		})
	}
}

func TestPauseSetsSixHours(t *testing.T) {
	t.Parallel()
	res := Process(input(state.Recipient{}, t0, " parar "))
	assert.Equal(t, Pause, res.Command)
	assert.True(t, res.Changed)
	assert.True(t, res.Next.Equal(state.Recipient{Paused: true, PausedUntil: state.At(t0.Add(6 * time.Hour))}))
	assert.True(t, strings.Contains(res.Reply, "2025-03-10 15:00 UTC-3"), res.Reply)

	d := dispatch.Evaluate(res.Next, t0.Add(time.Minute), policy)
	assert.Equal(t, dispatch.Skip, d.Action)
}

func TestPauseDurationConfigurable(t *testing.T) {
	t.Parallel()
	in := input(state.Recipient{}, t0, "PARAR")
	in.PauseDuration = 30 * time.Minute
	res := Process(in)
	require.NotNil(t, res.Next.PausedUntil)
	assert.True(t, res.Next.PausedUntil.Equal(t0.Add(30*time.Minute)))
}

func TestPauseThenResumeRoundTrip(t *testing.T) {
	t.Parallel()
	paused := Process(input(state.Recipient{}, t0, "PARAR")).Next
	assert.Equal(t, dispatch.Skip, dispatch.Evaluate(paused, t0.Add(5*time.Hour), policy).Action)

	res := Process(input(paused, t0.Add(time.Hour), "alertas"))
	assert.Equal(t, Resume, res.Command)
	assert.True(t, res.PushEvidence)
	assert.False(t, res.Next.Paused)
	assert.Nil(t, res.Next.PausedUntil)
	require.NotNil(t, res.Next.SessionUntil)
	assert.True(t, res.Next.SessionUntil.Equal(t0.Add(25*time.Hour)))
	assert.True(t, strings.Contains(res.Reply, "24h"), res.Reply)

	d := dispatch.Evaluate(res.Next, t0.Add(time.Hour), policy)
	assert.Equal(t, dispatch.SendSession, d.Action)
}

func TestResumeWithinOpenSessionDoesNotPush(t *testing.T) {
	t.Parallel()
	st := state.Recipient{
		SessionUntil:     state.At(t0.Add(time.Hour)),
		LastTemplateSent: state.At(t0.Add(-time.Hour)),
		WelcomedAt:       state.At(t0.Add(-2 * time.Hour)),
	}
	res := Process(input(st, t0, "ALERTAS"))
	assert.False(t, res.PushEvidence)
	assert.True(t, res.Next.SessionUntil.Equal(t0.Add(24*time.Hour)))
	assert.True(t, res.Next.LastTemplateSent.Equal(*st.LastTemplateSent))
	assert.True(t, res.Next.WelcomedAt.Equal(*st.WelcomedAt))
}

func TestResumeKeepsTemplateTimestamp(t *testing.T) {
	t.Parallel()
	res := Process(input(state.Recipient{}, t0, "ALERTAS"))
	assert.True(t, res.PushEvidence)
	assert.Nil(t, res.Next.LastTemplateSent)
	require.NotNil(t, res.Next.WelcomedAt)
	assert.True(t, res.Next.WelcomedAt.Equal(t0))
}

func TestWelcomePushIsOneTime(t *testing.T) {
	t.Parallel()
	first := Process(input(state.Recipient{}, t0, "ALERTAS"))
	require.True(t, first.PushEvidence)

	// The session lapses; reopening it does not repeat the push.
	later := t0.Add(48 * time.Hour)
	require.False(t, first.Next.SessionActive(later))
	again := Process(input(first.Next, later, "alertas"))
	assert.Equal(t, Resume, again.Command)
	assert.False(t, again.PushEvidence)
	assert.True(t, again.Next.SessionUntil.Equal(later.Add(24*time.Hour)))
}

func TestUnauthorizedSenderIgnored(t *testing.T) {
	t.Parallel()
	st := state.Recipient{Paused: true, PausedUntil: state.At(t0.Add(-time.Hour))}
	in := input(st, t0, "ALERTAS")
	in.Allowed = false
	res := Process(in)
	assert.True(t, res.Ignored)
	assert.Empty(t, res.Reply)
	assert.False(t, res.Changed)
	assert.False(t, res.PushEvidence)
	assert.True(t, res.Next.Equal(st))
}

func TestMenuHealsExpiredPause(t *testing.T) {
	t.Parallel()
	st := state.Recipient{Paused: true, PausedUntil: state.At(t0.Add(-time.Minute))}
	res := Process(input(st, t0, ""))
	assert.Equal(t, Menu, res.Command)
	assert.True(t, res.Changed)
	assert.True(t, res.Next.IsZero())
}
