// Package webhook serves the inbound command endpoint called by the messaging
// provider for every message a recipient sends.
//
// The endpoint always answers 200 with TwiML once the sender is known, even
// when state could not be saved, so the provider never retries a delivery.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"alertbot/internal/command"
	"alertbot/internal/config"
	"alertbot/internal/eventbus"
	"alertbot/internal/i18n"
	"alertbot/internal/notifier"
	"alertbot/internal/state"
	"alertbot/internal/storage"
	logx "alertbot/pkg/logx"
)

// Pusher queues the welcome push.
type Pusher interface {
	Enqueue(ctx context.Context, j notifier.Job) error
}

type Deps struct {
	// Settings returns the live configuration; it is read once per request.
	Settings func() config.Settings
	Store    storage.Store
	Push     Pusher
	Bus      eventbus.Bus
	Log      logx.Logger
}

type Handler struct {
	deps Deps
	log  logx.Logger
	now  func() time.Time
	// storeTimeout bounds each store call; the request context is not used so
	// a client hang-up cannot abort a save.
	storeTimeout time.Duration
}

func NewHandler(d Deps) *Handler {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Handler{
		deps:         d,
		log:          d.Log.With(logx.String("comp", "webhook")),
		now:          time.Now,
		storeTimeout: 5 * time.Second,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w}
	defer func() {
		if p := recover(); p != nil {
			h.log.Error("webhook panic recovered", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
			if !sw.wrote {
				writeTwiML(sw, "")
			}
		}
	}()

	if err := r.ParseForm(); err != nil {
		http.Error(sw, "malformed form body", http.StatusBadRequest)
		return
	}
	from := strings.TrimSpace(r.PostFormValue("From"))
	if from == "" {
		http.Error(sw, "missing From", http.StatusBadRequest)
		return
	}
	body := r.PostFormValue("Body")

	reply := h.handle(r.Context(), from, body)
	writeTwiML(sw, reply)
}

func (h *Handler) handle(reqCtx context.Context, from, body string) string {
	s := h.deps.Settings()
	now := h.now()
	log := h.log.With(logx.String("from", from))

	if !s.Allowed(from) {
		log.Info("ignoring sender outside recipient list")
		eventbus.Publish(h.deps.Bus, eventbus.CommandIgnored, eventbus.Command{Recipient: from, At: now})
		return ""
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), h.storeTimeout)
	defer cancel()

	current, err := h.deps.Store.Load(ctx)
	if err != nil {
		log.Warn("state load failed; using empty state", logx.Err(err))
	}

	res := command.Process(command.Input{
		State:           current.Get(from),
		Now:             now,
		Text:            body,
		Sender:          from,
		Allowed:         true,
		SessionDuration: s.SessionDuration,
		PauseDuration:   s.PauseDuration,
		Catalog:         i18n.New(s.Locale),
		Location:        s.Location,
	})

	report := eventbus.Command{Recipient: from, Command: res.Command, At: now}
	if res.Changed {
		if err := h.deps.Store.Save(ctx, state.Map{from: res.Next}); err != nil {
			log.Warn("state save failed; replying anyway", logx.String("command", res.Command), logx.Err(err))
			report.Error = err.Error()
		} else {
			report.Persisted = true
		}
	}
	log.Info("command handled", logx.String("command", res.Command), logx.Bool("changed", res.Changed), logx.Bool("push", res.PushEvidence))
	eventbus.Publish(h.deps.Bus, eventbus.CommandApplied, report)

	if res.PushEvidence && h.deps.Push != nil {
		err := h.deps.Push.Enqueue(ctx, notifier.Job{Recipient: from, Reason: "welcome", EnqueuedAt: now})
		switch {
		case errors.Is(err, notifier.ErrQueueFull):
			log.Warn("welcome push dropped: queue full")
		case err != nil:
			log.Warn("welcome push not queued", logx.Err(err))
		}
	}
	return res.Reply
}

type statusWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *statusWriter) WriteHeader(code int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}
