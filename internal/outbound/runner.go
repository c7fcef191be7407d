// Package outbound runs one notification batch: the newest evidence event is
// evaluated against every configured recipient and the resulting messages are
// sent concurrently.
package outbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alertbot/internal/config"
	"alertbot/internal/dispatch"
	"alertbot/internal/eventbus"
	"alertbot/internal/evidence"
	"alertbot/internal/state"
	"alertbot/internal/storage"
	"alertbot/internal/transport"
	logx "alertbot/pkg/logx"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// EvidenceSource yields the event a batch notifies about.
type EvidenceSource interface {
	Latest(ctx context.Context) (evidence.Event, error)
}

type Deps struct {
	Store     storage.Store
	Messenger transport.Messenger
	Evidence  EvidenceSource
	Bus       eventbus.Bus
	Log       logx.Logger
}

// Summary counts the outcome of one batch.
type Summary struct {
	RunID    string
	ImageRef string
	// EventKey identifies the evidence version the batch notified about.
	EventKey  string
	Templates int
	Sessions  int
	Skipped   int
	Failed    int
	Healed    int
	Duration  time.Duration
	// SaveErr is set when persisting the batch failed; deliveries already happened.
	SaveErr error
}

func (s Summary) String() string {
	return fmt.Sprintf("templates=%d sessions=%d skipped=%d failed=%d", s.Templates, s.Sessions, s.Skipped, s.Failed)
}

type Runner struct {
	settings config.Settings
	composer dispatch.Composer
	deps     Deps
	log      logx.Logger
	now      func() time.Time
}

func NewRunner(s config.Settings, deps Deps) *Runner {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	return &Runner{
		settings: s,
		composer: dispatch.NewComposer(s),
		deps:     deps,
		log:      deps.Log.With(logx.String("comp", "outbound")),
		now:      time.Now,
	}
}

type outcome struct {
	id      string
	dec     dispatch.Decision
	err     error
	persist state.Recipient
	dirty   bool
}

// Run executes one batch. Only evidence failures are returned as errors;
// per-recipient send failures are counted in the Summary.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	log := r.log.With(logx.String("run_id", sum.RunID))

	ev, err := r.deps.Evidence.Latest(ctx)
	if err != nil {
		return sum, fmt.Errorf("latest evidence: %w", err)
	}
	sum.ImageRef, sum.EventKey = ev.ImageRef, ev.Key()
	log.Info("batch started",
		logx.String("image", ev.ImageRef),
		logx.String("label", ev.Label),
		logx.Int("recipients", len(r.settings.Recipients)))

	current, err := r.deps.Store.Load(ctx)
	if err != nil {
		log.Warn("state unavailable; evaluating from empty state", logx.Err(err))
	}
	if len(r.settings.Recipients) == 0 {
		log.Warn("no recipients configured")
	}

	b := &batch{
		runID:   sum.RunID,
		log:     log,
		limiter: newLimiter(r.settings.Outbound.RatePerSec),
		ev:      ev,
		now:     r.now(),
		policy:  dispatch.Policy{TemplateCooldown: r.settings.TemplateCooldown, SessionDuration: r.settings.SessionDuration},
	}

	var (
		mu       sync.Mutex
		outcomes []outcome
	)
	var g errgroup.Group
	g.SetLimit(max(1, r.settings.Outbound.Concurrency))
	for _, id := range r.settings.Recipients {
		g.Go(func() error {
			o := r.deliver(ctx, b, id, current.Get(id))
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	dirty := state.Map{}
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			sum.Failed++
		case o.dec.Action == dispatch.SendTemplate:
			sum.Templates++
		case o.dec.Action == dispatch.SendSession:
			sum.Sessions++
		default:
			sum.Skipped++
		}
		if o.dec.Healed {
			sum.Healed++
		}
		if o.dirty {
			dirty[o.id] = o.persist
		}
	}
	if err := r.deps.Store.Save(ctx, dirty); err != nil {
		sum.SaveErr = err
		log.Warn("state save failed", logx.Int("records", len(dirty)), logx.Err(err))
	}

	sum.Duration = time.Since(start)
	log.Info("batch finished "+sum.String(),
		logx.Int("templates", sum.Templates),
		logx.Int("sessions", sum.Sessions),
		logx.Int("skipped", sum.Skipped),
		logx.Int("failed", sum.Failed),
		logx.Int("healed", sum.Healed),
		logx.Duration("took", sum.Duration))
	return sum, nil
}

// batch is the state shared by the recipients of one run.
type batch struct {
	runID   string
	log     logx.Logger
	limiter *rate.Limiter
	noMedia sync.Once
	ev      evidence.Event
	now     time.Time
	policy  dispatch.Policy
}

func (r *Runner) deliver(ctx context.Context, b *batch, id string, st state.Recipient) outcome {
	log := b.log.With(logx.String("recipient", id))
	ev := b.ev
	d := dispatch.Evaluate(st, b.now, b.policy)
	o := outcome{id: id, dec: d}
	report := eventbus.Delivery{Recipient: id, RunID: b.runID, Reason: d.Reason, ImageRef: ev.ImageRef, At: b.now}

	if d.Action == dispatch.Skip {
		o.persist, o.dirty = d.Persist(false)
		log.Debug("skipped", logx.String("reason", d.Reason))
		eventbus.Publish(r.deps.Bus, eventbus.DispatchSkipped, report)
		return o
	}

	if err := b.limiter.Wait(ctx); err != nil {
		o.err = err
	} else {
		callCtx, cancel := context.WithTimeout(ctx, sendTimeout(r.settings.Outbound.SendTimeout))
		switch d.Action {
		case dispatch.SendSession:
			media := r.composer.MediaURL(ev)
			if media == "" {
				b.noMedia.Do(func() { log.Warn("alerts_base_url not set; session alerts are sent without image") })
			}
			_, o.err = r.deps.Messenger.SendSession(callCtx, id, r.composer.SessionBody(ev), media)
		case dispatch.SendTemplate:
			_, o.err = r.deps.Messenger.SendTemplate(callCtx, id, r.composer.TemplateVars(ev))
		}
		cancel()
	}

	o.persist, o.dirty = d.Persist(o.err == nil)
	if o.err != nil {
		report.Error = o.err.Error()
		log.Warn("send failed", logx.String("kind", d.Action.String()), logx.Err(o.err))
		eventbus.Publish(r.deps.Bus, eventbus.DispatchFailed, report)
		return o
	}
	log.Info("sent", logx.String("kind", d.Action.String()))
	typ := eventbus.TemplateSent
	if d.Action == dispatch.SendSession {
		typ = eventbus.SessionSent
	}
	eventbus.Publish(r.deps.Bus, typ, report)
	return o
}

// newLimiter paces sends across the batch; a non-positive rate means unpaced.
func newLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSec), max(1, int(perSec)))
}

func sendTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 15 * time.Second
	}
	return d
}
