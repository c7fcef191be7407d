package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"alertbot/internal/evidence"
	logx "alertbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

// EvidenceSource peeks at the newest evidence before a run.
type EvidenceSource interface {
	Latest(ctx context.Context) (evidence.Event, error)
}

// Batch runs one outbound batch and returns the key of the evidence it used.
type Batch func(ctx context.Context) (eventKey string, err error)

// Trigger runs a Batch on a schedule, skipping ticks whose newest evidence
// was already notified.
type Trigger struct {
	spec  Spec
	src   EvidenceSource
	batch Batch
	loc   *time.Location
	log   logx.Logger

	mu      sync.Mutex
	lastKey string
}

func NewTrigger(spec Spec, src EvidenceSource, batch Batch, loc *time.Location, log logx.Logger) *Trigger {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Trigger{spec: spec, src: src, batch: batch, loc: loc, log: log.With(logx.String("comp", "schedule"))}
}

// Run starts the cron loop and blocks until ctx ends. Overlapping ticks are skipped.
func (t *Trigger) Run(ctx context.Context) error {
	cl := cronLogger{t.log}
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLocation(t.loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	job := cron.FuncJob(func() { t.Tick(ctx) })

	switch t.spec.Kind {
	case KindInterval:
		c.Schedule(cron.Every(t.spec.Every), job)
	default:
		if _, err := c.AddJob(t.spec.Cron, job); err != nil {
			return err
		}
	}
	c.Start()
	t.log.Info("schedule started", logx.String("spec", t.spec.String()), logx.String("tz", t.loc.String()))

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// Tick performs one scheduled check. It reports whether the batch ran.
func (t *Trigger) Tick(ctx context.Context) bool {
	ev, err := t.src.Latest(ctx)
	if err != nil {
		if errors.Is(err, evidence.ErrNoFolder) || errors.Is(err, evidence.ErrNoImages) {
			t.log.Debug("no evidence yet", logx.Err(err))
		} else {
			t.log.Warn("evidence check failed", logx.Err(err))
		}
		return false
	}

	t.mu.Lock()
	last := t.lastKey
	t.mu.Unlock()
	if ev.Key() == last {
		t.log.Debug("evidence unchanged; skipping", logx.String("image", ev.ImageRef))
		return false
	}

	key, err := t.batch(ctx)
	if err != nil {
		t.log.Warn("scheduled batch failed", logx.Err(err))
		return true
	}
	t.mu.Lock()
	t.lastKey = key
	t.mu.Unlock()
	return true
}

// Seed marks key as already notified, e.g. the evidence present at startup.
func (t *Trigger) Seed(key string) {
	t.mu.Lock()
	t.lastKey = key
	t.mu.Unlock()
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", keysAndValues))
}
