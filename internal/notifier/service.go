package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"alertbot/internal/dispatch"
	"alertbot/internal/eventbus"
	rtsup "alertbot/internal/runtime/supervisor"
	"alertbot/internal/state"
	"alertbot/internal/storage"
	"alertbot/internal/transport"
	logx "alertbot/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrQueueFull = errors.New("push queue full")
	ErrStopped   = errors.New("push pipeline stopped")
)

// Deps are the collaborators of a Service. Composer is called per job so a
// config reload reaches queued pushes.
type Deps struct {
	Messenger transport.Messenger
	Evidence  EvidenceSource
	Store     storage.Store
	Bus       eventbus.Bus
	Composer  func() dispatch.Composer
	Log       logx.Logger
}

// Service implements an async push pipeline:
// queue + worker pool + rate limit + retry.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	deps    Deps
	log     logx.Logger
	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan Job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	hmu     sync.Mutex
	history []HistoryItem

	now func() time.Time
}

func New(cfg Config, deps Deps) *Service {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	s := &Service{
		deps: deps,
		log:  deps.Log.With(logx.String("comp", "push")),
		now:  time.Now,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 15 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	s.cfg = cfg
	burst := max(1, int(cfg.RatePerSec))
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
}

// Start launches the workers. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan Job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	sup, q, workers := s.sup, s.queue, s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("push.worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			if c.Err() != nil {
				return c.Err()
			}
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return nil
			}
			return errors.New("push worker exited unexpectedly")
		})
	}
	s.log.Info("push pipeline started", logx.Int("workers", workers), logx.Int("queue", cap(q)))
}

// Stop stops intake and drains the queue until ctx ends; remaining jobs are dropped.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight Enqueue calls finish before the queue closes.
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Enqueue hands a push to the workers without blocking.
func (s *Service) Enqueue(ctx context.Context, j Job) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = s.now()
	}
	select {
	case q <- j:
		s.log.Debug("push queued", logx.String("recipient", j.Recipient), logx.Int("queue_len", len(q)))
		return nil
	default:
		eventbus.Publish(s.deps.Bus, eventbus.PushDropped, eventbus.Delivery{
			Recipient: j.Recipient, Reason: j.Reason, At: s.now(), Error: ErrQueueFull.Error(),
		})
		return ErrQueueFull
	}
}

// History returns recent finished pushes, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(h HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, h)
	if len(s.history) > 100 {
		s.history = s.history[len(s.history)-100:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, j)
		}
	}
}

func (s *Service) deliver(ctx context.Context, j Job) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()
	d := s.deps
	log := s.log.With(logx.String("recipient", j.Recipient))

	ev, err := d.Evidence.Latest(ctx)
	if err != nil {
		// Nothing to push is not worth a retry.
		log.Warn("push skipped: no evidence available", logx.Err(err))
		s.finish(j, "", 0, err)
		return
	}
	comp := d.Composer()
	body, media := comp.WelcomeBody(ev), comp.MediaURL(ev)

	maxAttempts := 1 + cfg.RetryMax
	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		if err := lim.Wait(ctx); err != nil {
			s.finish(j, ev.ImageRef, attempts, err)
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := d.Messenger.SendSession(callCtx, j.Recipient, body, media)
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		log.Debug("push send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if transport.IsPermanent(err) || attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			s.finish(j, ev.ImageRef, attempts, ctx.Err())
			return
		}
	}
	if lastErr != nil {
		log.Warn("push failed", logx.Err(lastErr), logx.Int("attempts", attempts))
		s.finish(j, ev.ImageRef, attempts, lastErr)
		return
	}

	s.recordSent(ctx, j.Recipient, log)
	log.Info("push sent", logx.String("image", ev.ImageRef), logx.Int("attempts", attempts))
	s.finish(j, ev.ImageRef, attempts, nil)
}

// recordSent stores LastEventSent for the one recipient. Failures are logged only.
func (s *Service) recordSent(ctx context.Context, to string, log logx.Logger) {
	st := s.deps.Store
	if st == nil {
		return
	}
	m, err := st.Load(ctx)
	if err != nil {
		log.Warn("state load failed; recording push on empty state", logx.Err(err))
	}
	rec := m.Get(to).WithEventSent(s.now())
	if err := st.Save(ctx, state.Map{to: rec}); err != nil {
		log.Warn("state save failed after push", logx.Err(err))
	}
}

func (s *Service) finish(j Job, imageRef string, attempts int, err error) {
	now := s.now()
	h := HistoryItem{At: now, Recipient: j.Recipient, ImageRef: imageRef, Attempts: attempts}
	ev := eventbus.Delivery{Recipient: j.Recipient, Reason: j.Reason, ImageRef: imageRef, At: now, Attempts: attempts}
	typ := eventbus.PushSent
	if err != nil {
		h.Err = err.Error()
		ev.Error = err.Error()
		typ = eventbus.PushFailed
	}
	s.appendHistory(h)
	eventbus.Publish(s.deps.Bus, typ, ev)
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1; the delay is for the next attempt.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
