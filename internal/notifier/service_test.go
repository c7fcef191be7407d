package notifier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"alertbot/internal/config"
	"alertbot/internal/dispatch"
	"alertbot/internal/eventbus"
	"alertbot/internal/evidence"
	"alertbot/internal/state"
	"alertbot/internal/storage"
	"alertbot/internal/transport"
	logx "alertbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	ev      evidence.Event
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSource) Latest(ctx context.Context) (evidence.Event, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return evidence.Event{}, ctx.Err()
		}
	}
	return f.ev, f.err
}

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, cfg Config, src EvidenceSource, msg transport.Messenger, st storage.Store) (*Service, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	settings := config.Settings{
		InstanceName:  "Depósito",
		AlertsBaseURL: "https://cdn.example.com",
		Locale:        "es",
		Location:      time.FixedZone("UTC-3", -3*3600),
	}
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	s := New(cfg, Deps{
		Messenger: msg,
		Evidence:  src,
		Store:     st,
		Bus:       bus,
		Composer:  func() dispatch.Composer { return dispatch.NewComposer(settings) },
		Log:       logx.Nop(),
	})
	s.now = func() time.Time { return t0 }
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bus
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestPushSendsLatestEvidenceAndRecordsEvent(t *testing.T) {
	t.Parallel()
	src := &fakeSource{ev: evidence.Event{Label: "person", Timestamp: t0, ImageRef: "a.jpg"}}
	rec := &transport.Recorder{}
	prior := state.Recipient{SessionUntil: state.At(t0.Add(24 * time.Hour))}
	st := storage.NewMemoryFrom(state.Map{"whatsapp:+1": prior})
	s, bus := newTestService(t, Config{}, src, rec, st)
	events, unsub := bus.Subscribe(16)
	defer unsub()

	require.NoError(t, s.Enqueue(context.Background(), Job{Recipient: "whatsapp:+1", Reason: "welcome"}))
	waitEvent(t, events, eventbus.PushSent)

	calls := rec.CallsTo("whatsapp:+1")
	require.Len(t, calls, 1)
	assert.Equal(t, transport.KindSession, calls[0].Kind)
	assert.Equal(t, "https://cdn.example.com/a.jpg", calls[0].MediaURL)
	assert.Contains(t, calls[0].Body, "Persona")

	m, err := st.Load(context.Background())
	require.NoError(t, err)
	got := m.Get("whatsapp:+1")
	require.NotNil(t, got.LastEventSent)
	assert.True(t, got.LastEventSent.Equal(t0))
	assert.Nil(t, got.LastTemplateSent)
	assert.True(t, got.SessionUntil.Equal(*prior.SessionUntil))
}

func TestPushRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	rec := &transport.Recorder{Fail: func(transport.Call) error {
		if n.Add(1) < 3 {
			return errors.New("timeout")
		}
		return nil
	}}
	src := &fakeSource{ev: evidence.Event{ImageRef: "a.jpg", Timestamp: t0}}
	s, bus := newTestService(t, Config{RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}, src, rec, storage.NewMemory())
	events, unsub := bus.Subscribe(16)
	defer unsub()

	require.NoError(t, s.Enqueue(context.Background(), Job{Recipient: "r"}))
	e := waitEvent(t, events, eventbus.PushSent)
	assert.Equal(t, 3, e.Data.(eventbus.Delivery).Attempts)
}

func TestPushDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	rec := &transport.Recorder{Fail: func(transport.Call) error {
		n.Add(1)
		return transport.Permanent(errors.New("invalid number"))
	}}
	src := &fakeSource{ev: evidence.Event{ImageRef: "a.jpg", Timestamp: t0}}
	st := storage.NewMemory()
	s, bus := newTestService(t, Config{RetryMax: 3, RetryBase: time.Millisecond}, src, rec, st)
	events, unsub := bus.Subscribe(16)
	defer unsub()

	require.NoError(t, s.Enqueue(context.Background(), Job{Recipient: "r"}))
	waitEvent(t, events, eventbus.PushFailed)
	assert.Equal(t, int32(1), n.Load())
	m, _ := st.Load(context.Background())
	assert.True(t, m.Get("r").IsZero())
}

func TestPushWithoutEvidenceIsSkipped(t *testing.T) {
	t.Parallel()
	src := &fakeSource{err: evidence.ErrNoImages}
	rec := &transport.Recorder{}
	s, bus := newTestService(t, Config{}, src, rec, storage.NewMemory())
	events, unsub := bus.Subscribe(16)
	defer unsub()

	require.NoError(t, s.Enqueue(context.Background(), Job{Recipient: "r"}))
	e := waitEvent(t, events, eventbus.PushFailed)
	assert.Contains(t, e.Data.(eventbus.Delivery).Error, "no .jpg")
	assert.Empty(t, rec.Calls())
	require.Len(t, s.History(), 1)
}

func TestEnqueueQueueFullAndStopped(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		ev:      evidence.Event{ImageRef: "a.jpg", Timestamp: t0},
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	s, _ := newTestService(t, Config{Workers: 1, QueueSize: 1}, src, &transport.Recorder{}, storage.NewMemory())
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, Job{Recipient: "a"}))
	<-src.entered // worker holds job a
	require.NoError(t, s.Enqueue(ctx, Job{Recipient: "b"}))
	assert.ErrorIs(t, s.Enqueue(ctx, Job{Recipient: "c"}), ErrQueueFull)
	close(src.release)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	assert.ErrorIs(t, s.Enqueue(ctx, Job{Recipient: "d"}), ErrStopped)
}

func TestRetryDelayBounded(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, cfg.RetryMaxDelay)
	}
}
