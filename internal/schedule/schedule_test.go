package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"alertbot/internal/evidence"
	logx "alertbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in    string
		kind  Kind
		cron  string
		every time.Duration
		err   bool
	}{
		{in: "*/1 * * * *", kind: KindCron, cron: "*/1 * * * *"},
		{in: "@hourly", kind: KindCron, cron: "@hourly"},
		{in: "@every 1m", kind: KindInterval, every: time.Minute},
		{in: "90s", kind: KindInterval, every: 90 * time.Second},
		{in: "00:05", kind: KindInterval, every: 5 * time.Minute},
		{in: "every: 2h30m", kind: KindInterval, every: 150 * time.Minute},
		{in: "cron: 0 * * * *", kind: KindCron, cron: "0 * * * *"},
		{in: "", err: true},
		{in: "cron:", err: true},
		{in: "10ms", err: true},
		{in: "01:75", err: true},
		{in: "soon", err: true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.kind, got.Kind, tt.in)
		assert.Equal(t, tt.cron, got.Cron, tt.in)
		assert.Equal(t, tt.every, got.Every, tt.in)
	}
}

type stepSource struct {
	ev  evidence.Event
	err error
}

func (s *stepSource) Latest(context.Context) (evidence.Event, error) { return s.ev, s.err }

func TestTickSkipsUnchangedEvidence(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	src := &stepSource{ev: evidence.Event{ImageRef: "a.jpg", Timestamp: at}}
	var runs int
	batch := func(ctx context.Context) (string, error) {
		runs++
		ev, _ := src.Latest(ctx)
		return ev.Key(), nil
	}
	tr := NewTrigger(Spec{Kind: KindInterval, Every: time.Minute}, src, batch, time.UTC, logx.Nop())
	ctx := context.Background()

	assert.True(t, tr.Tick(ctx))
	assert.False(t, tr.Tick(ctx))

	// Same name rewritten later is a new event.
	src.ev.Timestamp = at.Add(time.Second)
	assert.True(t, tr.Tick(ctx))
	assert.Equal(t, 2, runs)

	src.err = evidence.ErrNoImages
	assert.False(t, tr.Tick(ctx))
}

func TestTickRetriesAfterFailedBatch(t *testing.T) {
	t.Parallel()
	src := &stepSource{ev: evidence.Event{ImageRef: "a.jpg", Timestamp: time.Unix(1, 0)}}
	fail := true
	batch := func(context.Context) (string, error) {
		if fail {
			return "", errors.New("boom")
		}
		return src.ev.Key(), nil
	}
	tr := NewTrigger(Spec{Kind: KindInterval, Every: time.Minute}, src, batch, nil, logx.Nop())
	assert.True(t, tr.Tick(context.Background()))
	fail = false
	assert.True(t, tr.Tick(context.Background()))
	assert.False(t, tr.Tick(context.Background()))
}

func TestSeedSuppressesStartupEvidence(t *testing.T) {
	t.Parallel()
	src := &stepSource{ev: evidence.Event{ImageRef: "a.jpg", Timestamp: time.Unix(1, 0)}}
	tr := NewTrigger(Spec{Kind: KindInterval, Every: time.Minute}, src, func(context.Context) (string, error) {
		t.Fatal("batch must not run")
		return "", nil
	}, nil, logx.Nop())
	tr.Seed(src.ev.Key())
	assert.False(t, tr.Tick(context.Background()))
}

func TestRunRejectsBadCron(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(Spec{Kind: KindCron, Cron: "not a cron"}, &stepSource{}, nil, nil, logx.Nop())
	assert.Error(t, tr.Run(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	tr := NewTrigger(Spec{Kind: KindInterval, Every: time.Hour}, &stepSource{}, nil, nil, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
