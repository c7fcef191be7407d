package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"alertbot/internal/config"
	"alertbot/internal/state"
	"alertbot/internal/storage"
	"alertbot/internal/transport"
	logx "alertbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir       string
	cfgPath   string
	statePath string
}

func newFixture(t *testing.T, extra string) fixture {
	t.Helper()
	dir := t.TempDir()
	alerts := filepath.Join(dir, "alerts")
	require.NoError(t, os.Mkdir(alerts, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(alerts, "cam1.jpg"), []byte("no exif here"), 0o600))

	statePath := filepath.Join(dir, "user_state.json")
	body := `{
  "instance_name": "Planta Norte",
  "alerts_folder": "` + filepath.ToSlash(alerts) + `",
  "recipients": ["whatsapp:+5491100000000", "whatsapp:+5491100000001"],
  "storage": {"driver": "file", "path": "` + filepath.ToSlash(statePath) + `"},
  "logging": {"level": "error", "console": false, "file": {"enabled": false}}` + extra + `
}`
	cfgPath := filepath.Join(dir, "Settings.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return fixture{dir: dir, cfgPath: cfgPath, statePath: statePath}
}

func TestDryRunNotifyRecordsWithoutPersisting(t *testing.T) {
	f := newFixture(t, "")
	a, err := New(Options{ConfigPath: f.cfgPath, DryRun: true, Environ: map[string]string{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	sum, err := a.Notify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Templates)
	assert.Equal(t, "cam1.jpg", sum.ImageRef)

	calls := a.DryRunCalls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, transport.KindTemplate, c.Kind)
	}

	// The memory copy remembers the sends; the file on disk does not.
	m, err := a.States(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, m.Get("whatsapp:+5491100000000").LastTemplateSent)
	_, statErr := os.Stat(f.statePath)
	assert.True(t, os.IsNotExist(statErr), "dry run must not write the state document")
}

func TestDryRunStartsFromPersistedState(t *testing.T) {
	f := newFixture(t, "")
	st, err := storage.Open(storage.Config{Driver: "file", Path: f.statePath}, logx.Nop())
	require.NoError(t, err)
	recent := time.Now().Add(-time.Minute)
	require.NoError(t, st.Save(context.Background(), state.Map{
		"whatsapp:+5491100000000": {LastTemplateSent: &recent},
	}))
	require.NoError(t, st.Close())

	a, err := New(Options{ConfigPath: f.cfgPath, DryRun: true, Environ: map[string]string{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	sum, err := a.Notify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Templates)
	assert.Equal(t, 1, sum.Skipped)
}

func TestNotifyWithoutCredentialsFails(t *testing.T) {
	f := newFixture(t, "")
	a, err := New(Options{ConfigPath: f.cfgPath, Environ: map[string]string{}})
	require.NoError(t, err, "commands that never send must not need credentials")
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Notify(context.Background())
	require.ErrorIs(t, err, config.ErrTwilioMissing)

	m, err := a.States(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestNewRejectsMissingConfig(t *testing.T) {
	_, err := New(Options{ConfigPath: filepath.Join(t.TempDir(), "missing.json"), Environ: map[string]string{}})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	full := config.Settings{Twilio: config.TwilioSettings{AccountSID: "AC1", AuthToken: "t", ContentSID: "HX1", From: "whatsapp:+1"}}
	require.NoError(t, validate(full, false))
	require.ErrorIs(t, validate(config.Settings{}, false), config.ErrTwilioMissing)
	require.NoError(t, validate(config.Settings{}, true))

	bad := full
	bad.Outbound.Schedule = "every:banana"
	require.Error(t, validate(bad, false))

	ok := full
	ok.Outbound.Schedule = "@every 1m"
	require.NoError(t, validate(ok, false))
}

func TestScheduleSpecUnset(t *testing.T) {
	_, scheduled, err := scheduleSpec(config.Settings{})
	require.NoError(t, err)
	assert.False(t, scheduled)
}

func TestSystemdWatchdogPings(t *testing.T) {
	var (
		mu     sync.Mutex
		states []string
	)
	sd := newSystemd(logx.Nop())
	sd.notify = func(_ bool, s string) (bool, error) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
		return true, nil
	}
	sd.interval = func() time.Duration { return 10 * time.Millisecond }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sd.watchdog(ctx)
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	sd.stopping()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "WATCHDOG=1", states[0])
	assert.Equal(t, "STOPPING=1", states[len(states)-1])
}

func TestSystemdWatchdogDisabled(t *testing.T) {
	sd := newSystemd(logx.Nop())
	sd.interval = func() time.Duration { return 0 }
	require.NoError(t, sd.watchdog(context.Background()))
}
