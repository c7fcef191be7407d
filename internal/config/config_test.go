package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const legacySettings = `{
  "instance_name": "Planta Norte",
  "instance_id": "cam-01",
  "alerts_folder": "/srv/alerts",
  "alerts_base_url": "https://alerts.example.com/img/",
  "twilio_account_sid": "AC123",
  "twilio_auth_token": "secret",
  "twilio_content_sid": "HX999",
  "twilio_from_whatsapp": "whatsapp:+14155238886",
  "recipients": ["whatsapp:+5491100000000", " whatsapp:+5491100000001 ", "whatsapp:+5491100000000"],
  "template_cooldown_hours": 2,
  "session_duration_hours": 12,
  "webhook_port": 5050
}`

func TestLoadLegacySettings(t *testing.T) {
	m := NewManager(writeFile(t, "Settings.json", legacySettings))
	m.SetEnviron(map[string]string{})
	s, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.InstanceName != "Planta Norte" || s.AlertsFolder != "/srv/alerts" {
		t.Fatalf("unexpected instance fields: %+v", s)
	}
	if !windowsEqual(s, 2*time.Hour, 12*time.Hour) {
		t.Fatalf("windows = %v/%v, want 2h/12h", s.TemplateCooldown, s.SessionDuration)
	}
	if s.PauseDuration != 6*time.Hour {
		t.Fatalf("PauseDuration = %v, want 6h", s.PauseDuration)
	}
	if got := len(s.Recipients); got != 2 {
		t.Fatalf("recipients = %v, want 2 deduplicated entries", s.Recipients)
	}
	if s.Webhook.Addr != ":5050" || s.Webhook.Path != "/webhook" {
		t.Fatalf("webhook = %+v", s.Webhook)
	}
	if err := s.RequireTwilio(); err != nil {
		t.Fatalf("RequireTwilio: %v", err)
	}
	if s.OffsetLabel != "UTC-3" {
		t.Fatalf("OffsetLabel = %q, want UTC-3", s.OffsetLabel)
	}
	if got := s.MediaURL("evento 1.jpg"); got != "https://alerts.example.com/img/evento%201.jpg" {
		t.Fatalf("MediaURL = %q", got)
	}
	if m.Current().InstanceID != "cam-01" {
		t.Fatal("Current should return committed settings")
	}
}

func TestLoadYAML(t *testing.T) {
	body := `
instance_name: Depósito
timezone_offset: "+5h30m"
template_cooldown: 30m
session_duration: 1h
recipients: ["whatsapp:+1555"]
storage:
  driver: sqlite
outbound:
  schedule: "@every 1m"
`
	m := NewManager(writeFile(t, "settings.yaml", body))
	m.SetEnviron(map[string]string{})
	s, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.OffsetLabel != "UTC+5:30" {
		t.Fatalf("OffsetLabel = %q", s.OffsetLabel)
	}
	if _, off := time.Date(2025, 1, 1, 0, 0, 0, 0, s.Location).Zone(); off != 5*3600+1800 {
		t.Fatalf("zone offset = %d", off)
	}
	if s.Storage.Driver != "sqlite" || s.Storage.Path != "./alertbot.db" {
		t.Fatalf("storage = %+v", s.Storage)
	}
	if s.Outbound.Schedule != "@every 1m" || s.Outbound.Concurrency != 4 {
		t.Fatalf("outbound = %+v", s.Outbound)
	}
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"unknown":  `{"instance_name":"x","nope":1}`,
		"trailing": `{"instance_name":"x"}{"instance_name":"y"}`,
	}
	for name, body := range tests {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeFile(t, "Settings.json", body))
			m.SetEnviron(map[string]string{})
			if _, err := m.Parse(); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestResolveCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		TemplateCooldown: "soon",
		Recipients:       []string{"ok", ""},
		Webhook:          WebhookConfig{Path: "hook"},
		Storage:          StorageConfig{Driver: "redis"},
	}
	_, err := Resolve(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"template_cooldown", "recipients[1]", "webhook.path", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestRequireTwilio(t *testing.T) {
	t.Parallel()
	s, err := Resolve(&Config{Twilio: TwilioConfig{AccountSID: "AC1"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	err = s.RequireTwilio()
	if !errors.Is(err, ErrTwilioMissing) {
		t.Fatalf("err = %v, want ErrTwilioMissing", err)
	}
	if !strings.Contains(err.Error(), "auth_token") || strings.Contains(err.Error(), "account_sid") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()
	cfg := &Config{Twilio: TwilioConfig{AuthToken: "file-token"}}
	err := ApplyEnv(cfg, map[string]string{
		"ALERTBOT_TWILIO_AUTH_TOKEN": "env-token",
		"PORT":                       "8081",
	})
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Twilio.AuthToken != "env-token" {
		t.Fatalf("AuthToken = %q", cfg.Twilio.AuthToken)
	}
	if cfg.Webhook.Addr != ":8081" {
		t.Fatalf("Webhook.Addr = %q", cfg.Webhook.Addr)
	}
}

func TestAllowed(t *testing.T) {
	t.Parallel()
	open := Settings{}
	if !open.Allowed("anyone") {
		t.Fatal("empty list should allow everyone")
	}
	closed := Settings{Recipients: []string{"whatsapp:+1555"}}
	if !closed.Allowed("whatsapp:+1555") || closed.Allowed("whatsapp:+1666") {
		t.Fatal("allow-list membership mismatch")
	}
}

func TestReloadPublishesOnlyOnChange(t *testing.T) {
	path := writeFile(t, "Settings.json", `{"recipients":["a"]}`)
	m := NewManager(path)
	m.SetEnviron(map[string]string{})
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	changed, err := m.Reload(context.Background())
	if err != nil || changed {
		t.Fatalf("Reload unchanged = %v, %v", changed, err)
	}

	if err := os.WriteFile(path, []byte(`{"recipients":["a","b"]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(ctx context.Context, s Settings) error {
		if len(s.Recipients) == 0 {
			return errors.New("no recipients")
		}
		return nil
	})
	changed, err = m.Reload(context.Background())
	if err != nil || !changed {
		t.Fatalf("Reload changed = %v, %v", changed, err)
	}
	select {
	case s := <-ch:
		if len(s.Recipients) != 2 {
			t.Fatalf("published recipients = %v", s.Recipients)
		}
	default:
		t.Fatal("expected published settings")
	}
	if got := SummarizeChange(Settings{Recipients: []string{"a"}}, m.Current()); len(got) == 0 || got[0] != "recipients" {
		t.Fatalf("SummarizeChange = %v", got)
	}
}

func TestWatchPicksUpWrites(t *testing.T) {
	path := writeFile(t, "Settings.json", `{"instance_name":"uno"}`)
	m := NewManager(path)
	m.SetEnviron(map[string]string{})
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Keep rewriting until the watcher is up and publishes.
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case s := <-ch:
			if s.InstanceName != "dos" {
				t.Fatalf("InstanceName = %q, want dos", s.InstanceName)
			}
			cancel()
			<-done
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte(`{"instance_name":"dos"}`), 0o600)
		case <-ctx.Done():
			t.Fatal("watcher never published the change")
		}
	}
}

func windowsEqual(s Settings, cooldown, session time.Duration) bool {
	return s.TemplateCooldown == cooldown && s.SessionDuration == session
}
