package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	logx "alertbot/pkg/logx"
)

const (
	DefaultInstanceName     = "Nombre por defecto"
	DefaultAlertsFolder     = "./alerts"
	DefaultTemplateCooldown = time.Hour
	DefaultSessionDuration  = 24 * time.Hour
	DefaultPauseDuration    = 6 * time.Hour
	DefaultOffset           = -3 * time.Hour
	DefaultLocale           = "es"
)

var ErrTwilioMissing = errors.New("twilio settings incomplete")

// Settings is the resolved, immutable configuration handed to every component.
// Build it with Resolve; never mutate a Settings after it is shared.
type Settings struct {
	InstanceName  string
	InstanceID    string
	AlertsFolder  string
	AlertsBaseURL string
	Locale        string

	// Location is a fixed zone; OffsetLabel is its display form ("UTC-3").
	Location    *time.Location
	OffsetLabel string

	TemplateCooldown time.Duration
	SessionDuration  time.Duration
	PauseDuration    time.Duration

	Recipients []string

	Twilio    TwilioSettings
	Webhook   WebhookSettings
	FilesAddr string
	Storage   StorageSettings
	Logging   logx.Config
	Outbound  OutboundSettings
	Push      PushSettings
}

type TwilioSettings struct {
	AccountSID string
	AuthToken  string
	ContentSID string
	From       string
}

type WebhookSettings struct {
	Addr         string
	Path         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StorageSettings struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

type OutboundSettings struct {
	Concurrency int
	RatePerSec  float64
	SendTimeout time.Duration
	Schedule    string
}

type PushSettings struct {
	Workers       int
	QueueSize     int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Allowed reports whether sender may use the inbound command endpoint.
// An empty recipient list allows everyone.
func (s Settings) Allowed(sender string) bool {
	if len(s.Recipients) == 0 {
		return true
	}
	return slices.Contains(s.Recipients, strings.TrimSpace(sender))
}

// MediaURL returns the public URL of an evidence image, or "" when no base URL is configured.
func (s Settings) MediaURL(imageRef string) string {
	if s.AlertsBaseURL == "" || imageRef == "" {
		return ""
	}
	return strings.TrimRight(s.AlertsBaseURL, "/") + "/" + url.PathEscape(imageRef)
}

// RequireTwilio fails when the provider credentials needed to send are missing.
func (s Settings) RequireTwilio() error {
	var missing []string
	if s.Twilio.AccountSID == "" {
		missing = append(missing, "account_sid")
	}
	if s.Twilio.AuthToken == "" {
		missing = append(missing, "auth_token")
	}
	if s.Twilio.ContentSID == "" {
		missing = append(missing, "content_sid")
	}
	if s.Twilio.From == "" {
		missing = append(missing, "from")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrTwilioMissing, strings.Join(missing, ", "))
	}
	return nil
}

// Resolve validates cfg and applies defaults. All problems are reported together.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, errors.New("config is nil")
	}
	var errs []error
	collect := func(d time.Duration, err error) time.Duration {
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	s := Settings{
		InstanceName:  firstNonEmpty(cfg.InstanceName, DefaultInstanceName),
		InstanceID:    strings.TrimSpace(cfg.InstanceID),
		AlertsFolder:  firstNonEmpty(cfg.AlertsFolder, DefaultAlertsFolder),
		AlertsBaseURL: strings.TrimSpace(cfg.AlertsBaseURL),
		Locale:        firstNonEmpty(cfg.Locale, DefaultLocale),
	}
	if s.AlertsBaseURL != "" {
		if u, err := url.Parse(s.AlertsBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("alerts_base_url: must be an absolute URL, got %q", s.AlertsBaseURL))
		}
	}

	off := collect(parseOffset("timezone_offset", cfg.TimezoneOffset, DefaultOffset))
	s.OffsetLabel = offsetLabel(off)
	s.Location = time.FixedZone(s.OffsetLabel, int(off/time.Second))

	s.TemplateCooldown = collect(resolveWindow("template_cooldown", cfg.TemplateCooldown, cfg.TemplateCooldownHours, DefaultTemplateCooldown))
	s.SessionDuration = collect(resolveWindow("session_duration", cfg.SessionDuration, cfg.SessionDurationHours, DefaultSessionDuration))
	s.PauseDuration = collect(ParseDurationOrDefault("commands.pause_duration", cfg.Commands.PauseDuration, DefaultPauseDuration))

	seen := map[string]bool{}
	for i, r := range cfg.Recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			errs = append(errs, fmt.Errorf("recipients[%d]: empty identifier", i))
			continue
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		s.Recipients = append(s.Recipients, r)
	}

	s.Twilio = TwilioSettings{
		AccountSID: firstNonEmpty(cfg.Twilio.AccountSID, cfg.TwilioAccountSID),
		AuthToken:  firstNonEmpty(cfg.Twilio.AuthToken, cfg.TwilioAuthToken),
		ContentSID: firstNonEmpty(cfg.Twilio.ContentSID, cfg.TwilioContentSID),
		From:       firstNonEmpty(cfg.Twilio.From, cfg.TwilioFromWhatsApp),
	}

	addr := strings.TrimSpace(cfg.Webhook.Addr)
	if addr == "" {
		addr = ":5000"
		if cfg.WebhookPort > 0 {
			addr = ":" + strconv.Itoa(cfg.WebhookPort)
		}
	}
	path := firstNonEmpty(cfg.Webhook.Path, "/webhook")
	if !strings.HasPrefix(path, "/") {
		errs = append(errs, fmt.Errorf("webhook.path: must start with '/', got %q", path))
	}
	s.Webhook = WebhookSettings{
		Addr:         addr,
		Path:         path,
		ReadTimeout:  collect(ParseDurationOrDefault("webhook.read_timeout", cfg.Webhook.ReadTimeout, 10*time.Second)),
		WriteTimeout: collect(ParseDurationOrDefault("webhook.write_timeout", cfg.Webhook.WriteTimeout, 10*time.Second)),
	}
	s.FilesAddr = firstNonEmpty(cfg.Files.Addr, ":8880")

	driver := strings.ToLower(firstNonEmpty(cfg.Storage.Driver, "file"))
	switch driver {
	case "file", "sqlite", "sqlite3", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", driver))
	}
	storePath := strings.TrimSpace(cfg.Storage.Path)
	if storePath == "" {
		switch driver {
		case "sqlite", "sqlite3":
			storePath = "./alertbot.db"
		default:
			storePath = "./user_state.json"
		}
	}
	s.Storage = StorageSettings{
		Driver:      driver,
		Path:        storePath,
		BusyTimeout: collect(ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)),
	}

	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	s.Logging = logx.Config{
		Level:   firstNonEmpty(cfg.Logging.Level, "info"),
		Console: console,
		JSON:    cfg.Logging.JSON,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}

	s.Outbound = OutboundSettings{
		Concurrency: cfg.Outbound.Concurrency,
		RatePerSec:  cfg.Outbound.RatePerSec,
		SendTimeout: collect(ParseDurationOrDefault("outbound.send_timeout", cfg.Outbound.SendTimeout, 15*time.Second)),
		Schedule:    strings.TrimSpace(cfg.Outbound.Schedule),
	}
	if s.Outbound.Concurrency <= 0 {
		s.Outbound.Concurrency = 4
	}
	if s.Outbound.RatePerSec <= 0 {
		s.Outbound.RatePerSec = 1
	}

	retryMax := 2
	if cfg.Push.RetryMax != nil {
		retryMax = *cfg.Push.RetryMax
		if retryMax < 0 {
			errs = append(errs, errors.New("push.retry_max: must be >= 0"))
		}
	}
	s.Push = PushSettings{
		Workers:       cfg.Push.Workers,
		QueueSize:     cfg.Push.QueueSize,
		RetryMax:      retryMax,
		RetryBase:     collect(ParseDurationOrDefault("push.retry_base", cfg.Push.RetryBase, time.Second)),
		RetryMaxDelay: collect(ParseDurationOrDefault("push.retry_max_delay", cfg.Push.RetryMaxDelay, 15*time.Second)),
	}
	if s.Push.Workers <= 0 {
		s.Push.Workers = 2
	}
	if s.Push.QueueSize <= 0 {
		s.Push.QueueSize = 64
	}

	if err := errors.Join(errs...); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
