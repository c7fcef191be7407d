package config

// Config is the on-disk settings document (Settings.json or YAML).
//
// All durations are Go duration strings (e.g. "90s", "1h", "-3h").
// Flat twilio_* keys and *_hours numbers are the legacy layout and are still
// accepted; the nested blocks win when both are set.
type Config struct {
	InstanceName  string `json:"instance_name"`
	InstanceID    string `json:"instance_id,omitempty"`
	AlertsFolder  string `json:"alerts_folder"`
	AlertsBaseURL string `json:"alerts_base_url,omitempty"`

	// TimezoneOffset is the fixed offset used to render event times (default "-3h").
	TimezoneOffset string `json:"timezone_offset,omitempty"`
	Locale         string `json:"locale,omitempty"`

	TemplateCooldown string `json:"template_cooldown,omitempty"`
	SessionDuration  string `json:"session_duration,omitempty"`

	// Legacy numeric knobs.
	TemplateCooldownHours *float64 `json:"template_cooldown_hours,omitempty"`
	SessionDurationHours  *float64 `json:"session_duration_hours,omitempty"`

	Recipients []string `json:"recipients"`

	Twilio TwilioConfig `json:"twilio"`

	// Legacy flat Twilio keys.
	TwilioAccountSID   string `json:"twilio_account_sid,omitempty"`
	TwilioAuthToken    string `json:"twilio_auth_token,omitempty"`
	TwilioContentSID   string `json:"twilio_content_sid,omitempty"`
	TwilioFromWhatsApp string `json:"twilio_from_whatsapp,omitempty"`
	WebhookPort        int    `json:"webhook_port,omitempty"`

	Webhook  WebhookConfig  `json:"webhook"`
	Files    FilesConfig    `json:"files"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Outbound OutboundConfig `json:"outbound"`
	Push     PushConfig     `json:"push"`
	Commands CommandsConfig `json:"commands"`
}

type TwilioConfig struct {
	AccountSID string `json:"account_sid,omitempty"`
	AuthToken  string `json:"auth_token,omitempty"` // never logged
	ContentSID string `json:"content_sid,omitempty"`
	From       string `json:"from,omitempty"`
}

// WebhookConfig controls the inbound command server.
//
// Defaults: addr ":5000", path "/webhook", read_timeout "10s", write_timeout "10s".
type WebhookConfig struct {
	Addr         string `json:"addr,omitempty"`
	Path         string `json:"path,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// FilesConfig controls the static evidence server (default addr ":8880").
type FilesConfig struct {
	Addr string `json:"addr,omitempty"`
}

// StorageConfig selects the recipient state backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./alertbot.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // file (default) | sqlite | memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// OutboundConfig controls the notify batch.
//
// Defaults (when omitted/zero):
//   - concurrency: 4
//   - rate_per_sec: 1
//   - send_timeout: "15s"
//   - schedule: "" (no periodic run inside serve)
type OutboundConfig struct {
	Concurrency int     `json:"concurrency,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	SendTimeout string  `json:"send_timeout,omitempty"`
	Schedule    string  `json:"schedule,omitempty"`
}

// PushConfig controls the async welcome push pipeline used by serve.
//
// Defaults: workers 2, queue_size 64, retry_max 2, retry_base "1s", retry_max_delay "15s".
type PushConfig struct {
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RetryMax      *int   `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

type CommandsConfig struct {
	// PauseDuration defaults to "6h".
	PauseDuration string `json:"pause_duration,omitempty"`
}
