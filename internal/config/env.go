package config

import (
	"fmt"
	"strconv"

	"github.com/caarlos0/env/v11"
)

// envOverrides are applied on top of the settings file so secrets can live
// outside of it. PORT sets the webhook port, as hosting platforms expect.
type envOverrides struct {
	TwilioAccountSID string `env:"ALERTBOT_TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"ALERTBOT_TWILIO_AUTH_TOKEN"`
	TwilioContentSID string `env:"ALERTBOT_TWILIO_CONTENT_SID"`
	TwilioFrom       string `env:"ALERTBOT_TWILIO_FROM"`
	WebhookAddr      string `env:"ALERTBOT_WEBHOOK_ADDR"`
	Port             int    `env:"PORT"`
	LogLevel         string `env:"ALERTBOT_LOG_LEVEL"`
	StorageDriver    string `env:"ALERTBOT_STORAGE_DRIVER"`
	StoragePath      string `env:"ALERTBOT_STORAGE_PATH"`
}

// ApplyEnv overlays environment variables onto cfg. A nil environ reads the
// process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	var o envOverrides
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Twilio.AccountSID, o.TwilioAccountSID)
	set(&cfg.Twilio.AuthToken, o.TwilioAuthToken)
	set(&cfg.Twilio.ContentSID, o.TwilioContentSID)
	set(&cfg.Twilio.From, o.TwilioFrom)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Storage.Driver, o.StorageDriver)
	set(&cfg.Storage.Path, o.StoragePath)
	if o.Port > 0 {
		cfg.Webhook.Addr = ":" + strconv.Itoa(o.Port)
	}
	set(&cfg.Webhook.Addr, o.WebhookAddr)
	return nil
}
