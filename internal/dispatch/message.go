package dispatch

import (
	"time"

	"alertbot/internal/config"
	"alertbot/internal/evidence"
	"alertbot/internal/i18n"
)

// Composer renders recipient-facing message content for an evidence event.
type Composer struct {
	catalog  *i18n.Catalog
	loc      *time.Location
	instance string
	settings config.Settings
}

func NewComposer(s config.Settings) Composer {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return Composer{
		catalog:  i18n.New(s.Locale),
		loc:      loc,
		instance: s.InstanceName,
		settings: s,
	}
}

func (c Composer) Catalog() *i18n.Catalog { return c.catalog }

// Timestamp formats t in the configured fixed offset, e.g. "2025-03-10 09:00 UTC-3".
func (c Composer) Timestamp(t time.Time) string { return i18n.Timestamp(t, c.loc) }

// SessionBody is the free-form alert text sent inside an open session.
func (c Composer) SessionBody(ev evidence.Event) string {
	return c.catalog.Sprintf(i18n.KeySessionAlert, c.instance, c.Timestamp(ev.Timestamp), c.catalog.Label(ev.Label))
}

// WelcomeBody is the caption of the push sent when a session opens.
func (c Composer) WelcomeBody(ev evidence.Event) string {
	return c.catalog.Sprintf(i18n.KeyWelcomeCaption, c.instance, c.Timestamp(ev.Timestamp), c.catalog.Label(ev.Label))
}

// TemplateVars are the positional variables of the approved template.
func (c Composer) TemplateVars(ev evidence.Event) map[string]string {
	return map[string]string{
		"1": c.instance,
		"2": c.Timestamp(ev.Timestamp),
		"3": c.catalog.Label(ev.Label),
	}
}

// MediaURL is the public URL of the evidence image, or "" when no base URL is configured.
func (c Composer) MediaURL(ev evidence.Event) string {
	return c.settings.MediaURL(ev.ImageRef)
}
