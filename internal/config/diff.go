package config

import "slices"

// SummarizeChange lists the settings sections that differ between two
// snapshots. Secrets are compared but never reported by value.
func SummarizeChange(old, cur Settings) []string {
	var changed []string
	if !slices.Equal(old.Recipients, cur.Recipients) {
		changed = append(changed, "recipients")
	}
	if old.InstanceName != cur.InstanceName || old.AlertsBaseURL != cur.AlertsBaseURL ||
		old.AlertsFolder != cur.AlertsFolder || old.OffsetLabel != cur.OffsetLabel || old.Locale != cur.Locale {
		changed = append(changed, "message")
	}
	if old.TemplateCooldown != cur.TemplateCooldown || old.SessionDuration != cur.SessionDuration ||
		old.PauseDuration != cur.PauseDuration {
		changed = append(changed, "windows")
	}
	if old.Twilio != cur.Twilio {
		changed = append(changed, "twilio")
	}
	if old.Webhook != cur.Webhook {
		changed = append(changed, "webhook")
	}
	if old.Storage != cur.Storage {
		changed = append(changed, "storage")
	}
	if old.Logging != cur.Logging {
		changed = append(changed, "logging")
	}
	if old.Outbound != cur.Outbound {
		changed = append(changed, "outbound")
	}
	if old.Push != cur.Push {
		changed = append(changed, "push")
	}
	return changed
}

// RequiresRestart reports sections that a running server cannot swap in place.
func RequiresRestart(changed []string) bool {
	for _, c := range changed {
		switch c {
		case "webhook", "storage", "twilio", "push":
			return true
		}
	}
	return false
}
