package storage

import (
	"encoding/json"
	"strings"
	"time"

	"alertbot/internal/state"
)

// Layouts accepted when reading timestamps. Records written by older tools
// may use a space separator or omit the zone; those are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// decodeRecord reads one stored record field by field. Fields that are
// missing, of the wrong type or unparsable are treated as absent.
func decodeRecord(raw json.RawMessage) (state.Recipient, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return state.Recipient{}, false
	}
	ts := func(key string) *time.Time {
		var s string
		if err := json.Unmarshal(fields[key], &s); err != nil {
			return nil
		}
		t, ok := parseTime(s)
		if !ok {
			return nil
		}
		return &t
	}
	var paused bool
	_ = json.Unmarshal(fields["paused"], &paused)

	return state.Recipient{
		LastTemplateSent: ts("last_template_sent"),
		SessionUntil:     ts("session_until"),
		Paused:           paused,
		PausedUntil:      ts("paused_until"),
		LastEventSent:    ts("last_event_sent"),
		WelcomedAt:       ts("welcomed_at"),
	}, true
}
