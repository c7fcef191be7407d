package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// resolveWindow picks the duration string when set, then the legacy hours
// number, then def.
func resolveWindow(path, raw string, hours *float64, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) != "" {
		return ParseDurationOrDefault(path, raw, def)
	}
	if hours != nil {
		if *hours <= 0 {
			return 0, fmt.Errorf("%s_hours: must be > 0", path)
		}
		return time.Duration(*hours * float64(time.Hour)), nil
	}
	return def, nil
}

// parseOffset parses a signed fixed offset such as "-3h" or "+5h30m".
func parseOffset(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimPrefix(s, "+"))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid offset %q: %w", path, raw, err)
	}
	if d <= -24*time.Hour || d >= 24*time.Hour {
		return 0, fmt.Errorf("%s: offset out of range", path)
	}
	return d, nil
}

// offsetLabel renders an offset the way event times are labelled ("UTC-3", "UTC+5:30", "UTC").
func offsetLabel(d time.Duration) string {
	if d == 0 {
		return "UTC"
	}
	sign := "+"
	if d < 0 {
		sign = "-"
		d = -d
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if m == 0 {
		return fmt.Sprintf("UTC%s%d", sign, h)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, h, m)
}
