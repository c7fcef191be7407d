package app

import (
	"fmt"

	"alertbot/internal/config"
	"alertbot/internal/notifier"
	"alertbot/internal/schedule"
	"alertbot/internal/storage"
	"alertbot/internal/transport/twilio"
)

func storageConfig(s config.Settings) storage.Config {
	return storage.Config{
		Driver:      s.Storage.Driver,
		Path:        s.Storage.Path,
		BusyTimeout: s.Storage.BusyTimeout,
	}
}

func twilioConfig(s config.Settings) twilio.Config {
	return twilio.Config{
		AccountSID: s.Twilio.AccountSID,
		AuthToken:  s.Twilio.AuthToken,
		From:       s.Twilio.From,
		ContentSID: s.Twilio.ContentSID,
	}
}

// notifierConfig maps push settings onto the pipeline. Pushes share the
// outbound pacing so both paths respect the same provider limits.
func notifierConfig(s config.Settings) notifier.Config {
	return notifier.Config{
		Workers:       s.Push.Workers,
		QueueSize:     s.Push.QueueSize,
		RatePerSec:    s.Outbound.RatePerSec,
		RetryMax:      s.Push.RetryMax,
		RetryBase:     s.Push.RetryBase,
		RetryMaxDelay: s.Push.RetryMaxDelay,
		SendTimeout:   s.Outbound.SendTimeout,
	}
}

// scheduleSpec parses outbound.schedule; ok is false when no schedule is set.
func scheduleSpec(s config.Settings) (spec schedule.Spec, ok bool, err error) {
	if s.Outbound.Schedule == "" {
		return schedule.Spec{}, false, nil
	}
	spec, err = schedule.Parse(s.Outbound.Schedule)
	if err != nil {
		return schedule.Spec{}, false, fmt.Errorf("outbound.schedule: %w", err)
	}
	return spec, true, nil
}

// validate rejects a reloaded config the running server could not apply.
func validate(s config.Settings, dryRun bool) error {
	if !dryRun {
		if err := s.RequireTwilio(); err != nil {
			return err
		}
	}
	_, _, err := scheduleSpec(s)
	return err
}
