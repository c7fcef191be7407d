package app

import (
	"context"
	"time"

	logx "alertbot/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

// systemd reports readiness and liveness to the service manager. Outside a
// unit with NOTIFY_SOCKET every call is a no-op.
type systemd struct {
	log logx.Logger
	// notify is daemon.SdNotify; replaced in tests.
	notify   func(unsetEnv bool, state string) (bool, error)
	interval func() time.Duration
}

func newSystemd(log logx.Logger) *systemd {
	return &systemd{
		log:    log.With(logx.String("comp", "systemd")),
		notify: daemon.SdNotify,
		interval: func() time.Duration {
			d, err := daemon.SdWatchdogEnabled(false)
			if err != nil {
				return 0
			}
			return d
		},
	}
}

func (s *systemd) send(state string) {
	sent, err := s.notify(false, state)
	if err != nil {
		s.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		s.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (s *systemd) ready()    { s.send(daemon.SdNotifyReady) }
func (s *systemd) stopping() { s.send(daemon.SdNotifyStopping) }

// watchdog pings at half the configured WatchdogSec until ctx ends.
func (s *systemd) watchdog(ctx context.Context) error {
	d := s.interval()
	if d <= 0 {
		return nil
	}
	t := time.NewTicker(d / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.send(daemon.SdNotifyWatchdog)
		}
	}
}
