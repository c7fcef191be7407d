package app

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"alertbot/internal/audit"
	"alertbot/internal/config"
	"alertbot/internal/dispatch"
	"alertbot/internal/files"
	"alertbot/internal/httpx"
	"alertbot/internal/notifier"
	rtsup "alertbot/internal/runtime/supervisor"
	"alertbot/internal/schedule"
	"alertbot/internal/webhook"
	logx "alertbot/pkg/logx"
)

// drainTimeout bounds how long queued pushes may keep running after shutdown starts.
const drainTimeout = 15 * time.Second

// Serve runs the webhook server, the push pipeline, the optional schedule and
// the config watcher until ctx ends or a component fails.
func (a *App) Serve(ctx context.Context) error {
	s := a.cfgm.Current()
	msg, err := a.sender()
	if err != nil {
		return err
	}
	spec, scheduled, err := scheduleSpec(s)
	if err != nil {
		return err
	}
	dryRun := a.recorder != nil
	a.cfgm.SetValidator(func(_ context.Context, ns config.Settings) error {
		return validate(ns, dryRun)
	})

	// Background work outlives the serving context so queued pushes drain
	// and their outcomes still reach the audit trail.
	bg := rtsup.New(context.WithoutCancel(ctx), rtsup.WithLogger(a.log))
	bg.Go("audit", audit.NewRecorder(a.bus, a.store, a.log).Run)
	bg.Go("eventbus.log", a.logEvents)

	push := notifier.New(notifierConfig(s), notifier.Deps{
		Messenger: msg,
		Evidence:  a.evidence,
		Store:     a.store,
		Bus:       a.bus,
		Composer:  func() dispatch.Composer { return dispatch.NewComposer(a.cfgm.Current()) },
		Log:       a.log,
	})
	push.Start(bg.Context())

	sup := rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	handler := webhook.NewHandler(webhook.Deps{
		Settings: a.cfgm.Current,
		Store:    a.store,
		Push:     push,
		Bus:      a.bus,
		Log:      a.log,
	})
	srv := httpx.NewServer(httpx.Options{
		Name:         "webhook",
		Addr:         s.Webhook.Addr,
		ReadTimeout:  s.Webhook.ReadTimeout,
		WriteTimeout: s.Webhook.WriteTimeout,
	}, webhook.Routes(s.Webhook.Path, handler), a.log)
	sup.Go("http.webhook", srv.ListenAndServe)

	if scheduled {
		trig := schedule.NewTrigger(spec, a.evidence, a.scheduledBatch, s.Location, a.log)
		// Evidence already present at startup is not renotified by the schedule.
		if ev, err := a.evidence.Latest(ctx); err == nil {
			trig.Seed(ev.Key())
		}
		sup.Go("schedule", trig.Run)
	}

	sup.Go("config.watch", a.cfgm.Watch)
	sup.Go("config.apply", a.applyReloads)

	sd := newSystemd(a.log)
	sd.ready()
	sup.Go("systemd.watchdog", sd.watchdog)

	a.log.Info("serving",
		logx.String("webhook", s.Webhook.Addr+s.Webhook.Path),
		logx.Int("recipients", len(s.Recipients)),
		logx.Bool("scheduled", scheduled),
		logx.Bool("dry_run", dryRun),
	)

	<-sup.Context().Done()
	sd.stopping()

	stopCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	_ = sup.Wait(stopCtx)
	if stopCtx.Err() != nil {
		a.log.Warn("components did not stop in time")
	}
	push.Stop(stopCtx)
	bg.Cancel()
	_ = bg.Wait(stopCtx)

	if err := sup.Err(); err != nil {
		return err
	}
	a.log.Info("stopped")
	return nil
}

func (a *App) scheduledBatch(ctx context.Context) (string, error) {
	sum, err := a.Notify(ctx)
	if err != nil {
		return "", err
	}
	return sum.EventKey, nil
}

// applyReloads logs what each reload changed and applies the parts that can
// change in place. Components read a.cfgm.Current() per use, so recipients,
// windows and message settings need no action here.
func (a *App) applyReloads(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Current()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ns, ok := <-sub:
			if !ok {
				return nil
			}
			// Coalesce bursts: keep only the newest settings.
		drain:
			for {
				select {
				case newer := <-sub:
					ns = newer
				default:
					break drain
				}
			}

			changed := config.SummarizeChange(last, ns)
			if len(changed) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				last = ns
				continue
			}
			a.log.Info("config change applied", logx.String("changed", strings.Join(changed, ",")))
			if slices.Contains(changed, "logging") {
				a.logs.Apply(ns.Logging)
			}
			if config.RequiresRestart(changed) {
				a.log.Warn("some changes take effect only after a restart", logx.String("changed", strings.Join(changed, ",")))
			}
			if ns.AlertsFolder != last.AlertsFolder {
				a.log.Warn("alerts_folder changed; restart required", logx.String("folder", ns.AlertsFolder))
			}
			last = ns
		}
	}
}

// logEvents mirrors bus traffic at debug level.
func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// Files serves the alerts folder read-only until ctx ends. An empty addr
// uses files.addr from the settings.
func (a *App) Files(ctx context.Context, addr string) error {
	s := a.cfgm.Current()
	if addr == "" {
		addr = s.FilesAddr
	}
	if addr == "" {
		return errors.New("files: no listen address")
	}
	srv := httpx.NewServer(httpx.Options{Name: "files", Addr: addr}, files.Handler(s.AlertsFolder, a.log), a.log)
	sd := newSystemd(a.log)
	sd.ready()
	defer sd.stopping()
	return srv.ListenAndServe(ctx)
}
