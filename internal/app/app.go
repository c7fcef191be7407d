// Package app wires alertbot's components for each entry point.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alertbot/internal/audit"
	"alertbot/internal/config"
	"alertbot/internal/eventbus"
	"alertbot/internal/evidence"
	"alertbot/internal/outbound"
	rtsup "alertbot/internal/runtime/supervisor"
	"alertbot/internal/state"
	"alertbot/internal/storage"
	"alertbot/internal/transport"
	"alertbot/internal/transport/twilio"
	logx "alertbot/pkg/logx"
)

// Options select how the process is assembled.
type Options struct {
	ConfigPath string
	// DryRun swaps the provider for an in-memory recorder and the store for a
	// memory copy of the persisted state. Nothing leaves the process.
	DryRun bool
	// Environ overrides the process environment (tests).
	Environ map[string]string
	// Messenger replaces the provider client (tests).
	Messenger transport.Messenger
}

// App owns the long-lived collaborators shared by every entry point.
type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store    storage.Store
	bus      eventbus.Bus
	evidence *evidence.Source
	recorder *transport.Recorder

	mu        sync.Mutex
	messenger transport.Messenger
}

// New loads settings, sets up logging and opens the state store.
func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	if opts.Environ != nil {
		cfgm.SetEnviron(opts.Environ)
	}
	s, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings %s: %w", opts.ConfigPath, err)
	}

	logs, log := logx.New(s.Logging)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		bus:      eventbus.New(),
		evidence: evidence.NewSource(s.AlertsFolder, log),
	}

	store, err := storage.Open(storageConfig(s), log)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	if opts.DryRun {
		a.store, err = dryRunStore(store)
		if err != nil {
			_ = logs.Close()
			return nil, err
		}
		a.recorder = &transport.Recorder{}
		a.messenger = a.recorder
		log.Info("dry run: sends are recorded, state is not persisted")
		return a, nil
	}

	a.store = store
	a.messenger = opts.Messenger
	return a, nil
}

// sender returns the provider client, building it on first use so commands
// that never send do not need credentials.
func (a *App) sender() (transport.Messenger, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.messenger != nil {
		return a.messenger, nil
	}
	s := a.cfgm.Current()
	if err := s.RequireTwilio(); err != nil {
		return nil, err
	}
	c, err := twilio.New(twilioConfig(s), a.log)
	if err != nil {
		return nil, err
	}
	a.messenger = c
	return c, nil
}

// dryRunStore copies the persisted state into memory and closes the real store.
func dryRunStore(store storage.Store) (storage.Store, error) {
	defer store.Close()
	m, err := store.Load(context.Background())
	if err != nil && m == nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return storage.NewMemoryFrom(m), nil
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Settings() config.Settings { return a.cfgm.Current() }

// DryRunCalls lists the sends recorded by a dry run.
func (a *App) DryRunCalls() []transport.Call {
	if a.recorder == nil {
		return nil
	}
	return a.recorder.Calls()
}

// Notify runs one outbound batch with the current settings.
func (a *App) Notify(ctx context.Context) (outbound.Summary, error) {
	msg, err := a.sender()
	if err != nil {
		return outbound.Summary{}, err
	}
	r := outbound.NewRunner(a.cfgm.Current(), outbound.Deps{
		Store:     a.store,
		Messenger: msg,
		Evidence:  a.evidence,
		Bus:       a.bus,
		Log:       a.log,
	})
	return r.Run(ctx)
}

// NotifyOnce runs one batch with an audit recorder alongside it. The
// recorder has written the batch's events by the time it returns.
func (a *App) NotifyOnce(ctx context.Context) (outbound.Summary, error) {
	sup := rtsup.New(context.WithoutCancel(ctx), rtsup.WithLogger(a.log))
	sup.Go("audit", audit.NewRecorder(a.bus, a.store, a.log).Run)
	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sup.Wait(wctx); err != nil {
			a.log.Warn("audit recorder did not finish", logx.Err(err))
		}
	}()
	return a.Notify(ctx)
}

// States returns the persisted recipient states. A partially readable store
// yields what could be decoded together with the error.
func (a *App) States(ctx context.Context) (state.Map, error) {
	m, err := a.store.Load(ctx)
	if m == nil {
		m = state.Map{}
	}
	return m, err
}

// Close releases the store and the log file sink.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
