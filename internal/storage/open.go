package storage

import (
	"context"
	"errors"
	"strings"

	"alertbot/internal/state"
	logx "alertbot/pkg/logx"
)

// Store is the persistence API shared by the notifier and the webhook server.
type Store interface {
	// Load returns every stored record. On unreadable backing data it returns
	// an empty map together with the error, so callers can log and continue.
	Load(ctx context.Context) (state.Map, error)
	// Save upserts the given records; recipients not in m are left untouched.
	Save(ctx context.Context, m state.Map) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	var (
		st  Store
		err error
	)
	switch driver {
	case "", "file":
		st, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		st, err = openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, err
		}
		// The process keeps running on empty state; every call reports err.
		log.Warn("storage unavailable, continuing without persistence", logx.String("path", cfg.Path), logx.Err(err))
		return unavailable{err: err}, nil
	}
	return st, nil
}

// unavailable stands in for a store that could not be opened.
type unavailable struct{ err error }

func (u unavailable) Load(context.Context) (state.Map, error) {
	return state.Map{}, u.err
}

func (u unavailable) Save(context.Context, state.Map) error {
	return u.err
}

func (u unavailable) AppendAudit(context.Context, AuditEntry) error {
	return u.err
}

func (u unavailable) Close() error {
	return nil
}
