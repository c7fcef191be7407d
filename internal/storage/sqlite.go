package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alertbot/internal/state"
	logx "alertbot/pkg/logx"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	st, err := connectSQLite(cfg, log)
	if err == nil {
		return st, nil
	}
	if !isCorrupt(err) {
		return nil, err
	}

	// An unreadable database is moved aside and replaced by an empty one.
	moved := fmt.Sprintf("%s.corrupt-%d", cfg.Path, time.Now().Unix())
	log.Warn("sqlite database corrupt, starting empty",
		logx.String("path", cfg.Path), logx.String("moved_to", moved), logx.Err(err))
	if rerr := os.Rename(cfg.Path, moved); rerr != nil {
		return nil, fmt.Errorf("quarantine corrupt database: %w", rerr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Rename(cfg.Path+suffix, moved+suffix)
	}
	if st, err = connectSQLite(cfg, log); err != nil {
		return nil, err
	}
	return st, nil
}

func connectSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// isCorrupt reports SQLITE_CORRUPT and SQLITE_NOTADB. Busy or permission
// errors are not corruption and must not move a live database.
func isCorrupt(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return true
	}
	return false
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return err
	}
	return s.addColumn(ctx, "recipient_state", "welcomed_at", "TEXT")
}

// addColumn upgrades tables created before col existed.
func (s *sqliteStore) addColumn(ctx context.Context, table, col, typ string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	found := false
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, ctype      string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			_ = rows.Close()
			return err
		}
		if strings.EqualFold(name, col) {
			found = true
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if found {
		return nil
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col, typ))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (state.Map, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient, last_template_sent, session_until, paused, paused_until, last_event_sent, welcomed_at
		 FROM recipient_state`)
	if err != nil {
		s.log.Warn("state table unreadable, starting empty", logx.Err(err))
		return state.Map{}, err
	}
	defer rows.Close()

	out := state.Map{}
	for rows.Next() {
		var (
			id                               string
			tmpl, sess, until, last, welcome sql.NullString
			paused                           sql.NullInt64
		)
		if err := rows.Scan(&id, &tmpl, &sess, &paused, &until, &last, &welcome); err != nil {
			s.log.Warn("skipping malformed state row", logx.Err(err))
			continue
		}
		out[id] = state.Recipient{
			LastTemplateSent: nullTime(tmpl),
			SessionUntil:     nullTime(sess),
			Paused:           paused.Valid && paused.Int64 != 0,
			PausedUntil:      nullTime(until),
			LastEventSent:    nullTime(last),
			WelcomedAt:       nullTime(welcome),
		}
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("state table read interrupted", logx.Err(err))
		return state.Map{}, err
	}
	return out, nil
}

func (s *sqliteStore) Save(ctx context.Context, m state.Map) error {
	if len(m) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recipient_state(recipient, last_template_sent, session_until, paused, paused_until, last_event_sent, welcomed_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(recipient) DO UPDATE SET
		   last_template_sent=excluded.last_template_sent,
		   session_until=excluded.session_until,
		   paused=excluded.paused,
		   paused_until=excluded.paused_until,
		   last_event_sent=excluded.last_event_sent,
		   welcomed_at=excluded.welcomed_at,
		   updated_at=excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for id, r := range m {
		paused := 0
		if r.Paused {
			paused = 1
		}
		if _, err := stmt.ExecContext(ctx, id,
			formatTime(r.LastTemplateSent), formatTime(r.SessionUntil), paused,
			formatTime(r.PausedUntil), formatTime(r.LastEventSent), formatTime(r.WelcomedAt), now,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, kind, recipient, run_id, action, detail, ok, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Kind, nullStr(e.Recipient), nullStr(e.RunID),
		nullStr(e.Action), nullStr(e.Detail), ok, nullStr(e.Error),
	)
	return err
}

func nullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, ok := parseTime(v.String)
	if !ok {
		return nil
	}
	return &t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
