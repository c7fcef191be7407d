package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"alertbot/internal/state"
	logx "alertbot/pkg/logx"
)

// fileStore keeps the state map in one JSON document.
//
// Files:
//   - <path>                (state document, rewritten via tmp + rename)
//   - <prefix>.audit.jsonl  (append-only JSON Lines)
type fileStore struct {
	log  logx.Logger
	path string

	auditPath string

	mu        sync.Mutex
	auditFile *os.File // opened on first append
	closed    bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	// Nothing is created here: an unwritable location only fails Save and
	// AppendAudit, which callers treat as best-effort.
	return &fileStore{log: log, path: path, auditPath: prefix + ".audit.jsonl"}, nil
}

func (s *fileStore) Load(ctx context.Context) (state.Map, error) {
	if err := ctx.Err(); err != nil {
		return state.Map{}, err
	}
	s.mu.Lock()
	doc, err := s.readLocked()
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("state document unreadable, starting empty", logx.String("path", s.path), logx.Err(err))
		return state.Map{}, err
	}

	out := make(state.Map, len(doc))
	for id, raw := range doc {
		rec, ok := decodeRecord(raw)
		if !ok {
			s.log.Warn("skipping malformed state record", logx.String("recipient", id))
			continue
		}
		out[id] = rec
	}
	return out, nil
}

func (s *fileStore) Save(ctx context.Context, m state.Map) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(m) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		// A corrupt document is replaced; other recipients start over.
		s.log.Warn("overwriting unreadable state document", logx.String("path", s.path), logx.Err(err))
		doc = map[string]json.RawMessage{}
	}
	for id, rec := range m {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode state %s: %w", id, err)
		}
		doc[id] = b
	}
	return s.writeLocked(doc)
}

func (s *fileStore) readLocked() (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode state document: %w", err)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, nil
}

func (s *fileStore) writeLocked(doc map[string]json.RawMessage) error {
	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, id := range ids {
		k, _ := json.Marshal(id)
		buf.WriteString("  ")
		buf.Write(k)
		buf.WriteString(": ")
		if err := json.Compact(&buf, doc[id]); err != nil {
			return fmt.Errorf("encode state %s: %w", id, err)
		}
		if i < len(ids)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.auditFile == nil {
		if err := os.MkdirAll(filepath.Dir(s.auditPath), 0o755); err != nil {
			return err
		}
		af, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		s.auditFile = af
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
