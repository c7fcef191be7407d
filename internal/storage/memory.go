package storage

import (
	"context"
	"sync"

	"alertbot/internal/state"
)

// Memory is an in-process Store.
type Memory struct {
	mu     sync.Mutex
	data   state.Map
	audit  []AuditEntry
	closed bool
}

func NewMemory() *Memory { return &Memory{data: state.Map{}} }

// NewMemoryFrom returns a store seeded with a copy of m.
func NewMemoryFrom(m state.Map) *Memory { return &Memory{data: m.Clone()} }

func (s *Memory) Load(ctx context.Context) (state.Map, error) {
	if err := ctx.Err(); err != nil {
		return state.Map{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone(), nil
}

func (s *Memory) Save(ctx context.Context, m state.Map) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for id, rec := range m {
		s.data[id] = rec.Clone()
	}
	return nil
}

func (s *Memory) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.audit = append(s.audit, e)
	return nil
}

// Audit returns a copy of the recorded audit trail.
func (s *Memory) Audit() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEntry(nil), s.audit...)
}

func (s *Memory) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
