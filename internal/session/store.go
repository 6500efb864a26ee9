package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists sealed and in-flight sessions. The memory store is
// the default; the pgx store is used when a DSN is configured.
type Store interface {
	CreateSession(ctx context.Context, snap Snapshot) error
	AppendRecord(ctx context.Context, sessionID string, rec Record) error
	SealSession(ctx context.Context, sessionID, status string, summary Summary) error
	GetSession(ctx context.Context, sessionID string) (Snapshot, bool, error)
	ListSessions(ctx context.Context, limit int) ([]Snapshot, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Snapshot
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]Snapshot{}}
}

func (s *MemoryStore) CreateSession(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[snap.ID]; exists {
		return fmt.Errorf("session %s already exists", snap.ID)
	}
	s.sessions[snap.ID] = snap
	s.order = append(s.order, snap.ID)
	return nil
}

func (s *MemoryStore) AppendRecord(_ context.Context, sessionID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	snap.Records = append(snap.Records, rec)
	snap.Summary = Summarize(snap.Records)
	s.sessions[sessionID] = snap
	return nil
}

func (s *MemoryStore) SealSession(_ context.Context, sessionID, status string, summary Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	snap.Status = status
	snap.Summary = summary
	s.sessions[sessionID] = snap
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.sessions[sessionID]
	return snap, ok, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, limit int) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	ids := append([]string(nil), s.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		return s.sessions[ids[i]].StartedAt.After(s.sessions[ids[j]].StartedAt)
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.sessions[id])
	}
	return out, nil
}
