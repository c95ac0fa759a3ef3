package engine

import (
	"context"
	"sync"

	"github.com/ShayCichocki/fractal/pkg/models"
)

// SessionStore persists sessions. GetSession returns (nil, nil) when the
// session does not exist.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
}

// RunRecorder persists finished queries.
type RunRecorder interface {
	SaveRun(ctx context.Context, r *models.RunRecord) error
}

// MemorySessionStore is a process-local SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]models.Session)}
}

// CreateSession stores a copy of s.
func (m *MemorySessionStore) CreateSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

// GetSession returns a copy of the session, or nil if it does not exist.
func (m *MemorySessionStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}
