package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/roundtable/internal/models"
	"github.com/wolfeidau/roundtable/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
// Data is lost on restart; intended for tests and development.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[uuid.UUID]*models.Discussion // discussion_id -> snapshot
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*models.Discussion),
	}
}

// Create persists a new session in memory.
func (s *SessionStore) Create(ctx context.Context, d *models.Discussion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Snapshot to avoid external modifications
	s.sessions[d.ID] = d.Snapshot()
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*models.Discussion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.sessions[id]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	return d.Snapshot(), nil
}

// UpdateState overwrites the scalar turn-state fields, leaving the message log
// in place.
func (s *SessionStore) UpdateState(ctx context.Context, d *models.Discussion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.sessions[d.ID]
	if !exists {
		return store.ErrSessionNotFound
	}

	transcript := stored.Transcript
	clone := *d
	clone.Transcript = transcript
	s.sessions[d.ID] = &clone
	return nil
}

// AppendMessage appends one transcript entry to the session's log.
func (s *SessionStore) AppendMessage(ctx context.Context, id uuid.UUID, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.sessions[id]
	if !exists {
		return store.ErrSessionNotFound
	}

	stored.Transcript = append(stored.Transcript, msg)
	return nil
}

// Delete removes the session and its messages.
func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return store.ErrSessionNotFound
	}

	delete(s.sessions, id)
	return nil
}
