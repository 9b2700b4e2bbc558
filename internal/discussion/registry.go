package discussion

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/roundtable/internal/models"
	"github.com/wolfeidau/roundtable/internal/store"
)

// Session pairs the canonical in-memory Discussion with its per-session lock.
// All mutation of the entity happens while the lock is held, which is what
// makes "at most one active speaker" atomic under concurrent requests.
type Session struct {
	mu sync.Mutex

	// Discussion is the canonical live entity. Concurrent requests against
	// the same session id observe and mutate this one object, never copies -
	// that is what makes the AISpeaking flag visible across requests.
	Discussion *models.Discussion
}

// Lock acquires the per-session mutex.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the per-session mutex.
func (s *Session) Unlock() { s.mu.Unlock() }

// Registry owns the mapping from session id to live Session. It keeps an
// in-process cache of active entities and falls back to the durable store on
// a miss, rebuilding the entity from scalar state plus transcript replay.
type Registry struct {
	mu    sync.Mutex
	store store.SessionStore
	live  map[uuid.UUID]*Session
}

// NewRegistry creates a registry backed by the given durable store.
func NewRegistry(st store.SessionStore) *Registry {
	return &Registry{
		store: st,
		live:  make(map[uuid.UUID]*Session),
	}
}

// Insert caches a freshly created discussion as the canonical live entity.
func (r *Registry) Insert(d *models.Discussion) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{Discussion: d}
	r.live[d.ID] = s
	return s
}

// Get returns the canonical Session for the id, loading it from the durable
// store on a cache miss. Returns store.ErrSessionNotFound for unknown ids.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	s, ok := r.live[id]
	r.mu.Unlock()
	if ok {
		return s, nil
	}

	d, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another request may have loaded it while we were reading; theirs wins
	// so there is only ever one canonical entity per session.
	if existing, ok := r.live[id]; ok {
		return existing, nil
	}

	s = &Session{Discussion: d}
	r.live[id] = s
	return s, nil
}

// Evict drops the cached entity. The durable record is untouched.
func (r *Registry) Evict(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.live, id)
}
