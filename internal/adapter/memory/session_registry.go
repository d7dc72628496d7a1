package memory

import (
	"context"
	"sync"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

// SessionRegistry stores sessions in process memory. Stored values are
// snapshots, so callers never share a session with the registry.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionRegistry() interfaces.SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]domain.Session)}
}

func (r *SessionRegistry) Get(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := s.Snapshot()
	return &out, nil
}

func (r *SessionRegistry) Save(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = session.Snapshot()
	return nil
}

func (r *SessionRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// Expire drops sessions not updated since idleSince and returns their ids
func (r *SessionRegistry) Expire(ctx context.Context, idleSince time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for id, s := range r.sessions {
		if s.UpdatedAt.Before(idleSince) {
			expired = append(expired, id)
			delete(r.sessions, id)
		}
	}
	return expired, nil
}
