package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

// ReservationRepository is the authoritative record of reservations for
// the running process
type ReservationRepository struct {
	mu           sync.Mutex
	reservations map[string]*domain.Reservation
}

func NewReservationRepository() interfaces.ReservationRepository {
	return &ReservationRepository{reservations: make(map[string]*domain.Reservation)}
}

func (r *ReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reservations[res.ID]; exists {
		return fmt.Errorf("reservation %s already exists", res.ID)
	}
	r.reservations[res.ID] = copyReservation(res)
	return nil
}

func (r *ReservationRepository) FindByID(ctx context.Context, id string) (*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return copyReservation(res), nil
}

func (r *ReservationRepository) FindActiveBySession(ctx context.Context, sessionID string) (*domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range r.reservations {
		if res.SessionID == sessionID && res.IsActive() {
			return copyReservation(res), nil
		}
	}
	return nil, domain.ErrReservationNotFound
}

// MarkReleased flips the released flag. Only the first caller gets true.
func (r *ReservationRepository) MarkReleased(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return false, domain.ErrReservationNotFound
	}
	if !res.IsActive() {
		return false, nil
	}
	res.VoidedAt = &at
	return true, nil
}

func (r *ReservationRepository) UnmarkReleased(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	res.VoidedAt = nil
	return nil
}

func copyReservation(res *domain.Reservation) *domain.Reservation {
	out := *res
	out.Items = make([]domain.DraftItem, len(res.Items))
	copy(out.Items, res.Items)
	if res.VoidedAt != nil {
		v := *res.VoidedAt
		out.VoidedAt = &v
	}
	return &out
}
