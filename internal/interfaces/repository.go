package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

// CapacityStore holds the per-slot reservation counters. TryReserve must be
// a single atomic read-compare-increment; Release is a saturating decrement.
type CapacityStore interface {
	TryReserve(ctx context.Context, key domain.TimeSlotKey, units, capacity int) (bool, error)
	Release(ctx context.Context, key domain.TimeSlotKey, units int) error
	Occupancy(ctx context.Context, key domain.TimeSlotKey) (int, error)
}

// SessionRegistry owns the lifecycle of conversation sessions, keyed by id
type SessionRegistry interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
	Expire(ctx context.Context, idleSince time.Time) ([]string, error)
}

// ReservationRepository is the authoritative in-process record of reservations.
// MarkReleased returns false when the reservation was already released;
// UnmarkReleased gives the reservation back when its capacity could not be freed.
type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) error
	FindByID(ctx context.Context, id string) (*domain.Reservation, error)
	FindActiveBySession(ctx context.Context, sessionID string) (*domain.Reservation, error)
	MarkReleased(ctx context.Context, id string, at time.Time) (bool, error)
	UnmarkReleased(ctx context.Context, id string) error
}

// OrderRepository is the durable order store of the persistence collaborator
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByNumber(ctx context.Context, number string) (*domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
	LogStatus(ctx context.Context, orderID int, status domain.Status, changedBy string) error
	GetStatusHistory(ctx context.Context, orderID int) ([]*domain.StatusLog, error)
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
}

// OrderFilter narrows an order listing. Empty fields match everything;
// From and To are inclusive pickup dates (2006-01-02).
type OrderFilter struct {
	BusinessID string
	Status     domain.Status
	From       string
	To         string
	Limit      int
}

// BusinessDirectory resolves business configuration by id
type BusinessDirectory interface {
	Get(ctx context.Context, id string) (*domain.Business, error)
}
