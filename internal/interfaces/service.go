package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

// Responder is the agent collaborator (LLM) that writes the next assistant turn
type Responder interface {
	Respond(ctx context.Context, messages []domain.Message) (string, error)
}

// Интерфейсы Сервисов (Business Logic)
type OrderingService interface {
	Ingest(ctx context.Context, sessionID, businessID, utterance string) (*TurnResult, error)
	Reset(ctx context.Context, sessionID string) error
	Session(ctx context.Context, sessionID string) (*domain.Session, error)
	AvailableSlots(ctx context.Context, businessID string, date time.Time) ([]domain.SlotAvailability, error)
	Reschedule(ctx context.Context, reservationID string, date time.Time, clock string) (*domain.Reservation, error)
	CheckSlot(ctx context.Context, businessID string, date time.Time, clock string, units int) (*domain.SlotAvailability, error)
}

// ReservationReleaser gives a reservation's capacity back to its slot
type ReservationReleaser interface {
	Release(ctx context.Context, reservationID string) error
}

type RecorderService interface {
	HandleReservation(ctx context.Context, msg ReservationMessage) error
}

// TurnResult is what one ingest returns to the caller
type TurnResult struct {
	SessionID   string
	Reply       string
	Draft       domain.OrderDraft
	State       domain.SessionState
	Reservation *domain.Reservation
}

type TrackingService interface {
	GetOrderStatus(ctx context.Context, orderNumber string) (*TrackingOrderResponse, error)
	GetOrderHistory(ctx context.Context, orderNumber string) ([]*domain.StatusLog, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*TrackingOrderResponse, error)
	UpdateStatus(ctx context.Context, orderNumber string, status domain.Status, changedBy string) (*TrackingOrderResponse, error)
}

// TrackingOrderResponse is the operator view of a recorded order
type TrackingOrderResponse struct {
	OrderNumber   string
	BusinessID    string
	CurrentStatus domain.Status
	PickupDate    string
	PickupSlot    string
	CustomerName  string
	CustomerPhone string
	Items         []domain.OrderItem
	TotalAmount   float64
	UpdatedAt     time.Time
	ReleasedAt    *time.Time

	ConversationLog []domain.Message
}
