package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

type ReservationEvent string

const (
	EventReservationConfirmed ReservationEvent = "reservation.confirmed"
	EventReservationReleased  ReservationEvent = "reservation.released"
)

// Сообщения о бронированиях
type ReservationMessage struct {
	Event           ReservationEvent   `json:"event"`
	ReservationID   string             `json:"reservation_id"`
	SessionID       string             `json:"session_id"`
	BusinessID      string             `json:"business_id"`
	SlotDate        string             `json:"slot_date"`
	SlotStart       string             `json:"slot_start"`
	CustomerName    string             `json:"customer_name"`
	CustomerPhone   string             `json:"customer_phone,omitempty"`
	Items           []domain.DraftItem `json:"items"`
	TotalAmount     float64            `json:"total_amount"`
	Units           int                `json:"units"`
	Timestamp       time.Time          `json:"timestamp"`
	ConversationLog []domain.Message   `json:"conversation_log,omitempty"`
}

// NewReservationMessage builds the event for a reservation
func NewReservationMessage(event ReservationEvent, r *domain.Reservation, at time.Time) ReservationMessage {
	return ReservationMessage{
		Event:         event,
		ReservationID: r.ID,
		SessionID:     r.SessionID,
		BusinessID:    r.BusinessID,
		SlotDate:      r.Key.Date,
		SlotStart:     r.Key.Start,
		CustomerName:  r.CustomerName,
		CustomerPhone: r.CustomerPhone,
		Items:         r.Items,
		TotalAmount:   r.TotalAmount,
		Units:         r.Units,
		Timestamp:     at,
	}
}

// Интерфейсы Messaging (Adapter/RabbitMQ, Adapter/Kafka)
type EventPublisher interface {
	PublishReservation(ctx context.Context, msg ReservationMessage) error
}

type MessageConsumer interface {
	ConsumeReservations(ctx context.Context, handler ReservationMessageHandler) error
}

type ReservationMessageHandler func(ctx context.Context, body []byte) error

// ErrRequeue marks a handler failure worth retrying; any other handler
// error sends the message to the dead letter queue
var ErrRequeue = errors.New("temporary failure, requeue message")

// TranscriptArchiver stores finished conversations for audit
type TranscriptArchiver interface {
	Archive(ctx context.Context, session domain.Session) error
}
