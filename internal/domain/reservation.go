package domain

import (
	"errors"
	"fmt"
	"time"
)

// Reservation is the committed, capacity-backed record of a confirmed draft.
// It is never edited in place: its only mutation is release.
type Reservation struct {
	ID            string      `json:"id"`
	SessionID     string      `json:"session_id"`
	BusinessID    string      `json:"business_id"`
	Key           TimeSlotKey `json:"slot"`
	Items         []DraftItem `json:"items"`
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	TotalAmount   float64     `json:"total_amount"`
	Units         int         `json:"units"`
	CommittedAt   time.Time   `json:"committed_at"`
	VoidedAt      *time.Time  `json:"voided_at,omitempty"`

	// Transcript is the conversation that led to the order. It arrives with
	// the confirmed event; the ordering service does not keep it here.
	Transcript []Message `json:"-"`
}

// IsActive reports whether the reservation still holds capacity
func (r *Reservation) IsActive() bool {
	return r.VoidedAt == nil
}

// Order is the durable record written by the order-persistence collaborator
type Order struct {
	ID            int
	Number        string
	BusinessID    string
	SessionID     string
	CustomerName  string
	CustomerPhone string
	PickupDate    string
	PickupSlot    string
	Items         []OrderItem
	TotalAmount   float64
	CapacityUnits int
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ReleasedAt    *time.Time

	// loaded by FindByNumber only
	ConversationLog []Message
}

// OrderItem represents an item in a persisted order
type OrderItem struct {
	ID       int
	OrderID  int
	Name     string
	Quantity int
	Price    float64
	Category string
}

// NewOrder builds the persisted order from a reservation
func NewOrder(r *Reservation) (*Order, error) {
	if r == nil || r.ID == "" {
		return nil, errors.New("reservation id is required")
	}
	items := make([]OrderItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = OrderItem{Name: it.Name, Quantity: it.Quantity, Price: it.UnitPrice, Category: it.Category}
	}
	return &Order{
		Number:          r.ID,
		BusinessID:      r.BusinessID,
		SessionID:       r.SessionID,
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		PickupDate:      r.Key.Date,
		PickupSlot:      r.Key.Start,
		Items:           items,
		TotalAmount:     r.TotalAmount,
		CapacityUnits:   r.Units,
		Status:          StatusConfirmed,
		CreatedAt:       r.CommittedAt,
		UpdatedAt:       r.CommittedAt,
		ConversationLog: append([]Message(nil), r.Transcript...),
	}, nil
}

// Release marks the persisted order as released. An order that is already
// finished (released, cancelled or collected) gives ErrAlreadyReleased.
func (o *Order) Release(at time.Time) error {
	if o.Status.IsFinal() {
		return ErrAlreadyReleased
	}
	return o.SetStatus(StatusReleased, at)
}

// SetStatus moves the order along its lifecycle
func (o *Order) SetStatus(next Status, at time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: order %s from %s to %s", ErrInvalidStateTransition, o.Number, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = at
	if next == StatusReleased || next == StatusCancelled {
		o.ReleasedAt = &at
	}
	return nil
}
