package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionAlreadyConfirmed = errors.New("conversation already confirmed, start a new one")
	ErrSessionNotFound         = errors.New("session not found")
	ErrBusinessNotFound        = errors.New("business not found")
	ErrBusinessMismatch        = errors.New("session belongs to another business")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrExtractionAmbiguous     = errors.New("no structured order data found")
	ErrSlotNotOpen             = errors.New("requested time is outside business hours")
	ErrCapacityUnavailable     = errors.New("slot capacity unavailable")
	ErrReservationNotFound     = errors.New("reservation not found")
	ErrAlreadyReleased         = errors.New("already released")
	ErrOrderNotFound           = errors.New("order not found")
	ErrEmptyOrder              = errors.New("order has no items")
	ErrReleaseUnavailable      = errors.New("capacity release is not reachable from this process")
)

// SlotNotOpenError carries the rejected pickup so the prompt can name it
type SlotNotOpenError struct {
	Date      string
	Requested string
	Reason    string
}

func (e *SlotNotOpenError) Error() string {
	msg := fmt.Sprintf("slot not open on %s at %q", e.Date, e.Requested)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *SlotNotOpenError) Is(target error) bool {
	return target == ErrSlotNotOpen
}

// CapacityUnavailableError reports a full slot and, when one exists, the
// nearest slot that can still take the order
type CapacityUnavailableError struct {
	Requested TimeSlotKey
	Units     int
	Remaining int
	Suggested *TimeSlotKey
}

func (e *CapacityUnavailableError) Error() string {
	if e.Suggested != nil {
		return fmt.Sprintf("slot %s has %d units free, %d requested; nearest available %s",
			e.Requested.Start, e.Remaining, e.Units, e.Suggested.Start)
	}
	return fmt.Sprintf("slot %s has %d units free, %d requested; no slot left on %s",
		e.Requested.Start, e.Remaining, e.Units, e.Requested.Date)
}

func (e *CapacityUnavailableError) Is(target error) bool {
	return target == ErrCapacityUnavailable
}
