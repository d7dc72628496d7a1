package domain

import (
	"fmt"
	"strings"
	"time"
)

type SessionState string

const (
	StateOpen                 SessionState = "OPEN"
	StateAwaitingConfirmation SessionState = "AWAITING_CONFIRMATION"
	StateConfirmed            SessionState = "CONFIRMED"
	StateReset                SessionState = "RESET"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the kitchen-side lifecycle of a recorded order. An order is
// only recorded once its capacity is committed, so it starts confirmed.
// released means the ordering service gave the capacity back (reset or
// reschedule); cancelled is an operator decision.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusReleased  Status = "released"
)

var orderTransitions = map[Status][]Status{
	StatusConfirmed: {StatusPreparing, StatusCancelled, StatusReleased},
	StatusPreparing: {StatusReady, StatusCancelled, StatusReleased},
	StatusReady:     {StatusCompleted, StatusReleased},
}

// ParseStatus accepts any case ("READY", "ready")
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled, StatusReleased:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsFinal reports whether the order no longer holds kitchen capacity
func (s Status) IsFinal() bool {
	return len(orderTransitions[s]) == 0
}

// StatusLog represents a log entry for persisted order status changes
type StatusLog struct {
	ID        int
	OrderID   int
	Status    Status
	ChangedBy string
	ChangedAt time.Time
	Notes     *string
}
