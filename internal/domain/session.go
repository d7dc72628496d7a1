package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message is one exchanged line of a conversation
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one customer's ongoing exchange. The message history is the
// single source of truth: the draft can be rebuilt from it.
type Session struct {
	ID            string       `json:"id"`
	BusinessID    string       `json:"business_id"`
	Messages      []Message    `json:"messages"`
	Draft         OrderDraft   `json:"draft"`
	State         SessionState `json:"state"`
	ReservationID *string      `json:"reservation_id,omitempty"`
	CallerPhone   string       `json:"caller_phone,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NewSession creates an OPEN session
func NewSession(id, businessID string, now time.Time) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("session id is required")
	}
	if strings.TrimSpace(businessID) == "" {
		return nil, errors.New("business id is required")
	}
	return &Session{
		ID:         id,
		BusinessID: businessID,
		State:      StateOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Append adds a message to the history
func (s *Session) Append(role Role, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: now})
	s.UpdatedAt = now
}

// TransitionTo moves the session to a new state and records the transition
// in the history
func (s *Session) TransitionTo(newState SessionState, reason string, now time.Time) error {
	if !s.CanTransitionTo(newState) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s.State, newState)
	}

	note := fmt.Sprintf("[state] %s -> %s", s.State, newState)
	if reason != "" {
		note += ": " + reason
	}
	s.State = newState
	s.Append(RoleSystem, note, now)
	return nil
}

// CanTransitionTo checks if the session can transition to the new state
func (s *Session) CanTransitionTo(newState SessionState) bool {
	validTransitions := map[SessionState][]SessionState{
		StateOpen:                 {StateAwaitingConfirmation, StateReset},
		StateAwaitingConfirmation: {StateConfirmed, StateOpen, StateReset},
		StateConfirmed:            {StateReset},
		StateReset:                {},
	}

	for _, st := range validTransitions[s.State] {
		if st == newState {
			return true
		}
	}
	return false
}

// LastUserUtterance returns the content of the latest user message
func (s *Session) LastUserUtterance() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Snapshot returns a copy that is safe to hand out while the session keeps changing
func (s *Session) Snapshot() Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	out.Draft = s.Draft.Clone()
	if s.ReservationID != nil {
		v := *s.ReservationID
		out.ReservationID = &v
	}
	return out
}
