package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/app/calendar"
	"github.com/YelzhanWeb/pizzaline/internal/app/extractor"
	"github.com/YelzhanWeb/pizzaline/internal/app/reservation"
	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

// Engine drives conversations: one turn at a time per session id
type Engine struct {
	directory    interfaces.BusinessDirectory
	registry     interfaces.SessionRegistry
	reservations interfaces.ReservationRepository
	extractor    *extractor.Extractor
	calendar     *calendar.Calendar
	coordinator  *reservation.Coordinator
	responder    interfaces.Responder
	archiver     interfaces.TranscriptArchiver
	logger       logger.Logger
	locks        *keyedMutex
}

type Deps struct {
	Directory    interfaces.BusinessDirectory
	Registry     interfaces.SessionRegistry
	Reservations interfaces.ReservationRepository
	Extractor    *extractor.Extractor
	Calendar     *calendar.Calendar
	Coordinator  *reservation.Coordinator
	Responder    interfaces.Responder
	Archiver     interfaces.TranscriptArchiver
	Logger       logger.Logger
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		directory:    d.Directory,
		registry:     d.Registry,
		reservations: d.Reservations,
		extractor:    d.Extractor,
		calendar:     d.Calendar,
		coordinator:  d.Coordinator,
		responder:    d.Responder,
		archiver:     d.Archiver,
		logger:       d.Logger,
		locks:        newKeyedMutex(),
	}
}

// Ingest processes one customer utterance and returns the agent's reply
func (e *Engine) Ingest(ctx context.Context, sessionID, businessID, utterance string) (*interfaces.TurnResult, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, errors.New("utterance is empty")
	}

	unlock := e.locks.Lock(sessionID)
	defer unlock()

	requestID := logger.RequestID(ctx)

	b, err := e.directory.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	session, err := e.loadOrCreate(ctx, sessionID, b)
	if err != nil {
		return nil, err
	}

	switch session.State {
	case domain.StateConfirmed:
		return nil, domain.ErrSessionAlreadyConfirmed
	case domain.StateOpen:
	default:
		return nil, fmt.Errorf("session %s: %w: cannot ingest in state %s", sessionID, domain.ErrInvalidStateTransition, session.State)
	}

	now := e.calendar.Now()
	before := session.Draft.Clone()
	session.Append(domain.RoleUser, utterance, now)

	// 1. Ответ агента
	raw, err := e.responder.Respond(ctx, session.Messages)
	if err != nil {
		// the turn is dropped unsaved: the customer repeats and nothing is committed
		e.logger.Error("responder_failed", "Agent reply failed, asking the customer to repeat", requestID, map[string]interface{}{"session_id": sessionID}, err)
		return &interfaces.TurnResult{
			SessionID: sessionID,
			Reply:     fallbackReply,
			Draft:     before,
			State:     session.State,
		}, nil
	}
	session.Append(domain.RoleAssistant, raw, now)
	reply := extractor.StripBlocks(raw)

	// 2. Извлечение черновика
	res := e.extractor.Extract(extractor.Input{
		Draft:         before,
		UserText:      utterance,
		AssistantText: raw,
		Menu:          b.Menu,
	})
	session.Draft = res.Draft
	e.resolvePickup(session, b)

	e.logger.Debug("draft_extracted", "Draft updated", requestID, map[string]interface{}{
		"session_id":   sessionID,
		"source":       res.Source,
		"items":        len(session.Draft.Items),
		"confirmation": res.IsConfirmationTurn,
	})

	// 3. Подтверждение
	var committed *domain.Reservation
	if res.IsConfirmationTurn {
		committed, reply, err = e.confirm(ctx, session, b, reply)
		if err != nil {
			if saveErr := e.registry.Save(ctx, session); saveErr != nil {
				e.logger.Error("session_save_failed", "Failed to save session", requestID, map[string]interface{}{"session_id": sessionID}, saveErr)
			}
			return nil, err
		}
	}

	if err := e.registry.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return &interfaces.TurnResult{
		SessionID:   sessionID,
		Reply:       reply,
		Draft:       session.Draft.Clone(),
		State:       session.State,
		Reservation: committed,
	}, nil
}

func (e *Engine) loadOrCreate(ctx context.Context, sessionID string, b *domain.Business) (*domain.Session, error) {
	session, err := e.registry.Get(ctx, sessionID)
	if err == nil {
		if session.BusinessID != b.ID {
			return nil, domain.ErrBusinessMismatch
		}
		if isBlank(session.Draft) && len(session.Messages) > 1 {
			session.Draft = e.Rebuild(session, b)
		}
		if session.CallerPhone == "" {
			session.CallerPhone = domain.CallerPhone(ctx)
		}
		return session, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	now := e.calendar.Now()
	session, err = domain.NewSession(sessionID, b.ID, now)
	if err != nil {
		return nil, err
	}
	session.CallerPhone = domain.CallerPhone(ctx)
	session.Append(domain.RoleSystem, systemPrompt(b, now.In(b.Location())), now)
	e.logger.Info("session_created", "Conversation started", logger.RequestID(ctx), map[string]interface{}{
		"session_id":  sessionID,
		"business_id": b.ID,
	})
	return session, nil
}

func isBlank(d domain.OrderDraft) bool {
	return d.IsEmpty() && d.CustomerName == nil && d.PickupText == nil
}

// resolvePickup keeps the slot key in step with the pickup text. An
// unreadable or closed time leaves the key empty; confirmation reports it.
func (e *Engine) resolvePickup(session *domain.Session, b *domain.Business) {
	d := &session.Draft
	if d.PickupText == nil || d.RequestedPickup != nil {
		return
	}
	key, err := e.calendar.ResolvePickup(b, *d.PickupText)
	if err != nil {
		return
	}
	d.RequestedPickup = &key
}

// confirm runs OPEN -> AWAITING_CONFIRMATION -> CONFIRMED, falling back to
// OPEN with a renegotiation prompt when the slot cannot be reserved
func (e *Engine) confirm(ctx context.Context, session *domain.Session, b *domain.Business, reply string) (*domain.Reservation, string, error) {
	now := e.calendar.Now()

	// the turn itself may have emptied the order
	if session.Draft.IsEmpty() {
		session.Append(domain.RoleSystem, emptyOrderAgentPrompt, now)
		return nil, emptyOrderReply, nil
	}

	if _, err := e.coordinator.ResolveKey(session.Draft, b); err != nil {
		var notOpen *domain.SlotNotOpenError
		if errors.As(err, &notOpen) {
			agent, customer := slotPrompts(notOpen, b)
			session.Draft.ClearPickup()
			session.Append(domain.RoleSystem, agent, now)
			return nil, customer, nil
		}
		return nil, reply, err
	}

	if err := session.TransitionTo(domain.StateAwaitingConfirmation, "customer confirmed", now); err != nil {
		return nil, reply, err
	}

	if session.Draft.CustomerPhone == nil && session.CallerPhone != "" {
		phone := session.CallerPhone
		session.Draft.CustomerPhone = &phone
	}
	res, err := e.coordinator.TryReserve(ctx, session.ID, session.Draft, b, reservation.WithTranscript(session.Messages))
	if err == nil {
		session.ReservationID = &res.ID
		if err := session.TransitionTo(domain.StateConfirmed, fmt.Sprintf("reservation %s in %s", res.ID, res.Key), now); err != nil {
			return nil, reply, err
		}
		if reply == "" {
			reply = fmt.Sprintf(confirmedReply, res.Key.Start)
		}
		return res, reply, nil
	}

	if transErr := session.TransitionTo(domain.StateOpen, err.Error(), now); transErr != nil {
		return nil, reply, transErr
	}
	if !reservation.IsRecoverable(err) {
		return nil, reply, err
	}

	session.Draft.ClearPickup()
	var agent, customer string
	var unavailable *domain.CapacityUnavailableError
	var notOpen *domain.SlotNotOpenError
	switch {
	case errors.As(err, &unavailable):
		agent, customer = capacityPrompts(unavailable)
	case errors.As(err, &notOpen):
		agent, customer = slotPrompts(notOpen, b)
	}
	session.Append(domain.RoleSystem, agent, now)

	e.logger.Info("reservation_renegotiated", "Slot unavailable, asking for another time", logger.RequestID(ctx), map[string]interface{}{
		"session_id": session.ID,
		"reason":     err.Error(),
	})
	return nil, customer, nil
}

// Reset releases any active reservation of the session, archives the
// transcript and forgets the session. The next ingest starts afresh.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	unlock := e.locks.Lock(sessionID)
	defer unlock()

	requestID := logger.RequestID(ctx)

	active, err := e.reservations.FindActiveBySession(ctx, sessionID)
	switch {
	case err == nil:
		if err := e.coordinator.Release(ctx, active.ID); err != nil {
			return fmt.Errorf("failed to release reservation %s: %w", active.ID, err)
		}
	case !errors.Is(err, domain.ErrReservationNotFound):
		return fmt.Errorf("failed to look up reservation: %w", err)
	}

	session, err := e.registry.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if err := session.TransitionTo(domain.StateReset, "reset requested", e.calendar.Now()); err != nil {
		return err
	}
	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, session.Snapshot()); err != nil {
			e.logger.Error("archive_failed", "Failed to archive transcript", requestID, map[string]interface{}{"session_id": sessionID}, err)
		}
	}
	if err := e.registry.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	e.logger.Info("session_reset", "Conversation reset", requestID, map[string]interface{}{"session_id": sessionID})
	return nil
}

// Session returns a snapshot of the session
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.registry.Get(ctx, sessionID)
}

func (e *Engine) AvailableSlots(ctx context.Context, businessID string, date time.Time) ([]domain.SlotAvailability, error) {
	b, err := e.directory.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return e.calendar.AvailableSlots(ctx, b, date)
}

// CheckSlot answers "is there room at HH:MM" for a single slot
func (e *Engine) CheckSlot(ctx context.Context, businessID string, date time.Time, clock string, units int) (*domain.SlotAvailability, error) {
	b, err := e.directory.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	slot, err := e.calendar.CheckSlot(ctx, b, date, clock, units)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// Reschedule moves a confirmed order to another time on operator request
func (e *Engine) Reschedule(ctx context.Context, reservationID string, date time.Time, clock string) (*domain.Reservation, error) {
	current, err := e.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	b, err := e.directory.Get(ctx, current.BusinessID)
	if err != nil {
		return nil, err
	}
	key, err := e.calendar.ResolvePickup(b, date.Format(domain.DateLayout)+" "+clock)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(current.SessionID)
	defer unlock()

	moved, err := e.coordinator.Reschedule(ctx, reservationID, key, b)
	if moved != nil {
		e.recordReschedule(ctx, current.SessionID, moved)
	}
	return moved, err
}

func (e *Engine) recordReschedule(ctx context.Context, sessionID string, moved *domain.Reservation) {
	session, err := e.registry.Get(ctx, sessionID)
	if err != nil {
		return
	}
	session.ReservationID = &moved.ID
	key := moved.Key
	session.Draft.RequestedPickup = &key
	pickup := key.Date + " " + key.Start
	session.Draft.PickupText = &pickup
	session.Append(domain.RoleSystem, fmt.Sprintf("[reschedule] reservation %s in %s", moved.ID, key), e.calendar.Now())
	if err := e.registry.Save(ctx, session); err != nil {
		e.logger.Error("session_save_failed", "Failed to save rescheduled session", logger.RequestID(ctx), map[string]interface{}{"session_id": sessionID}, err)
	}
}

// Rebuild replays the transcript through the extractor. It gives back the
// draft a session had before a restart when only its history survived.
func (e *Engine) Rebuild(session *domain.Session, b *domain.Business) domain.OrderDraft {
	var (
		draft    domain.OrderDraft
		lastUser string
	)
	for _, m := range session.Messages {
		switch m.Role {
		case domain.RoleUser:
			lastUser = m.Content
		case domain.RoleAssistant:
			res := e.extractor.Extract(extractor.Input{
				Draft:         draft,
				UserText:      lastUser,
				AssistantText: m.Content,
				Menu:          b.Menu,
			})
			draft = res.Draft
			lastUser = ""
		case domain.RoleSystem:
			if strings.HasPrefix(m.Content, renegotiateTag) {
				draft.ClearPickup()
			}
		}
	}
	if draft.PickupText != nil {
		if key, err := e.calendar.ResolvePickup(b, *draft.PickupText); err == nil {
			draft.RequestedPickup = &key
		}
	}
	return draft
}

// ExpireIdle forgets sessions idle for longer than ttl. Confirmed orders
// keep their reservations.
func (e *Engine) ExpireIdle(ctx context.Context, ttl time.Duration) ([]string, error) {
	expired, err := e.registry.Expire(ctx, e.calendar.Now().Add(-ttl))
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		e.logger.Info("sessions_expired", fmt.Sprintf("Expired %d idle sessions", len(expired)), "", map[string]interface{}{"sessions": expired})
	}
	return expired, nil
}

// RunJanitor expires idle sessions every interval until ctx is done
func (e *Engine) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ExpireIdle(ctx, ttl); err != nil {
				e.logger.Error("session_expiry_failed", "Failed to expire sessions", "", nil, err)
			}
		}
	}
}
