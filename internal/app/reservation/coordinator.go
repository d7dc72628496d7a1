package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/app/calendar"
	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

// Coordinator turns a confirmed draft into a capacity-backed reservation
type Coordinator struct {
	store     interfaces.CapacityStore
	calendar  *calendar.Calendar
	repo      interfaces.ReservationRepository
	publisher interfaces.EventPublisher
	logger    logger.Logger
	newID     func() string
}

func NewCoordinator(
	store interfaces.CapacityStore,
	cal *calendar.Calendar,
	repo interfaces.ReservationRepository,
	publisher interfaces.EventPublisher,
	logger logger.Logger,
) *Coordinator {
	return &Coordinator{
		store:     store,
		calendar:  cal,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// ResolveKey returns the slot the draft asks for
func (c *Coordinator) ResolveKey(draft domain.OrderDraft, b *domain.Business) (domain.TimeSlotKey, error) {
	if draft.RequestedPickup != nil {
		if draft.RequestedPickup.BusinessID != b.ID {
			return domain.TimeSlotKey{}, domain.ErrBusinessMismatch
		}
		return *draft.RequestedPickup, nil
	}
	if draft.PickupText == nil {
		return domain.TimeSlotKey{}, &domain.SlotNotOpenError{Reason: "no pickup time given"}
	}
	return c.calendar.ResolvePickup(b, *draft.PickupText)
}

type reserveOptions struct {
	transcript []domain.Message
}

type ReserveOption func(*reserveOptions)

// WithTranscript attaches the conversation to the confirmed event so the
// order store keeps it next to the order
func WithTranscript(messages []domain.Message) ReserveOption {
	return func(o *reserveOptions) {
		o.transcript = append([]domain.Message(nil), messages...)
	}
}

// TryReserve reserves the draft's units in its requested slot. A full slot
// yields *domain.CapacityUnavailableError carrying the nearest alternative.
func (c *Coordinator) TryReserve(ctx context.Context, sessionID string, draft domain.OrderDraft, b *domain.Business, opts ...ReserveOption) (*domain.Reservation, error) {
	requestID := logger.RequestID(ctx)

	var o reserveOptions
	for _, opt := range opts {
		opt(&o)
	}

	if draft.IsEmpty() {
		return nil, domain.ErrEmptyOrder
	}

	// 1. Слот
	key, err := c.ResolveKey(draft, b)
	if err != nil {
		return nil, err
	}
	end, err := c.calendar.SlotEnd(b, key)
	if err != nil {
		return nil, err
	}
	now := c.calendar.Now()
	if !end.After(now) {
		return nil, &domain.SlotNotOpenError{Date: key.Date, Requested: key.Start, Reason: "slot already over"}
	}

	// 2. Единицы мощности
	units := draft.CapacityUnits(b.CapacityCategories)
	start, _ := key.StartTime(b.Location())
	capacity := b.CapacityFor(start.Weekday())

	if units > 0 {
		ok, err := c.store.TryReserve(ctx, key, units, capacity)
		if err != nil {
			c.logger.Error("capacity_reserve_failed", "Capacity store unavailable", requestID, map[string]interface{}{"slot": key.String()}, err)
			return nil, fmt.Errorf("failed to reserve capacity: %w", err)
		}
		if !ok {
			return nil, c.unavailable(ctx, b, key, units, capacity)
		}
	}

	// 3. Сохранение
	res := &domain.Reservation{
		ID:          c.newID(),
		SessionID:   sessionID,
		BusinessID:  b.ID,
		Key:         key,
		Items:       append([]domain.DraftItem(nil), draft.Items...),
		TotalAmount: draft.TotalAmount(),
		Units:       units,
		CommittedAt: now,
	}
	if draft.CustomerName != nil {
		res.CustomerName = *draft.CustomerName
	}
	if draft.CustomerPhone != nil {
		res.CustomerPhone = *draft.CustomerPhone
	}

	if err := c.repo.Create(ctx, res); err != nil {
		if units > 0 {
			if relErr := c.store.Release(ctx, key, units); relErr != nil {
				c.logger.Error("capacity_rollback_failed", "Failed to give back capacity", requestID, map[string]interface{}{"slot": key.String()}, relErr)
			}
		}
		return nil, fmt.Errorf("failed to save reservation: %w", err)
	}

	c.logger.Info("reservation_confirmed", fmt.Sprintf("Reserved %d units in %s", units, key), requestID, map[string]interface{}{
		"reservation_id": res.ID,
		"session_id":     sessionID,
		"units":          units,
	})

	// 4. Публикация события
	msg := interfaces.NewReservationMessage(interfaces.EventReservationConfirmed, res, now)
	msg.ConversationLog = o.transcript
	c.publish(ctx, msg)

	return res, nil
}

func (c *Coordinator) unavailable(ctx context.Context, b *domain.Business, key domain.TimeSlotKey, units, capacity int) error {
	occupied, err := c.store.Occupancy(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read occupancy: %w", err)
	}
	remaining := capacity - occupied
	if remaining < 0 {
		remaining = 0
	}

	unavailable := &domain.CapacityUnavailableError{Requested: key, Units: units, Remaining: remaining}
	suggested, found, err := c.calendar.NearestAvailable(ctx, b, key, units)
	if err != nil {
		return fmt.Errorf("failed to find an alternative slot: %w", err)
	}
	if found {
		unavailable.Suggested = &suggested
	}

	c.logger.Debug("slot_full", unavailable.Error(), logger.RequestID(ctx), map[string]interface{}{"slot": key.String()})
	return unavailable
}

// Release frees the reservation's capacity. Repeated calls are absorbed:
// only the first successful one decrements the counter. A failed decrement
// leaves the reservation active.
func (c *Coordinator) Release(ctx context.Context, reservationID string) error {
	requestID := logger.RequestID(ctx)

	res, err := c.repo.FindByID(ctx, reservationID)
	if err != nil {
		return err
	}

	now := c.calendar.Now()
	first, err := c.repo.MarkReleased(ctx, reservationID, now)
	if err != nil {
		return fmt.Errorf("failed to mark reservation released: %w", err)
	}
	if !first {
		c.logger.Debug("release_skipped", "Reservation already released", requestID, map[string]interface{}{"reservation_id": reservationID})
		return nil
	}

	if res.Units > 0 {
		if err := c.store.Release(ctx, res.Key, res.Units); err != nil {
			c.logger.Error("capacity_release_failed", "Failed to release capacity", requestID, map[string]interface{}{"reservation_id": reservationID}, err)
			// units are still held: the reservation stays active so a retry frees them
			if undoErr := c.repo.UnmarkReleased(ctx, reservationID); undoErr != nil {
				c.logger.Error("release_revert_failed", "Failed to reactivate reservation", requestID, map[string]interface{}{"reservation_id": reservationID}, undoErr)
			}
			return fmt.Errorf("failed to release capacity: %w", err)
		}
	}

	res.VoidedAt = &now
	c.logger.Info("reservation_released", fmt.Sprintf("Released %d units in %s", res.Units, res.Key), requestID, map[string]interface{}{
		"reservation_id": reservationID,
	})
	c.publish(ctx, interfaces.NewReservationMessage(interfaces.EventReservationReleased, res, now))
	return nil
}

// Reschedule moves a reservation to another slot by releasing it and
// reserving again. When the new slot cannot take it, the original slot is
// reserved again if still possible and returned together with the error.
func (c *Coordinator) Reschedule(ctx context.Context, reservationID string, newKey domain.TimeSlotKey, b *domain.Business) (*domain.Reservation, error) {
	res, err := c.repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !res.IsActive() {
		return nil, fmt.Errorf("reservation %s: %w", reservationID, domain.ErrAlreadyReleased)
	}
	if res.BusinessID != b.ID {
		return nil, domain.ErrBusinessMismatch
	}

	if err := c.Release(ctx, reservationID); err != nil {
		return nil, err
	}

	draft := draftOf(res)
	draft.RequestedPickup = &newKey
	moved, err := c.TryReserve(ctx, res.SessionID, draft, b)
	if err == nil {
		return moved, nil
	}

	old := draftOf(res)
	old.RequestedPickup = &res.Key
	restored, restoreErr := c.TryReserve(ctx, res.SessionID, old, b)
	if restoreErr != nil {
		c.logger.Error("reschedule_restore_failed", "Original slot could not be reserved again", logger.RequestID(ctx), map[string]interface{}{
			"reservation_id": reservationID,
			"slot":           res.Key.String(),
		}, restoreErr)
		return nil, err
	}
	return restored, err
}

func draftOf(res *domain.Reservation) domain.OrderDraft {
	d := domain.OrderDraft{Items: append([]domain.DraftItem(nil), res.Items...)}
	if res.CustomerName != "" {
		name := res.CustomerName
		d.CustomerName = &name
	}
	if res.CustomerPhone != "" {
		phone := res.CustomerPhone
		d.CustomerPhone = &phone
	}
	return d
}

// publish is fire-and-forget: persistence of the order happens downstream
func (c *Coordinator) publish(ctx context.Context, msg interfaces.ReservationMessage) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishReservation(ctx, msg); err != nil {
		c.logger.Error("event_publish_failed", "Failed to publish reservation event", logger.RequestID(ctx), map[string]interface{}{
			"event":          msg.Event,
			"reservation_id": msg.ReservationID,
		}, err)
	}
}

// IsRecoverable reports whether err should be turned into a prompt for the
// customer rather than surfaced to the caller
func IsRecoverable(err error) bool {
	return errors.Is(err, domain.ErrSlotNotOpen) || errors.Is(err, domain.ErrCapacityUnavailable)
}

