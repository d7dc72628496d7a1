package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

const DefaultName = "order-recorder"

// Service is the order-persistence collaborator: it turns reservation events
// into durable orders. Redelivered events are absorbed.
type Service struct {
	orderRepo interfaces.OrderRepository
	logger    logger.Logger
	name      string
}

func NewService(orderRepo interfaces.OrderRepository, logger logger.Logger, name string) *Service {
	if name == "" {
		name = DefaultName
	}
	return &Service{
		orderRepo: orderRepo,
		logger:    logger,
		name:      name,
	}
}

func (s *Service) HandleReservation(ctx context.Context, msg interfaces.ReservationMessage) error {
	if msg.ReservationID == "" {
		return errors.New("reservation message without reservation id")
	}

	switch msg.Event {
	case interfaces.EventReservationConfirmed:
		return s.recordConfirmed(ctx, msg)
	case interfaces.EventReservationReleased:
		return s.recordReleased(ctx, msg)
	default:
		return fmt.Errorf("unknown reservation event %q", msg.Event)
	}
}

func (s *Service) recordConfirmed(ctx context.Context, msg interfaces.ReservationMessage) error {
	// Идемпотентность: заказ уже записан
	_, err := s.orderRepo.FindByNumber(ctx, msg.ReservationID)
	if err == nil {
		s.logger.Debug("order_duplicate", "Order already recorded, skipping", msg.ReservationID, nil)
		return nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return retryable(err)
	}

	order, err := domain.NewOrder(reservationOf(msg))
	if err != nil {
		return err
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return retryable(err)
	}

	s.logger.Info("order_recorded", fmt.Sprintf("Order %s recorded for %s %s", order.Number, order.PickupDate, order.PickupSlot),
		msg.ReservationID, map[string]interface{}{
			"business_id": order.BusinessID,
			"units":       order.CapacityUnits,
			"total":       order.TotalAmount,
		})
	return nil
}

func (s *Service) recordReleased(ctx context.Context, msg interfaces.ReservationMessage) error {
	order, err := s.orderRepo.FindByNumber(ctx, msg.ReservationID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		// confirmed пропущено или ушло в DLQ: записываем сразу как released
		order, err = domain.NewOrder(reservationOf(msg))
		if err != nil {
			return err
		}
		_ = order.Release(msg.Timestamp)
		if err := s.orderRepo.Create(ctx, order); err != nil {
			return retryable(err)
		}
		s.logger.Info("order_released", "Released order recorded without prior confirmation", msg.ReservationID, nil)
		return nil
	}
	if err != nil {
		return retryable(err)
	}

	if err := order.Release(msg.Timestamp); err != nil {
		if errors.Is(err, domain.ErrAlreadyReleased) {
			s.logger.Debug("order_duplicate", "Order already released, skipping", msg.ReservationID, nil)
			return nil
		}
		return err
	}

	if err := s.orderRepo.Update(ctx, order); err != nil {
		return retryable(err)
	}
	if err := s.orderRepo.LogStatus(ctx, order.ID, domain.StatusReleased, s.name); err != nil {
		s.logger.Error("db_error", "Failed to log release status", msg.ReservationID, nil, err)
	}

	s.logger.Info("order_released", fmt.Sprintf("Order %s released", order.Number), msg.ReservationID, nil)
	return nil
}

func reservationOf(msg interfaces.ReservationMessage) *domain.Reservation {
	return &domain.Reservation{
		ID:            msg.ReservationID,
		SessionID:     msg.SessionID,
		BusinessID:    msg.BusinessID,
		Key:           domain.TimeSlotKey{BusinessID: msg.BusinessID, Date: msg.SlotDate, Start: msg.SlotStart},
		Items:         msg.Items,
		CustomerName:  msg.CustomerName,
		CustomerPhone: msg.CustomerPhone,
		TotalAmount:   msg.TotalAmount,
		Units:         msg.Units,
		CommittedAt:   msg.Timestamp,
		Transcript:    msg.ConversationLog,
	}
}

// storage failures are worth another delivery
func retryable(err error) error {
	return fmt.Errorf("%w: %w", interfaces.ErrRequeue, err)
}
