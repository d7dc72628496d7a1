package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service answers operator questions about recorded orders and moves them
// through the kitchen lifecycle
type Service struct {
	orderRepo interfaces.OrderRepository
	releaser  interfaces.ReservationReleaser
	logger    logger.Logger
	now       func() time.Time
}

// NewService builds the tracking service. releaser may be nil when the
// process does not own the slot counters; cancelling is refused then.
func NewService(orderRepo interfaces.OrderRepository, releaser interfaces.ReservationReleaser, logger logger.Logger) *Service {
	return &Service{
		orderRepo: orderRepo,
		releaser:  releaser,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) GetOrderStatus(ctx context.Context, orderNumber string) (*interfaces.TrackingOrderResponse, error) {
	order, err := s.lookup(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	return view(order), nil
}

func (s *Service) GetOrderHistory(ctx context.Context, orderNumber string) ([]*domain.StatusLog, error) {
	order, err := s.lookup(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	return s.orderRepo.GetStatusHistory(ctx, order.ID)
}

// ListOrders returns recorded orders, newest pickup first
func (s *Service) ListOrders(ctx context.Context, filter interfaces.OrderFilter) ([]*interfaces.TrackingOrderResponse, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("order_list_failed", "Failed to list orders", logger.RequestID(ctx), map[string]interface{}{
			"business_id": filter.BusinessID,
			"status":      filter.Status,
		}, err)
		return nil, err
	}

	out := make([]*interfaces.TrackingOrderResponse, len(orders))
	for i, o := range orders {
		out[i] = view(o)
	}
	return out, nil
}

// UpdateStatus moves the order to status. A cancelled order is stored
// before its capacity is given back, so the released event that follows
// finds it final; if the release fails the previous status is restored.
func (s *Service) UpdateStatus(ctx context.Context, orderNumber string, status domain.Status, changedBy string) (*interfaces.TrackingOrderResponse, error) {
	requestID := logger.RequestID(ctx)

	if status == domain.StatusReleased {
		return nil, fmt.Errorf("%w: released is set by the ordering service", domain.ErrInvalidStateTransition)
	}
	order, err := s.lookup(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	previous := *order
	if err := order.SetStatus(status, s.now()); err != nil {
		return nil, err
	}
	if status == domain.StatusCancelled && s.releaser == nil {
		return nil, fmt.Errorf("cancel order %s: %w", orderNumber, domain.ErrReleaseUnavailable)
	}

	if err := s.orderRepo.Update(ctx, order); err != nil {
		s.logger.Error("order_update_failed", "Failed to update order status", requestID, map[string]interface{}{"order_number": orderNumber}, err)
		return nil, err
	}
	if status == domain.StatusCancelled {
		if err := s.release(ctx, order.Number); err != nil {
			if undoErr := s.orderRepo.Update(ctx, &previous); undoErr != nil {
				s.logger.Error("order_revert_failed", "Failed to restore order status", requestID, map[string]interface{}{"order_number": orderNumber}, undoErr)
			}
			return nil, err
		}
	}
	if err := s.orderRepo.LogStatus(ctx, order.ID, status, changedBy); err != nil {
		s.logger.Error("status_log_failed", "Failed to log status change", requestID, map[string]interface{}{"order_number": orderNumber}, err)
	}

	s.logger.Info("order_status_changed", fmt.Sprintf("Order %s: %s -> %s", order.Number, previous.Status, status), requestID, map[string]interface{}{
		"order_number": order.Number,
		"changed_by":   changedBy,
	})
	return view(order), nil
}

func (s *Service) release(ctx context.Context, orderNumber string) error {
	err := s.releaser.Release(ctx, orderNumber)
	if errors.Is(err, domain.ErrReservationNotFound) {
		// the ordering process restarted since the order was confirmed
		s.logger.Info("release_skipped", "Reservation unknown to this process", logger.RequestID(ctx), map[string]interface{}{"order_number": orderNumber})
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", orderNumber, err)
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, orderNumber string) (*domain.Order, error) {
	order, err := s.orderRepo.FindByNumber(ctx, orderNumber)
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		s.logger.Error("order_lookup_failed", "Failed to load order", logger.RequestID(ctx), map[string]interface{}{"order_number": orderNumber}, err)
	}
	return order, err
}

func view(order *domain.Order) *interfaces.TrackingOrderResponse {
	return &interfaces.TrackingOrderResponse{
		OrderNumber:     order.Number,
		BusinessID:      order.BusinessID,
		CurrentStatus:   order.Status,
		PickupDate:      order.PickupDate,
		PickupSlot:      order.PickupSlot,
		CustomerName:    order.CustomerName,
		CustomerPhone:   order.CustomerPhone,
		Items:           order.Items,
		TotalAmount:     order.TotalAmount,
		UpdatedAt:       order.UpdatedAt,
		ReleasedAt:      order.ReleasedAt,
		ConversationLog: order.ConversationLog,
	}
}
