package amqp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

type ReservationHandler struct {
	service interfaces.RecorderService
	logger  logger.Logger
}

func NewReservationHandler(service interfaces.RecorderService, logger logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		logger:  logger,
	}
}

// HandleReservation decodes one delivery body. Malformed bodies are not
// retryable and end up in the dead letter queue.
func (h *ReservationHandler) HandleReservation(ctx context.Context, body []byte) error {
	var msg interfaces.ReservationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse reservation message", "", nil, err)
		return err
	}

	ctx = logger.WithRequestID(ctx, msg.ReservationID)
	h.logger.Debug("reservation_received", fmt.Sprintf("Received %s for slot %s %s", msg.Event, msg.SlotDate, msg.SlotStart),
		msg.ReservationID, map[string]interface{}{
			"business_id": msg.BusinessID,
			"units":       msg.Units,
		})

	return h.service.HandleReservation(ctx, msg)
}
