package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

const (
	reservationsExchange = "reservations_topic"
	recorderQueue        = "order_recorder_queue"
	reservationsDLX      = "reservations_dlx"
	reservationsDLQ      = "reservations_dlq"
)

type publisher struct {
	conn Connection
}

func NewPublisher(conn Connection) interfaces.EventPublisher {
	return &publisher{conn: conn}
}

// routingKey yields e.g. "reservation.confirmed.roma"
func routingKey(msg interfaces.ReservationMessage) string {
	return fmt.Sprintf("%s.%s", msg.Event, msg.BusinessID)
}

func (p *publisher) PublishReservation(ctx context.Context, msg interfaces.ReservationMessage) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	// Declare exchange
	if err := ch.ExchangeDeclare(reservationsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = ch.Publish(reservationsExchange, routingKey(msg), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    msg.ReservationID,
		Timestamp:    msg.Timestamp,
		Type:         string(msg.Event),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}
