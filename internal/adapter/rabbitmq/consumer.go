package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

const reconnectDelay = 5 * time.Second

type consumer struct {
	conn     Connection
	prefetch int
	logger   logger.Logger
	delay    time.Duration
}

func NewConsumer(conn Connection, prefetch int, logger logger.Logger) interfaces.MessageConsumer {
	return &consumer{conn: conn, prefetch: prefetch, logger: logger, delay: reconnectDelay}
}

func (c *consumer) ConsumeReservations(ctx context.Context, handler interfaces.ReservationMessageHandler) error {
	for {
		err := c.consumeReservations(ctx, handler)

		// Если контекст отменен - выходим
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil {
			return nil
		}

		c.logger.Error("consumer_disconnected", "Reservations consumer disconnected, reconnecting", "",
			map[string]interface{}{"retry_in": c.delay.String()}, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.delay):
		}
	}
}

func (c *consumer) consumeReservations(ctx context.Context, handler interfaces.ReservationMessageHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	// Отслеживаем закрытие канала
	closeChan := ch.NotifyClose()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := setupReservationsInfrastructure(ch); err != nil {
		return err
	}

	msgs, err := ch.Consume(recorderQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return fmt.Errorf("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}
			c.dispatch(ctx, msg, handler)
		}
	}
}

func (c *consumer) dispatch(ctx context.Context, msg amqp.Delivery, handler interfaces.ReservationMessageHandler) {
	err := handler(ctx, msg.Body)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Error("ack_failed", "Failed to ack reservation message", msg.MessageId, nil, ackErr)
		}
		return
	}

	requeue := errors.Is(err, interfaces.ErrRequeue)
	c.logger.Error("message_rejected", "Reservation message handler failed", msg.MessageId,
		map[string]interface{}{"requeue": requeue, "routing_key": msg.RoutingKey}, err)
	if nackErr := msg.Nack(false, requeue); nackErr != nil {
		c.logger.Error("nack_failed", "Failed to nack reservation message", msg.MessageId, nil, nackErr)
	}
}

func setupReservationsInfrastructure(ch Channel) error {
	if err := ch.ExchangeDeclare(reservationsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare reservations exchange: %w", err)
	}

	if err := ch.ExchangeDeclare(reservationsDLX, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(reservationsDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	if err := ch.QueueBind(reservationsDLQ, "", reservationsDLX, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	// основная очередь с DLQ
	args := amqp.Table{
		"x-dead-letter-exchange": reservationsDLX,
	}

	q, err := ch.QueueDeclare(recorderQueue, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("failed to declare recorder queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "reservation.#", reservationsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind recorder queue: %w", err)
	}

	return nil
}
