package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

type Config struct {
	Brokers string
	Topic   string
}

// Publisher sends reservation events to a Kafka topic, keyed by business
// so one restaurant's events stay ordered within a partition
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   logger.Logger
}

func NewPublisher(cfg Config, logger logger.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Net.DialTimeout = 30 * time.Second
	saramaConfig.Net.ReadTimeout = 30 * time.Second
	saramaConfig.Net.WriteTimeout = 30 * time.Second

	brokers := strings.Split(cfg.Brokers, ",")
	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("kafka_connected", "Kafka producer created", "", map[string]interface{}{"brokers": brokers})
	return NewPublisherWithProducer(producer, cfg.Topic, logger), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger logger.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

func (p *Publisher) PublishReservation(ctx context.Context, msg interfaces.ReservationMessage) error {
	if p.producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.BusinessID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(msg.Event)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", msg.Event, p.topic, err)
	}

	p.logger.Debug("kafka_published", "Reservation event published", logger.RequestID(ctx), map[string]interface{}{
		"event":     msg.Event,
		"partition": partition,
		"offset":    offset,
	})
	return nil
}

func (p *Publisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
