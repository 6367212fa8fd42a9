package broadcast

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"sync"
	"time"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQSink publishes to a fanout exchange: every bound queue receives a copy.
type RabbitMQSink struct {
	// amqp channels are not safe for concurrent publishing
	mu       sync.Mutex
	ch       amqpChannel
	exchange string
}

// SetupExchange dials the broker and declares a durable fanout exchange.
func SetupExchange(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp.Dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("conn.Channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("ch.ExchangeDeclare[%s]: %w", exchange, err)
	}

	return conn, ch, nil
}

func NewRabbitMQSink(ch amqpChannel, exchange string) (*RabbitMQSink, error) {
	if ch == nil {
		return nil, fmt.Errorf("ch is nil")
	}
	if exchange == "" {
		return nil, fmt.Errorf("exchange is empty")
	}

	return &RabbitMQSink{
		ch:       ch,
		exchange: exchange,
	}, nil
}

func (s *RabbitMQSink) Name() string {
	return "topic"
}

func (s *RabbitMQSink) Send(ctx context.Context, payload Payload) error {
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: payload.Key,
		Timestamp:     time.Now().UTC(),
		Body:          payload.Body,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ch.PublishWithContext(ctx, s.exchange, "", false, false, msg); err != nil {
		return fmt.Errorf("ch.PublishWithContext[%s]: %w", s.exchange, err)
	}

	return nil
}
