package broadcast

import (
	"context"
	"fmt"
	"github.com/segmentio/kafka-go"
	"time"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes to a Kafka topic keyed by order id, so every event of
// one order lands on the same partition.
type KafkaSink struct {
	writer kafkaWriter
}

func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers are empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is empty")
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		// one synchronous write per order, do not wait for a batch to fill
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}, nil
}

func NewKafkaSink(writer kafkaWriter) (*KafkaSink, error) {
	if writer == nil {
		return nil, fmt.Errorf("writer is nil")
	}

	return &KafkaSink{writer: writer}, nil
}

func (s *KafkaSink) Name() string {
	return "topic"
}

func (s *KafkaSink) Send(ctx context.Context, payload Payload) error {
	msg := kafka.Message{
		Key:   []byte(payload.Key),
		Value: payload.Body,
		Time:  time.Now().UTC(),
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writer.WriteMessages: %w", err)
	}

	return nil
}
