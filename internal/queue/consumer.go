package queue

import (
	"context"
	"fmt"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/nikolayk812/orderfan/internal/metrics"
	"github.com/nikolayk812/orderfan/internal/port"
	"github.com/samber/lo"
	"log/slog"
	"time"
)

const (
	DefaultBatchSize = 10
	DefaultWait      = 20 * time.Second
)

// Handler receives every successfully decoded order. Returning an error
// leaves the message in the queue for redelivery.
type Handler func(ctx context.Context, order domain.Order) error

// Outcome reports what happened to one message of a drain cycle.
type Outcome struct {
	ReceiptHandle string
	Order         domain.Order
	Handled       bool
	Deleted       bool
	Err           error
}

type Consumer struct {
	queue     port.Queue
	decoder   *Decoder
	batchSize int
	wait      time.Duration
	metrics   *metrics.Metrics
}

type ConsumerConfig struct {
	BatchSize int
	Wait      time.Duration
	Metrics   *metrics.Metrics
}

func (c ConsumerConfig) applyDefaults() ConsumerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Wait <= 0 {
		c.Wait = DefaultWait
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Discard()
	}
	return c
}

func NewConsumer(queue port.Queue, decoder *Decoder, cfg ConsumerConfig) (*Consumer, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue is nil")
	}
	if decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}

	cfg = cfg.applyDefaults()

	return &Consumer{
		queue:     queue,
		decoder:   decoder,
		batchSize: cfg.BatchSize,
		wait:      cfg.Wait,
		metrics:   cfg.Metrics,
	}, nil
}

// Drain runs one polling cycle. Messages are handled sequentially in the
// order returned by the poll; a failing message never aborts its siblings.
// A message is deleted only after its handler returned nil.
func (c *Consumer) Drain(ctx context.Context, handler Handler) ([]Outcome, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is nil")
	}

	msgs, err := c.queue.Receive(ctx, c.batchSize, c.wait)
	if err != nil {
		return nil, fmt.Errorf("queue.Receive: %w", err)
	}

	c.metrics.MessagesReceived.Add(float64(len(msgs)))

	outcomes := make([]Outcome, 0, len(msgs))
	for _, msg := range msgs {
		outcomes = append(outcomes, c.handle(ctx, msg, handler))
	}

	return outcomes, nil
}

func (c *Consumer) handle(ctx context.Context, msg domain.QueueMessage, handler Handler) Outcome {
	out := Outcome{ReceiptHandle: msg.ReceiptHandle}

	order, err := c.decoder.Decode(msg.Body)
	if err != nil {
		c.metrics.MessagesFailed.WithLabelValues("decode").Inc()
		out.Err = &domain.DecodeError{ReceiptHandle: msg.ReceiptHandle, Err: err}

		slog.Warn("Message left for redelivery",
			"method", "Consumer.Drain",
			"receipt_handle", msg.ReceiptHandle,
			"error", out.Err)
		return out
	}
	out.Order = order

	if err := handler(ctx, order); err != nil {
		c.metrics.MessagesFailed.WithLabelValues("handle").Inc()
		out.Err = fmt.Errorf("handler[%s]: %w", msg.ReceiptHandle, err)

		slog.Warn("Message left for redelivery",
			"method", "Consumer.Drain",
			"receipt_handle", msg.ReceiptHandle,
			"order_id", order.ID,
			"error", err)
		return out
	}
	out.Handled = true

	if err := c.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		c.metrics.MessagesFailed.WithLabelValues("delete").Inc()
		out.Err = fmt.Errorf("queue.Delete[%s]: %w", msg.ReceiptHandle, err)

		slog.Warn("Message handled but not deleted, expect a duplicate",
			"method", "Consumer.Drain",
			"receipt_handle", msg.ReceiptHandle,
			"order_id", order.ID,
			"error", err)
		return out
	}
	out.Deleted = true
	c.metrics.MessagesDeleted.Inc()

	return out
}

// HandledOrders returns the orders whose handler succeeded, in poll order.
func HandledOrders(outcomes []Outcome) []domain.Order {
	return lo.FilterMap(outcomes, func(o Outcome, _ int) (domain.Order, bool) {
		return o.Order, o.Handled
	})
}

// FailedCount counts messages that were left in the queue.
func FailedCount(outcomes []Outcome) int {
	return lo.CountBy(outcomes, func(o Outcome) bool {
		return !o.Deleted
	})
}
