package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
	"github.com/nikolayk812/orderfan/internal/broadcast"
	"time"
)

type sender interface {
	Send(ctx context.Context, body []byte) (string, error)
}

// notification mirrors the envelope a topic-to-queue subscription produces.
type notification struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	Subject   string `json:"Subject,omitempty"`
	Message   string `json:"Message"`
	Timestamp string `json:"Timestamp"`
}

// BridgeSink relays broadcast payloads into the work queue wrapped in a
// notification envelope, the way a topic subscription delivers into a queue.
type BridgeSink struct {
	queue sender
	now   func() time.Time
}

func NewBridgeSink(queue sender) (*BridgeSink, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue is nil")
	}

	return &BridgeSink{
		queue: queue,
		now:   time.Now,
	}, nil
}

func (s *BridgeSink) Name() string {
	return "queue-bridge"
}

func (s *BridgeSink) Send(ctx context.Context, payload broadcast.Payload) error {
	body, err := json.Marshal(notification{
		Type:      "Notification",
		MessageID: uuid.NewString(),
		Subject:   payload.Key,
		Message:   string(payload.Body),
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	if _, err := s.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("queue.Send: %w", err)
	}

	return nil
}
