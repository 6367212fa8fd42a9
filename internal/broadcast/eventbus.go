package broadcast

import (
	"context"
	"fmt"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/binding"
	"github.com/cloudevents/sdk-go/v2/protocol"
	"github.com/google/uuid"
	"time"
)

const (
	EventSource      = "order.service"
	EventTypeCreated = "OrderCreated"

	// extension attribute carrying the logical bus name
	busExtension = "eventbus"

	DefaultEventBusTimeout = 5 * time.Second
)

// EventBusSink wraps the payload into a CloudEvent and hands it to a
// CloudEvents protocol sender (HTTP in production).
type EventBusSink struct {
	sender  protocol.Sender
	busName string
	timeout time.Duration
	now     func() time.Time
}

type EventBusOption func(*EventBusSink)

// WithSendTimeout bounds a single Send. Default is DefaultEventBusTimeout.
func WithSendTimeout(d time.Duration) EventBusOption {
	return func(s *EventBusSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewEventBusSink(sender protocol.Sender, busName string, opts ...EventBusOption) (*EventBusSink, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is nil")
	}
	if busName == "" {
		return nil, fmt.Errorf("busName is empty")
	}

	s := &EventBusSink{
		sender:  sender,
		busName: busName,
		timeout: DefaultEventBusTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *EventBusSink) Name() string {
	return "event-bus"
}

func (s *EventBusSink) Send(ctx context.Context, payload Payload) error {
	event, err := s.newEvent(payload)
	if err != nil {
		return fmt.Errorf("newEvent: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := s.sender.Send(ctx, binding.ToMessage(event))
	if !protocol.IsACK(result) {
		return fmt.Errorf("sender.Send: %w", result)
	}

	return nil
}

func (s *EventBusSink) newEvent(payload Payload) (*cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(EventSource)
	event.SetType(EventTypeCreated)
	event.SetSubject(payload.Key)
	event.SetTime(s.now().UTC())
	event.SetExtension(busExtension, s.busName)

	// []byte is stored as-is, no re-encoding
	if err := event.SetData(cloudevents.ApplicationJSON, payload.Body); err != nil {
		return nil, fmt.Errorf("event.SetData: %w", err)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("event.Validate: %w", err)
	}

	return &event, nil
}
