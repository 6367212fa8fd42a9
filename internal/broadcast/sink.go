package broadcast

import (
	"context"
)

// Sink is one independently failing delivery target.
type Sink interface {
	Name() string
	Send(ctx context.Context, payload Payload) error
}

// Payload is the serialized order. Key is the order id in decimal form and is
// used by sinks that partition or deduplicate.
type Payload struct {
	Key  string
	Body []byte
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, payload Payload) error
}

func (s SinkFunc) Name() string {
	return s.SinkName
}

func (s SinkFunc) Send(ctx context.Context, payload Payload) error {
	return s.Fn(ctx, payload)
}
