package broadcast

import (
	"context"
	"fmt"
	"github.com/nats-io/nats.go"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSSink publishes core NATS messages on a subject. Flush makes the publish
// synchronous with the server so connection failures surface to the caller.
type NATSSink struct {
	conn    natsConn
	subject string
}

func NewNATSSink(conn natsConn, subject string) (*NATSSink, error) {
	if conn == nil {
		return nil, fmt.Errorf("conn is nil")
	}
	if subject == "" {
		return nil, fmt.Errorf("subject is empty")
	}

	return &NATSSink{
		conn:    conn,
		subject: subject,
	}, nil
}

var _ natsConn = (*nats.Conn)(nil)

func (s *NATSSink) Name() string {
	return "topic"
}

func (s *NATSSink) Send(ctx context.Context, payload Payload) error {
	if err := s.conn.Publish(s.subject, payload.Body); err != nil {
		return fmt.Errorf("conn.Publish[%s]: %w", s.subject, err)
	}

	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("conn.FlushWithContext: %w", err)
	}

	return nil
}
