package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/nikolayk812/orderfan/internal/broadcast"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/nikolayk812/orderfan/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

type fakeSender struct {
	bodies [][]byte
	err    error
}

func (s *fakeSender) Send(_ context.Context, body []byte) (string, error) {
	s.bodies = append(s.bodies, body)
	return "1-0", s.err
}

func TestBridgeSink_SendDecodesBack(t *testing.T) {
	sender := &fakeSender{}

	sink, err := queue.NewBridgeSink(sender)
	require.NoError(t, err)
	assert.Equal(t, "queue-bridge", sink.Name())

	order := domain.Order{ID: 5, Product: "Widget", Quantity: 2, Amount: 4, Processed: true, Total: 8}
	body, err := json.Marshal(order)
	require.NoError(t, err)

	require.NoError(t, sink.Send(t.Context(), broadcast.Payload{Key: "5", Body: body}))
	require.Len(t, sender.bodies, 1)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(sender.bodies[0], &envelope))
	assert.Equal(t, "Notification", envelope["Type"])
	assert.Equal(t, "5", envelope["Subject"])
	assert.NotEmpty(t, envelope["MessageId"])

	decoder, err := queue.NewDecoder()
	require.NoError(t, err)

	decoded, err := decoder.Decode(sender.bodies[0])
	require.NoError(t, err)
	assert.Equal(t, order, decoded)
}

func TestBridgeSink_SendError(t *testing.T) {
	sink, err := queue.NewBridgeSink(&fakeSender{err: errors.New("OOM command not allowed")})
	require.NoError(t, err)

	err = sink.Send(t.Context(), broadcast.Payload{Key: "1", Body: []byte(`{}`)})
	assert.EqualError(t, err, "queue.Send: OOM command not allowed")

	_, err = queue.NewBridgeSink(nil)
	assert.EqualError(t, err, "queue is nil")
}
