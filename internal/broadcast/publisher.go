package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/nikolayk812/orderfan/internal/metrics"
	"github.com/samber/lo"
	"log/slog"
	"strconv"
)

type Publisher struct {
	sinks   []Sink
	marshal func(v any) ([]byte, error)
	metrics *metrics.Metrics
}

type Option func(*Publisher)

func WithMarshal(marshal func(v any) ([]byte, error)) Option {
	return func(p *Publisher) {
		p.marshal = marshal
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(sinks []Sink, opts ...Option) (*Publisher, error) {
	if len(sinks) == 0 {
		return nil, fmt.Errorf("sinks are empty")
	}

	for idx, sink := range sinks {
		if sink == nil {
			return nil, fmt.Errorf("sink[%d] is nil", idx)
		}
		if sink.Name() == "" {
			return nil, fmt.Errorf("sink[%d] name is empty", idx)
		}
	}

	names := lo.Map(sinks, func(s Sink, _ int) string { return s.Name() })
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return nil, fmt.Errorf("duplicate sink names: %v", dups)
	}

	p := &Publisher{
		sinks:   sinks,
		marshal: json.Marshal,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.Discard()
	}

	return p, nil
}

// Broadcast serializes the order once and sends it to every sink, in order.
// A failing sink does not prevent the remaining sinks from being attempted.
// Nothing is retried here.
func (p *Publisher) Broadcast(ctx context.Context, order domain.Order) error {
	body, err := p.marshal(order)
	if err != nil {
		return &domain.ValidationError{Reason: "serialize order", Err: err}
	}

	payload := Payload{
		Key:  strconv.FormatInt(order.ID, 10),
		Body: body,
	}

	var failures []domain.SinkFailure

	for idx, sink := range p.sinks {
		if err := sink.Send(ctx, payload); err != nil {
			p.metrics.SinkFailures.WithLabelValues(sink.Name()).Inc()

			slog.Warn("Sink send failed",
				"method", "Publisher.Broadcast",
				"sink", sink.Name(),
				"order_id", order.ID,
				"error", err)

			failures = append(failures, domain.SinkFailure{
				Sink: sink.Name(),
				Err:  fmt.Errorf("sink.Send[%d]: %w", idx, err),
			})
			continue
		}

		p.metrics.SinkDeliveries.WithLabelValues(sink.Name()).Inc()
	}

	if len(failures) > 0 {
		return &domain.DispatchError{Failures: failures}
	}

	return nil
}
