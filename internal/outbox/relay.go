package outbox

import (
	"context"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/nikolayk812/orderfan/internal/metrics"
	"github.com/nikolayk812/orderfan/internal/port"
	"log/slog"
	"time"
)

// Relay republishes orders whose outbox record is still unsent, i.e. orders
// accepted while a sink was failing. Delivery is at-least-once: sinks that
// succeeded the first time receive the order again.
type Relay struct {
	store       port.OrderRepository
	outbox      port.OutboxRepository
	broadcaster port.Broadcaster
	cfg         RelayConfig
	now         func() time.Time
}

type RelayConfig struct {
	// Interval between relay rounds. Default is 10 seconds.
	Interval time.Duration

	// GracePeriod keeps the relay away from records the request path may
	// still be marking. Default is 30 seconds.
	GracePeriod time.Duration

	// BatchSize is the number of records per round. Default is 100.
	BatchSize int32

	// MaxAttempts is the number of failed rounds after which a record is
	// abandoned. Default is 10.
	MaxAttempts int32

	// NewBackOff builds the retry policy for one record.
	// Default is exponential with 3 retries.
	NewBackOff func() backoff.BackOff

	Metrics *metrics.Metrics
}

func (c RelayConfig) applyDefaults() RelayConfig {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.NewBackOff == nil {
		c.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return backoff.WithMaxRetries(b, 3)
		}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Discard()
	}
	return c
}

func NewRelay(store port.OrderRepository, outbox port.OutboxRepository, broadcaster port.Broadcaster, cfg RelayConfig) (*Relay, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox is nil")
	}
	if broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is nil")
	}

	return &Relay{
		store:       store,
		outbox:      outbox,
		broadcaster: broadcaster,
		cfg:         cfg.applyDefaults(),
		now:         time.Now,
	}, nil
}

// Run relays every Interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Relay round failed",
					"method", "Relay.Run",
					"error", err)
			}
		}
	}
}

// RunOnce relays one batch and returns how many records were sent.
// A failing record is left pending for the next round until it reaches
// MaxAttempts, after which it is no longer listed.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	records, err := r.outbox.ListPending(ctx, r.now().Add(-r.cfg.GracePeriod), r.cfg.MaxAttempts, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("outbox.ListPending: %w", err)
	}

	var sent int

	for _, rec := range records {
		if err := r.relay(ctx, rec); err != nil {
			r.cfg.Metrics.OutboxFailures.Inc()

			slog.Warn("Outbox record not relayed",
				"method", "Relay.RunOnce",
				"order_id", rec.OrderID,
				"attempts", rec.Attempts+1,
				"error", err)

			if err := r.outbox.IncrementAttempts(ctx, rec.OrderID); err != nil {
				slog.Warn("Outbox attempts not incremented",
					"method", "Relay.RunOnce",
					"order_id", rec.OrderID,
					"error", err)
				continue
			}

			if rec.Attempts+1 >= r.cfg.MaxAttempts {
				r.cfg.Metrics.OutboxAbandoned.Inc()

				slog.Error("Outbox record abandoned",
					"method", "Relay.RunOnce",
					"order_id", rec.OrderID,
					"attempts", rec.Attempts+1,
					"error", err)
			}
			continue
		}

		sent++
		r.cfg.Metrics.OutboxRelayed.Inc()
	}

	return sent, nil
}

func (r *Relay) relay(ctx context.Context, rec domain.OutboxRecord) error {
	order, ok, err := r.store.FindByID(ctx, rec.OrderID)
	if err != nil {
		return fmt.Errorf("store.FindByID: %w", err)
	}
	if !ok {
		return fmt.Errorf("store.FindByID[%d]: %w", rec.OrderID, domain.ErrNotFound)
	}

	op := func() error {
		err := r.broadcaster.Broadcast(ctx, order)

		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(r.cfg.NewBackOff(), ctx)); err != nil {
		return fmt.Errorf("broadcaster.Broadcast: %w", err)
	}

	if err := r.outbox.MarkSent(ctx, rec.OrderID); err != nil {
		return fmt.Errorf("outbox.MarkSent: %w", err)
	}

	return nil
}
