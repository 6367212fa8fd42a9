package pipeline

import (
	"context"
	"fmt"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/nikolayk812/orderfan/internal/metrics"
	"github.com/nikolayk812/orderfan/internal/port"
	"log/slog"
)

// OrderPipeline persists orders and fans them out. Persistence and broadcast
// are not atomic: a broadcast failure leaves the order stored and processed,
// with its outbox record still pending for the relay.
type OrderPipeline struct {
	store       port.OrderRepository
	outbox      port.OutboxRepository
	broadcaster port.Broadcaster
	metrics     *metrics.Metrics
}

func New(store port.OrderRepository, outbox port.OutboxRepository, broadcaster port.Broadcaster, m *metrics.Metrics) (*OrderPipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox is nil")
	}
	if broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is nil")
	}
	if m == nil {
		m = metrics.Discard()
	}

	return &OrderPipeline{
		store:       store,
		outbox:      outbox,
		broadcaster: broadcaster,
		metrics:     m,
	}, nil
}

// Process derives total and processed, saves the order and broadcasts it.
// On a dispatch failure the persisted order is returned together with the error.
func (p *OrderPipeline) Process(ctx context.Context, in domain.Order) (domain.Order, error) {
	if err := in.Validate(); err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		Product:   in.Product,
		Quantity:  in.Quantity,
		Amount:    in.Amount,
		Processed: true,
	}
	order.ComputeTotal()

	saved, err := p.store.Save(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("store.Save: %w", err)
	}
	p.metrics.OrdersProcessed.Inc()

	if err := p.broadcaster.Broadcast(ctx, saved); err != nil {
		slog.Error("Order persisted but not broadcast",
			"method", "OrderPipeline.Process",
			"order_id", saved.ID,
			"error", err)
		return saved, fmt.Errorf("broadcaster.Broadcast: %w", err)
	}

	// a record left pending is republished by the relay
	if err := p.outbox.MarkSent(ctx, saved.ID); err != nil {
		slog.Warn("Outbox record not marked as sent",
			"method", "OrderPipeline.Process",
			"order_id", saved.ID,
			"error", err)
	}

	return saved, nil
}

// ApplyUpdate changes product, quantity and amount and recomputes total.
// Updates are not broadcast.
func (p *OrderPipeline) ApplyUpdate(ctx context.Context, orderID int64, patch domain.OrderPatch) (domain.Order, error) {
	if err := patch.Validate(); err != nil {
		return domain.Order{}, err
	}

	updated, err := p.store.Update(ctx, orderID, patch)
	if err != nil {
		return domain.Order{}, fmt.Errorf("store.Update: %w", err)
	}
	p.metrics.OrdersUpdated.Inc()

	return updated, nil
}
