package repository

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/orderfan/internal/db"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/nikolayk812/orderfan/internal/port"
)

type orderRepository struct {
	q    *db.Queries
	dbtx db.DBTX
}

func NewOrder(pool *pgxpool.Pool) (port.OrderRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	return &orderRepository{
		q:    db.New(pool),
		dbtx: pool,
	}, nil
}

func NewOrderWithTx(tx pgx.Tx) port.OrderRepository {
	return &orderRepository{
		q:    db.New(tx),
		dbtx: tx, // join the provided transaction
	}
}

// Save ignores order.ID: the identity column assigns it.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	saved, err := withTx(ctx, r.dbtx, func(q *db.Queries) (domain.Order, error) {
		dbOrder, err := q.InsertOrder(ctx, db.InsertOrderParams{
			Product:   order.Product,
			Quantity:  order.Quantity,
			Amount:    order.Amount,
			Processed: order.Processed,
			Total:     order.Total,
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("q.InsertOrder: %w", err)
		}

		if err := q.InsertOutbox(ctx, dbOrder.ID); err != nil {
			return domain.Order{}, fmt.Errorf("q.InsertOutbox: %w", err)
		}

		return mapDBOrderToDomain(dbOrder), nil
	})
	if err != nil {
		return domain.Order{}, &domain.StorageError{Op: "withTx", Err: err}
	}

	return saved, nil
}

func (r *orderRepository) FindByID(ctx context.Context, orderID int64) (domain.Order, bool, error) {
	dbOrder, err := r.q.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, &domain.StorageError{Op: "q.GetOrder", Err: err}
	}

	return mapDBOrderToDomain(dbOrder), true, nil
}

func (r *orderRepository) Update(ctx context.Context, orderID int64, patch domain.OrderPatch) (domain.Order, error) {
	updated, err := withTx(ctx, r.dbtx, func(q *db.Queries) (domain.Order, error) {
		dbOrder, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.Order{}, fmt.Errorf("q.GetOrderForUpdate: %w", domain.ErrNotFound)
			}
			return domain.Order{}, fmt.Errorf("q.GetOrderForUpdate: %w", err)
		}

		order := mapDBOrderToDomain(dbOrder)
		order.ApplyPatch(patch)

		dbOrder, err = q.UpdateOrder(ctx, db.UpdateOrderParams{
			ID:       order.ID,
			Product:  order.Product,
			Quantity: order.Quantity,
			Amount:   order.Amount,
			Total:    order.Total,
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("q.UpdateOrder: %w", err)
		}

		return mapDBOrderToDomain(dbOrder), nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("withTx: %w", err)
		}
		return domain.Order{}, &domain.StorageError{Op: "withTx", Err: err}
	}

	return updated, nil
}

func mapDBOrderToDomain(o db.Order) domain.Order {
	return domain.Order{
		ID:        o.ID,
		Product:   o.Product,
		Quantity:  o.Quantity,
		Amount:    o.Amount,
		Processed: o.Processed,
		Total:     o.Total,
	}
}
