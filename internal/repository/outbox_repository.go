package repository

import (
	"context"
	"fmt"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/orderfan/internal/db"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/nikolayk812/orderfan/internal/port"
	"github.com/samber/lo"
	"time"
)

type outboxRepository struct {
	q *db.Queries
}

func NewOutbox(pool *pgxpool.Pool) (port.OutboxRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	return &outboxRepository{
		q: db.New(pool),
	}, nil
}

// MarkSent is a no-op for records that were already sent.
func (r *outboxRepository) MarkSent(ctx context.Context, orderID int64) error {
	if _, err := r.q.MarkOutboxSent(ctx, orderID); err != nil {
		return &domain.StorageError{Op: "q.MarkOutboxSent", Err: err}
	}

	return nil
}

func (r *outboxRepository) IncrementAttempts(ctx context.Context, orderID int64) error {
	cmdTag, err := r.q.IncrementOutboxAttempts(ctx, orderID)
	if err != nil {
		return &domain.StorageError{Op: "q.IncrementOutboxAttempts", Err: err}
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("q.IncrementOutboxAttempts: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *outboxRepository) ListPending(ctx context.Context, olderThan time.Time, maxAttempts, limit int32) ([]domain.OutboxRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("maxAttempts must be positive")
	}

	rows, err := r.q.ListPendingOutbox(ctx, db.ListPendingOutboxParams{
		CreatedBefore: olderThan,
		MaxAttempts:   maxAttempts,
		Limit:         limit,
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "q.ListPendingOutbox", Err: err}
	}

	return lo.Map(rows, func(row db.OrderOutbox, _ int) domain.OutboxRecord {
		return domain.OutboxRecord{
			OrderID:   row.OrderID,
			Attempts:  row.Attempts,
			CreatedAt: row.CreatedAt,
			SentAt:    row.SentAt,
		}
	}), nil
}
