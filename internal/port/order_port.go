package port

import (
	"context"
	"github.com/nikolayk812/orderfan/internal/domain"
	"time"
)

type OrderRepository interface {
	// Save inserts a new order together with its outbox record.
	Save(ctx context.Context, order domain.Order) (domain.Order, error)

	FindByID(ctx context.Context, orderID int64) (domain.Order, bool, error)

	Update(ctx context.Context, orderID int64, patch domain.OrderPatch) (domain.Order, error)
}

type OutboxRepository interface {
	MarkSent(ctx context.Context, orderID int64) error
	IncrementAttempts(ctx context.Context, orderID int64) error

	// ListPending returns unsent records created before olderThan with fewer
	// than maxAttempts failed attempts, oldest first.
	ListPending(ctx context.Context, olderThan time.Time, maxAttempts, limit int32) ([]domain.OutboxRecord, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, order domain.Order) error
}
