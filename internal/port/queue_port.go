package port

import (
	"context"
	"github.com/nikolayk812/orderfan/internal/domain"
	"time"
)

type Queue interface {
	// Receive blocks for up to wait and returns at most maxMessages deliveries.
	Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]domain.QueueMessage, error)

	// Delete acknowledges a delivery; undeleted deliveries become eligible
	// for redelivery.
	Delete(ctx context.Context, receiptHandle string) error
}
