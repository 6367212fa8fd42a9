package domain

import "time"

// QueueMessage is a single delivery received from the work queue.
// ReceiptHandle identifies this delivery and is consumed by the delete call.
type QueueMessage struct {
	ReceiptHandle string
	Body          []byte
}

// OutboxRecord tracks whether an accepted order has reached every sink.
type OutboxRecord struct {
	OrderID   int64
	Attempts  int32
	CreatedAt time.Time
	SentAt    *time.Time
}
