package db

import (
	"context"
	"github.com/jackc/pgx/v5/pgconn"
	"time"
)

const insertOutbox = `
INSERT INTO order_outbox (order_id) VALUES ($1)
`

func (q *Queries) InsertOutbox(ctx context.Context, orderID int64) error {
	_, err := q.db.Exec(ctx, insertOutbox, orderID)
	return err
}

const markOutboxSent = `
UPDATE order_outbox SET sent_at = now() WHERE order_id = $1 AND sent_at IS NULL
`

func (q *Queries) MarkOutboxSent(ctx context.Context, orderID int64) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, markOutboxSent, orderID)
}

const incrementOutboxAttempts = `
UPDATE order_outbox SET attempts = attempts + 1 WHERE order_id = $1
`

func (q *Queries) IncrementOutboxAttempts(ctx context.Context, orderID int64) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, incrementOutboxAttempts, orderID)
}

const listPendingOutbox = `
SELECT order_id, attempts, created_at, sent_at
FROM order_outbox
WHERE sent_at IS NULL AND created_at < $1 AND attempts < $2
ORDER BY created_at, order_id
LIMIT $3
`

type ListPendingOutboxParams struct {
	CreatedBefore time.Time
	MaxAttempts   int32
	Limit         int32
}

func (q *Queries) ListPendingOutbox(ctx context.Context, arg ListPendingOutboxParams) ([]OrderOutbox, error) {
	rows, err := q.db.Query(ctx, listPendingOutbox, arg.CreatedBefore, arg.MaxAttempts, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderOutbox
	for rows.Next() {
		var i OrderOutbox
		if err := rows.Scan(
			&i.OrderID,
			&i.Attempts,
			&i.CreatedAt,
			&i.SentAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
