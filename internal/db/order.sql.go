package db

import (
	"context"
)

const insertOrder = `
INSERT INTO orders (product, quantity, amount, processed, total)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, product, quantity, amount, processed, total, created_at, updated_at
`

type InsertOrderParams struct {
	Product   string
	Quantity  int64
	Amount    int64
	Processed bool
	Total     int64
}

func (q *Queries) InsertOrder(ctx context.Context, arg InsertOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, insertOrder,
		arg.Product,
		arg.Quantity,
		arg.Amount,
		arg.Processed,
		arg.Total,
	)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.Product,
		&i.Quantity,
		&i.Amount,
		&i.Processed,
		&i.Total,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOrder = `
SELECT id, product, quantity, amount, processed, total, created_at, updated_at
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, id)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.Product,
		&i.Quantity,
		&i.Amount,
		&i.Processed,
		&i.Total,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOrderForUpdate = `
SELECT id, product, quantity, amount, processed, total, created_at, updated_at
FROM orders
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	row := q.db.QueryRow(ctx, getOrderForUpdate, id)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.Product,
		&i.Quantity,
		&i.Amount,
		&i.Processed,
		&i.Total,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateOrder = `
UPDATE orders
SET product = $2, quantity = $3, amount = $4, total = $5, updated_at = now()
WHERE id = $1
RETURNING id, product, quantity, amount, processed, total, created_at, updated_at
`

type UpdateOrderParams struct {
	ID       int64
	Product  string
	Quantity int64
	Amount   int64
	Total    int64
}

func (q *Queries) UpdateOrder(ctx context.Context, arg UpdateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrder,
		arg.ID,
		arg.Product,
		arg.Quantity,
		arg.Amount,
		arg.Total,
	)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.Product,
		&i.Quantity,
		&i.Amount,
		&i.Processed,
		&i.Total,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
