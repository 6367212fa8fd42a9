package db

import (
	"time"
)

type Order struct {
	ID        int64
	Product   string
	Quantity  int64
	Amount    int64
	Processed bool
	Total     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderOutbox struct {
	OrderID   int64
	Attempts  int32
	CreatedAt time.Time
	SentAt    *time.Time
}
