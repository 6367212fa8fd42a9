package domain

import (
	"math"
)

// Order field names are part of the wire contract, both for the HTTP API and
// for the payload fanned out to downstream consumers.
type Order struct {
	ID        int64  `json:"id"`
	Product   string `json:"product"`
	Quantity  int64  `json:"quantity"`
	Amount    int64  `json:"amount"`
	Processed bool   `json:"processed"`
	Total     int64  `json:"total"`
}

// Validate checks the caller-controlled fields only; ID, Total and Processed
// are always derived.
func (o Order) Validate() error {
	return validateFields(o.Quantity, o.Amount)
}

// ComputeTotal recomputes Total from Quantity and Amount.
func (o *Order) ComputeTotal() {
	o.Total = o.Quantity * o.Amount
}

// ApplyPatch merges the mutable fields and recomputes Total.
// ID and Processed are never touched.
func (o *Order) ApplyPatch(p OrderPatch) {
	o.Product = p.Product
	o.Quantity = p.Quantity
	o.Amount = p.Amount
	o.ComputeTotal()
}

// OrderPatch carries the fields an update may change.
type OrderPatch struct {
	Product  string `json:"product"`
	Quantity int64  `json:"quantity"`
	Amount   int64  `json:"amount"`
}

func (p OrderPatch) Validate() error {
	return validateFields(p.Quantity, p.Amount)
}

func validateFields(quantity, amount int64) error {
	if quantity < 0 {
		return &ValidationError{Field: "quantity", Reason: "must be >= 0"}
	}

	// total must fit into int64, amount may be negative
	if quantity != 0 && (amount > math.MaxInt64/quantity || amount < math.MinInt64/quantity) {
		return &ValidationError{Field: "total", Reason: "quantity * amount overflows"}
	}

	return nil
}
