package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the persisted aggregate. Total is derived from the lines and is
// recomputed right before every save; it is never taken from a client.
type Order struct {
	OrderID   string
	UserID    string
	OrderDate time.Time
	Lines     []OrderLine
	Total     decimal.Decimal
	// Version guards Replace against lost updates on the same order id.
	Version int64
}

type OrderLine struct {
	ProductID string
	// UnitPrice is the price snapshotted when the order was placed,
	// not the live catalog price.
	UnitPrice decimal.Decimal
	Quantity  int
}

func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// RecalculateTotal restores the Total invariant after any mutation of Lines.
func (o *Order) RecalculateTotal() {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.LineTotal())
	}
	o.Total = total
}

// ProductIDs returns the distinct product ids referenced by the order lines.
func (o *Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Lines))
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

// OrderFilter narrows a listing. Nil pointer means "no predicate".
type OrderFilter struct {
	OrderID  *string
	UserID   *string
	FromDate *time.Time
	ToDate   *time.Time
	MinTotal *decimal.Decimal
	MaxTotal *decimal.Decimal
	Page     int
	PageSize int
}
