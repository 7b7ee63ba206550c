package domain

import "github.com/shopspring/decimal"

// Product is the shape the products microservice returns and the unit we
// cache. Stock figures here are advisory; the stock batch-update endpoint is
// the only authority for write decisions.
type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	QuantityInStock int             `json:"quantityInStock"`
}

// ProductProjection is the local denormalized copy of catalog facts kept
// eventually consistent by the catalog event consumer. It enriches order
// lines for display and is never the system of record for stock.
type ProductProjection struct {
	ProductID       string
	Name            string
	Category        string
	UnitPrice       decimal.Decimal
	QuantityInStock int
}

// User is the shape the users microservice returns.
type User struct {
	ID         string `json:"id"`
	PersonName string `json:"personName"`
	Email      string `json:"email"`
	Gender     string `json:"gender"`
}

// StockDirection selects which way a batch stock adjustment moves.
type StockDirection int

const (
	StockReduce StockDirection = iota
	StockIncrease
)

func (d StockDirection) String() string {
	if d == StockReduce {
		return "reduce"
	}
	return "increase"
}

// StockAdjustment is a transient command covering one saga step or its
// compensation; it is never persisted with the order.
type StockAdjustment struct {
	ProductID string `json:"id"`
	Quantity  int    `json:"quantity"`
}

// Invert returns the compensating adjustment set direction.
func (d StockDirection) Invert() StockDirection {
	if d == StockReduce {
		return StockIncrease
	}
	return StockReduce
}
