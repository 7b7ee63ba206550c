package usecase

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order lifecycle routing keys on the order.events exchange.
const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
	EventOrderDeleted = "order.deleted"
)

// OrderEventMsg is published after a saga commits.
type OrderEventMsg struct {
	EventType  string          `json:"eventType"`
	OrderID    string          `json:"orderId"`
	UserID     string          `json:"userId,omitempty"`
	Total      decimal.Decimal `json:"total"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// CatalogEventMsg is the body of every product lifecycle event consumed from
// the catalog topic; the routing key selects the handler.
type CatalogEventMsg struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	QuantityInStock int             `json:"quantityInStock"`
}
