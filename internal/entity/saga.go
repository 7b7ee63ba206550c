package domain

import "time"

// SagaIntentState tracks how far a create/update saga got with its
// stock side effects.
type SagaIntentState string

const (
	IntentPending      SagaIntentState = "PENDING"
	IntentStockReduced SagaIntentState = "STOCK_REDUCED"
	IntentCompleted    SagaIntentState = "COMPLETED"
)

// SagaIntent is written before the first external side effect of a saga.
// A crash between stock-reduce and persistence leaves the intent in
// STOCK_REDUCED; the reconciliation sweep compensates those on restart
// instead of leaving inventory silently understated.
type SagaIntent struct {
	ID          string
	OrderID     string
	Adjustments []StockAdjustment
	State       SagaIntentState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
