package usecase

import (
	"context"
	"time"

	domain "github.com/aq2208/orders-service/internal/entity"
)

// OrderStore is the order persistence collaborator. Single-document,
// single-call operations only; there is no transaction spanning the store
// and the remote services.
type OrderStore interface {
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)
	Find(ctx context.Context, f domain.OrderFilter) ([]*domain.Order, error)
	Create(ctx context.Context, o *domain.Order) (*domain.Order, error)
	// Replace overwrites the document keyed by identity, conditioned on the
	// version last read. NotFound and Conflict surface as distinct kinds.
	Replace(ctx context.Context, o *domain.Order) (*domain.Order, error)
	// Delete reports found/not-found instead of returning the entity.
	Delete(ctx context.Context, orderID string) (bool, error)
}

// UserGateway resolves users on the users microservice.
type UserGateway interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// ProductGateway resolves products and moves stock on the products
// microservice.
type ProductGateway interface {
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	AdjustStock(ctx context.Context, adjustments []domain.StockAdjustment, direction domain.StockDirection) ([]domain.Product, error)
}

// IntentStore records saga intents so a crash mid-saga is recoverable by the
// reconciliation sweep instead of leaving inventory silently understated.
type IntentStore interface {
	Create(ctx context.Context, orderID string, adjustments []domain.StockAdjustment) (*domain.SagaIntent, error)
	MarkState(ctx context.Context, intentID string, state domain.SagaIntentState) error
	Complete(ctx context.Context, intentID string) error
	ListStuck(ctx context.Context, olderThan time.Time) ([]domain.SagaIntent, error)
}

// EventPublisher emits order lifecycle events. Publishing is best-effort;
// a broker hiccup never fails the saga that already committed.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, msg OrderEventMsg) error
}
