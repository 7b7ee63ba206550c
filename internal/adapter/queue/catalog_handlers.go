package queue

import (
	"context"
	"log/slog"

	"github.com/aq2208/orders-service/internal/adapter/cache"
	domain "github.com/aq2208/orders-service/internal/entity"
	"github.com/aq2208/orders-service/internal/usecase"
)

// ProjectionStore is what the handlers need from the local product
// projection; every write is an idempotent upsert or delete.
type ProjectionStore interface {
	Upsert(ctx context.Context, p domain.ProductProjection) error
	Delete(ctx context.Context, productID string) error
	UpdateStock(ctx context.Context, productID string, quantityInStock int) error
}

// CatalogEventHandlers reconciles the local product projection against
// upstream catalog lifecycle events, and drops the corresponding cache
// entry so the next reader sees fresh data instead of waiting out the TTL.
type CatalogEventHandlers struct {
	projections ProjectionStore
	cache       cache.Store
	log         *slog.Logger
}

func NewCatalogEventHandlers(projections ProjectionStore, store cache.Store, log *slog.Logger) *CatalogEventHandlers {
	return &CatalogEventHandlers{
		projections: projections,
		cache:       store,
		log:         log.With("component", "catalog-handlers"),
	}
}

func toProjection(msg usecase.CatalogEventMsg) domain.ProductProjection {
	return domain.ProductProjection{
		ProductID:       msg.ID,
		Name:            msg.Name,
		Category:        msg.Category,
		UnitPrice:       msg.UnitPrice,
		QuantityInStock: msg.QuantityInStock,
	}
}

func (h *CatalogEventHandlers) HandleProductCreated(ctx context.Context, msg usecase.CatalogEventMsg) error {
	h.log.Info("creating local copy of product", "product_id", msg.ID)
	return h.projections.Upsert(ctx, toProjection(msg))
}

func (h *CatalogEventHandlers) HandleProductUpdated(ctx context.Context, msg usecase.CatalogEventMsg) error {
	h.log.Info("updating local product", "product_id", msg.ID)
	if err := h.projections.Upsert(ctx, toProjection(msg)); err != nil {
		return err
	}
	h.invalidate(ctx, msg.ID)
	return nil
}

func (h *CatalogEventHandlers) HandleProductDeleted(ctx context.Context, msg usecase.CatalogEventMsg) error {
	h.log.Info("removing local product", "product_id", msg.ID)
	if err := h.projections.Delete(ctx, msg.ID); err != nil {
		return err
	}
	h.invalidate(ctx, msg.ID)
	return nil
}

func (h *CatalogEventHandlers) HandleStockUpdated(ctx context.Context, msg usecase.CatalogEventMsg) error {
	h.log.Info("syncing stock", "product_id", msg.ID, "quantity", msg.QuantityInStock)
	if err := h.projections.UpdateStock(ctx, msg.ID, msg.QuantityInStock); err != nil {
		return err
	}
	h.invalidate(ctx, msg.ID)
	return nil
}

func (h *CatalogEventHandlers) invalidate(ctx context.Context, productID string) {
	if err := h.cache.Remove(ctx, cache.ProductKey(productID)); err != nil {
		h.log.Warn("product cache invalidation failed, entry expires by TTL",
			"product_id", productID, "error", err)
	}
}

// RegisterAll binds every catalog routing key to its typed handler.
func (h *CatalogEventHandlers) RegisterAll(c *CatalogConsumer) {
	c.Register(RKProductCreated, JSONHandler[usecase.CatalogEventMsg]{HandleFunc: h.HandleProductCreated})
	c.Register(RKProductUpdated, JSONHandler[usecase.CatalogEventMsg]{HandleFunc: h.HandleProductUpdated})
	c.Register(RKProductDeleted, JSONHandler[usecase.CatalogEventMsg]{HandleFunc: h.HandleProductDeleted})
	c.Register(RKProductStockUpdated, JSONHandler[usecase.CatalogEventMsg]{HandleFunc: h.HandleStockUpdated})
}
