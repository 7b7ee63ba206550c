package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aq2208/orders-service/internal/apperr"
	domain "github.com/aq2208/orders-service/internal/entity"
)

// Orders is the order-fulfillment orchestrator: a forward-recovery saga that
// keeps remote stock and local persistence in lock-step, compensating with
// the inverse stock adjustment when a later step fails. Steps within one
// request run strictly in sequence; nothing here serializes concurrent
// requests for the same order id beyond the store's version check.
type Orders struct {
	store    OrderStore
	users    UserGateway
	products ProductGateway
	intents  IntentStore
	events   EventPublisher
	validate *Validator
	log      *slog.Logger
}

func NewOrders(store OrderStore, users UserGateway, products ProductGateway, intents IntentStore, events EventPublisher, log *slog.Logger) *Orders {
	return &Orders{
		store:    store,
		users:    users,
		products: products,
		intents:  intents,
		events:   events,
		validate: NewValidator(),
		log:      log.With("component", "orders"),
	}
}

// Get returns one order, lines enriched with product names when the catalog
// lookup succeeds; enrichment failure is non-fatal.
func (s *Orders) Get(ctx context.Context, orderID string) (*OrderView, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return viewOf(order, s.lookupProducts(ctx, order.ProductIDs())), nil
}

// List returns a filtered, paged listing, newest first, enriched the same
// way as Get with one batched catalog lookup for the whole result set.
func (s *Orders) List(ctx context.Context, q ListOrdersQuery) ([]*OrderView, error) {
	q.applyDefaults()
	if err := s.validate.ListOrders(q); err != nil {
		return nil, err
	}

	orders, err := s.store.Find(ctx, q.toFilter())
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, apperr.Newf(apperr.KindNotFound,
			"there are no orders in page %d with page size %d", *q.Page, *q.PageSize)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, o := range orders {
		for _, id := range o.ProductIDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	products := s.lookupProducts(ctx, ids)

	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOf(o, products))
	}
	return views, nil
}

// Create runs the creation saga: validate, verify the user, reserve stock in
// one batched call, persist. A persistence failure after the reserve issues
// exactly one compensating increase for the same product/quantity pairs.
func (s *Orders) Create(ctx context.Context, req CreateOrderRequest) (*OrderView, error) {
	if err := s.validate.CreateOrder(req); err != nil {
		return nil, err
	}

	if _, err := s.users.GetUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("verify user %s: %w", req.UserID, err)
	}

	order := &domain.Order{
		OrderID:   uuid.NewString(),
		UserID:    req.UserID,
		OrderDate: req.OrderDate,
		Lines:     linesFromRequest(req.Lines),
	}
	reduce := aggregateAdjustments(order.Lines)

	intent, err := s.intents.Create(ctx, order.OrderID, reduce)
	if err != nil {
		return nil, fmt.Errorf("record saga intent: %w", err)
	}

	if _, err := s.products.AdjustStock(ctx, reduce, domain.StockReduce); err != nil {
		if apperr.IsKind(err, apperr.KindStaleCache) {
			// The reduce itself committed remotely; undo it before
			// aborting, and keep the intent if the undo fails.
			s.markStockReduced(ctx, intent.ID)
			if s.compensate(ctx, order.OrderID, reduce) {
				s.completeIntent(ctx, intent.ID)
			}
		} else {
			// Nothing was reserved; the intent has nothing to reconcile.
			s.completeIntent(ctx, intent.ID)
		}
		return nil, fmt.Errorf("reserve stock: %w", err)
	}
	s.markStockReduced(ctx, intent.ID)

	order.RecalculateTotal()
	created, err := s.store.Create(ctx, order)
	if err != nil {
		if s.compensate(ctx, order.OrderID, reduce) {
			s.completeIntent(ctx, intent.ID)
		}
		return nil, fmt.Errorf("persist order: %w", err)
	}
	s.completeIntent(ctx, intent.ID)

	s.publish(ctx, EventOrderCreated, created)
	return viewOf(created, nil), nil
}

// Update recomputes the stock delta against the persisted order instead of
// re-applying the whole request. Reduces go first; a reduce failure aborts
// with the order untouched. Increases run after a successful save and are
// best-effort: the saved order is already correct, only inventory
// bookkeeping lags.
func (s *Orders) Update(ctx context.Context, req UpdateOrderRequest) (*OrderView, error) {
	if err := s.validate.UpdateOrder(req); err != nil {
		return nil, err
	}

	if _, err := s.users.GetUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("verify user %s: %w", req.UserID, err)
	}

	existing, err := s.store.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	updated := &domain.Order{
		OrderID:   existing.OrderID,
		UserID:    req.UserID,
		OrderDate: req.OrderDate,
		Lines:     linesFromRequest(req.Lines),
		Version:   existing.Version,
	}
	reduce, increase := diffLines(existing.Lines, updated.Lines)

	var intent *domain.SagaIntent
	if len(reduce) > 0 {
		intent, err = s.intents.Create(ctx, updated.OrderID, reduce)
		if err != nil {
			return nil, fmt.Errorf("record saga intent: %w", err)
		}
		if _, err := s.products.AdjustStock(ctx, reduce, domain.StockReduce); err != nil {
			if apperr.IsKind(err, apperr.KindStaleCache) {
				s.markStockReduced(ctx, intent.ID)
				if s.compensate(ctx, updated.OrderID, reduce) {
					s.completeIntent(ctx, intent.ID)
				}
			} else {
				s.completeIntent(ctx, intent.ID)
			}
			return nil, fmt.Errorf("reserve stock for update: %w", err)
		}
		s.markStockReduced(ctx, intent.ID)
	}

	updated.RecalculateTotal()
	saved, err := s.store.Replace(ctx, updated)
	if err != nil {
		if len(reduce) > 0 {
			// The single most severe inconsistency window in the system:
			// stock was reduced but no order reflects it.
			if s.compensate(ctx, updated.OrderID, reduce) {
				s.completeIntent(ctx, intent.ID)
			}
		}
		return nil, fmt.Errorf("persist order update: %w", err)
	}
	if intent != nil {
		s.completeIntent(ctx, intent.ID)
	}

	if len(increase) > 0 {
		if _, err := s.products.AdjustStock(ctx, increase, domain.StockIncrease); err != nil {
			s.log.Error("stock release failed, inventory counts run higher than actual until reconciled",
				"order_id", updated.OrderID, "error", err)
		}
	}

	s.publish(ctx, EventOrderUpdated, saved)
	return viewOf(saved, nil), nil
}

// Delete removes the order document. It deliberately does not restock:
// whether deletion implies a cancellation that returns stock is a product
// decision this service does not assume.
func (s *Orders) Delete(ctx context.Context, orderID string) error {
	found, err := s.store.Delete(ctx, orderID)
	if err != nil {
		return err
	}
	if !found {
		return apperr.Newf(apperr.KindNotFound, "there is no order with id %s", orderID)
	}
	s.publish(ctx, EventOrderDeleted, &domain.Order{OrderID: orderID})
	return nil
}

// Reconcile compensates saga intents whose stock was reduced but whose saga
// never finished (a crash between reserve and persist). Run once at startup.
func (s *Orders) Reconcile(ctx context.Context, olderThan time.Duration) error {
	stuck, err := s.intents.ListStuck(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return err
	}
	for _, intent := range stuck {
		// A stale-cache outcome still means the increase committed; retrying
		// it on the next sweep would over-increase.
		if _, err := s.products.AdjustStock(ctx, intent.Adjustments, domain.StockIncrease); err != nil && !apperr.IsKind(err, apperr.KindStaleCache) {
			s.log.Error("reconciliation could not return reserved stock",
				"intent_id", intent.ID, "order_id", intent.OrderID, "error", err)
			continue
		}
		s.completeIntent(ctx, intent.ID)
		s.log.Info("reconciled stuck saga intent",
			"intent_id", intent.ID, "order_id", intent.OrderID)
	}
	return nil
}

// compensate issues the inverse adjustment for a reduce batch whose saga
// failed afterwards and reports whether the increase committed. On false the
// caller must leave the saga intent in STOCK_REDUCED so the reconciliation
// sweep can return the stock; the caller still returns the original failure.
func (s *Orders) compensate(ctx context.Context, orderID string, reduce []domain.StockAdjustment) bool {
	if _, err := s.products.AdjustStock(ctx, reduce, domain.StockIncrease); err != nil {
		if apperr.IsKind(err, apperr.KindStaleCache) {
			// The increase committed; the stale entry expires by TTL.
			s.log.Warn("compensated stock reservation, cache entry left stale",
				"order_id", orderID, "error", err)
			return true
		}
		ids := make([]string, 0, len(reduce))
		for _, a := range reduce {
			ids = append(ids, a.ProductID)
		}
		s.log.Error("stock compensation failed, inventory is understated until reconciled",
			"order_id", orderID, "products", ids, "error", err)
		return false
	}
	s.log.Warn("compensated stock reservation", "order_id", orderID)
	return true
}

func (s *Orders) markStockReduced(ctx context.Context, intentID string) {
	if err := s.intents.MarkState(ctx, intentID, domain.IntentStockReduced); err != nil {
		s.log.Error("saga intent state update failed, reconciliation may re-run",
			"intent_id", intentID, "error", err)
	}
}

func (s *Orders) completeIntent(ctx context.Context, intentID string) {
	if err := s.intents.Complete(ctx, intentID); err != nil {
		s.log.Error("saga intent completion failed", "intent_id", intentID, "error", err)
	}
}

func (s *Orders) publish(ctx context.Context, eventType string, o *domain.Order) {
	msg := OrderEventMsg{
		EventType:  eventType,
		OrderID:    o.OrderID,
		UserID:     o.UserID,
		Total:      o.Total,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.PublishOrderEvent(ctx, msg); err != nil {
		s.log.Warn("order event publish failed", "event", eventType, "order_id", o.OrderID, "error", err)
	}
}

func (s *Orders) lookupProducts(ctx context.Context, ids []string) map[string]domain.Product {
	if len(ids) == 0 {
		return nil
	}
	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		s.log.Warn("order enrichment skipped, product lookup failed",
			"kind", apperr.KindOf(err).String(), "error", err.Error())
		return nil
	}
	return products
}
