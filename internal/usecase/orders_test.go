package usecase

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aq2208/orders-service/internal/apperr"
	domain "github.com/aq2208/orders-service/internal/entity"
)

type fakeStore struct {
	orders     map[string]*domain.Order
	createErr  error
	replaceErr error
	deleteErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*domain.Order)}
}

func (s *fakeStore) GetByID(_ context.Context, orderID string) (*domain.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "there is no order with id %s", orderID)
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) Find(_ context.Context, f domain.OrderFilter) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range s.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) Create(_ context.Context, o *domain.Order) (*domain.Order, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	cp := *o
	cp.Version = 0
	s.orders[cp.OrderID] = &cp
	return &cp, nil
}

func (s *fakeStore) Replace(_ context.Context, o *domain.Order) (*domain.Order, error) {
	if s.replaceErr != nil {
		return nil, s.replaceErr
	}
	existing, ok := s.orders[o.OrderID]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "there is no order with id %s", o.OrderID)
	}
	if existing.Version != o.Version {
		return nil, apperr.New(apperr.KindConflict, "order was modified concurrently")
	}
	cp := *o
	cp.Version = o.Version + 1
	s.orders[cp.OrderID] = &cp
	return &cp, nil
}

func (s *fakeStore) Delete(_ context.Context, orderID string) (bool, error) {
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	if _, ok := s.orders[orderID]; !ok {
		return false, nil
	}
	delete(s.orders, orderID)
	return true, nil
}

type fakeUsers struct {
	err error
}

func (u *fakeUsers) GetUser(_ context.Context, userID string) (*domain.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	return &domain.User{ID: userID, PersonName: "Someone"}, nil
}

type stockCall struct {
	adjustments []domain.StockAdjustment
	direction   domain.StockDirection
}

type fakeProducts struct {
	calls        []stockCall
	failReduce   error
	failIncrease error
	// staleReduce/staleIncrease simulate a remote adjustment that committed
	// but whose cache invalidation failed afterwards.
	staleReduce   bool
	staleIncrease bool
	lookup        map[string]domain.Product
	lookupErr     error
}

func staleCacheErr() error {
	return apperr.Wrap(apperr.KindStaleCache,
		"stock adjusted but cache invalidation failed", errors.New("redis down"))
}

func (p *fakeProducts) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	if p.lookupErr != nil {
		return nil, p.lookupErr
	}
	out := make(map[string]domain.Product)
	for _, id := range ids {
		if prod, ok := p.lookup[id]; ok {
			out[id] = prod
		}
	}
	return out, nil
}

func (p *fakeProducts) AdjustStock(_ context.Context, adjustments []domain.StockAdjustment, direction domain.StockDirection) ([]domain.Product, error) {
	p.calls = append(p.calls, stockCall{adjustments: adjustments, direction: direction})
	if direction == domain.StockReduce {
		if p.failReduce != nil {
			return nil, p.failReduce
		}
		if p.staleReduce {
			return nil, staleCacheErr()
		}
	}
	if direction == domain.StockIncrease {
		if p.failIncrease != nil {
			return nil, p.failIncrease
		}
		if p.staleIncrease {
			return nil, staleCacheErr()
		}
	}
	out := make([]domain.Product, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, domain.Product{ID: a.ProductID})
	}
	return out, nil
}

type fakeIntents struct {
	open      map[string]*domain.SagaIntent
	stuck     []domain.SagaIntent
	created   int
	completed []string
}

func newFakeIntents() *fakeIntents {
	return &fakeIntents{open: make(map[string]*domain.SagaIntent)}
}

func (f *fakeIntents) Create(_ context.Context, orderID string, adjustments []domain.StockAdjustment) (*domain.SagaIntent, error) {
	f.created++
	intent := &domain.SagaIntent{
		ID:          orderID + "-intent",
		OrderID:     orderID,
		Adjustments: adjustments,
		State:       domain.IntentPending,
	}
	f.open[intent.ID] = intent
	return intent, nil
}

func (f *fakeIntents) MarkState(_ context.Context, intentID string, state domain.SagaIntentState) error {
	if intent, ok := f.open[intentID]; ok {
		intent.State = state
	}
	return nil
}

func (f *fakeIntents) Complete(_ context.Context, intentID string) error {
	delete(f.open, intentID)
	f.completed = append(f.completed, intentID)
	return nil
}

func (f *fakeIntents) ListStuck(_ context.Context, _ time.Time) ([]domain.SagaIntent, error) {
	return f.stuck, nil
}

type fakeEvents struct {
	published []OrderEventMsg
}

func (e *fakeEvents) PublishOrderEvent(_ context.Context, msg OrderEventMsg) error {
	e.published = append(e.published, msg)
	return nil
}

type fixture struct {
	store    *fakeStore
	users    *fakeUsers
	products *fakeProducts
	intents  *fakeIntents
	events   *fakeEvents
	orders   *Orders
}

func newFixture() *fixture {
	f := &fixture{
		store:    newFakeStore(),
		users:    &fakeUsers{},
		products: &fakeProducts{lookup: map[string]domain.Product{}},
		intents:  newFakeIntents(),
		events:   &fakeEvents{},
	}
	f.orders = NewOrders(f.store, f.users, f.products, f.intents, f.events, slog.Default())
	return f
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func createReq() CreateOrderRequest {
	return CreateOrderRequest{
		UserID:    "user-1",
		OrderDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Lines: []OrderLineRequest{
			{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2},
			{ProductID: "prod-b", UnitPrice: dec(5), Quantity: 3},
		},
	}
}

func TestCreateOrder_ReducesStockThenPersists(t *testing.T) {
	f := newFixture()

	view, err := f.orders.Create(context.Background(), createReq())
	require.NoError(t, err)
	require.NotEmpty(t, view.OrderID)

	// total is the sum over lines of unit price times quantity
	assert.True(t, view.Total.Equal(dec(35)), "got total %s", view.Total)

	require.Len(t, f.products.calls, 1)
	call := f.products.calls[0]
	assert.Equal(t, domain.StockReduce, call.direction)
	assert.Equal(t, []domain.StockAdjustment{
		{ProductID: "prod-a", Quantity: 2},
		{ProductID: "prod-b", Quantity: 3},
	}, call.adjustments)

	assert.Contains(t, f.store.orders, view.OrderID)
	assert.Empty(t, f.intents.open, "a finished saga leaves no intent behind")

	require.Len(t, f.events.published, 1)
	assert.Equal(t, EventOrderCreated, f.events.published[0].EventType)
}

func TestCreateOrder_AggregatesDuplicateLines(t *testing.T) {
	f := newFixture()

	req := createReq()
	req.Lines = []OrderLineRequest{
		{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2},
		{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 1},
	}

	_, err := f.orders.Create(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, f.products.calls, 1)
	assert.Equal(t, []domain.StockAdjustment{
		{ProductID: "prod-a", Quantity: 3},
	}, f.products.calls[0].adjustments)
}

func TestCreateOrder_AbortsWhenReserveFails(t *testing.T) {
	f := newFixture()
	f.products.failReduce = apperr.New(apperr.KindServiceUnavailable, "stock service down")

	_, err := f.orders.Create(context.Background(), createReq())
	require.Error(t, err)
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))

	assert.Empty(t, f.store.orders, "nothing may be persisted without a reservation")
	assert.Len(t, f.products.calls, 1, "no compensation when nothing was reserved")
	assert.Empty(t, f.events.published)
	assert.Empty(t, f.intents.open)
}

func TestCreateOrder_CompensatesWhenPersistFails(t *testing.T) {
	f := newFixture()
	f.store.createErr = apperr.New(apperr.KindPersistenceFailed, "write failed")

	_, err := f.orders.Create(context.Background(), createReq())
	require.Error(t, err)

	require.Len(t, f.products.calls, 2, "reduce then exactly one compensating increase")
	assert.Equal(t, domain.StockReduce, f.products.calls[0].direction)
	assert.Equal(t, domain.StockIncrease, f.products.calls[1].direction)
	assert.Equal(t, f.products.calls[0].adjustments, f.products.calls[1].adjustments,
		"compensation must mirror the reservation product for product")
	assert.Empty(t, f.events.published)
	assert.Empty(t, f.intents.open)
}

func TestCreateOrder_CompensatesWhenInvalidationFailsAfterReduce(t *testing.T) {
	f := newFixture()
	f.products.staleReduce = true

	_, err := f.orders.Create(context.Background(), createReq())
	require.Error(t, err)

	// The reduce committed remotely even though the call errored, so it
	// must be undone like any post-reserve failure.
	require.Len(t, f.products.calls, 2)
	assert.Equal(t, domain.StockReduce, f.products.calls[0].direction)
	assert.Equal(t, domain.StockIncrease, f.products.calls[1].direction)
	assert.Equal(t, f.products.calls[0].adjustments, f.products.calls[1].adjustments)

	assert.Empty(t, f.store.orders)
	assert.Empty(t, f.intents.open, "compensation succeeded, nothing left to reconcile")
}

func TestCreateOrder_LeavesIntentReconcilableWhenCompensationFails(t *testing.T) {
	f := newFixture()
	f.store.createErr = apperr.New(apperr.KindPersistenceFailed, "write failed")
	f.products.failIncrease = apperr.New(apperr.KindServiceUnavailable, "stock service down")

	_, err := f.orders.Create(context.Background(), createReq())
	require.Error(t, err)

	require.Len(t, f.intents.open, 1, "the sweep needs the intent to return the reserved stock")
	for _, intent := range f.intents.open {
		assert.Equal(t, domain.IntentStockReduced, intent.State)
	}
}

func TestCreateOrder_StaleCacheCompensationStillCompletesTheIntent(t *testing.T) {
	f := newFixture()
	f.store.createErr = apperr.New(apperr.KindPersistenceFailed, "write failed")
	f.products.staleIncrease = true

	_, err := f.orders.Create(context.Background(), createReq())
	require.Error(t, err)
	assert.Empty(t, f.intents.open, "the increase committed, a sweep re-run would over-increase")
}

func TestCreateOrder_RejectsUnknownUser(t *testing.T) {
	f := newFixture()
	f.users.err = apperr.New(apperr.KindNotFound, "no such user")

	_, err := f.orders.Create(context.Background(), createReq())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Empty(t, f.products.calls, "no stock may move for an unverified user")
	assert.Empty(t, f.store.orders)
}

func TestCreateOrder_CollectsEveryViolation(t *testing.T) {
	f := newFixture()

	req := CreateOrderRequest{
		Lines: []OrderLineRequest{{ProductID: "", UnitPrice: dec(0), Quantity: 0}},
	}
	_, err := f.orders.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidationFailed, apperr.KindOf(err))

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.GreaterOrEqual(t, len(ae.Errors), 3, "all violations reported at once: %v", ae.Errors)
	assert.Empty(t, f.products.calls)
}

func seedOrder(f *fixture, id string, lines []domain.OrderLine) {
	o := &domain.Order{
		OrderID:   id,
		UserID:    "user-1",
		OrderDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Lines:     lines,
	}
	o.RecalculateTotal()
	f.store.orders[id] = o
}

func TestUpdateOrder_AppliesOnlyTheStockDelta(t *testing.T) {
	f := newFixture()
	seedOrder(f, "ord-1", []domain.OrderLine{
		{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2},
		{ProductID: "prod-b", UnitPrice: dec(5), Quantity: 3},
	})

	req := UpdateOrderRequest{
		OrderID:   "ord-1",
		UserID:    "user-1",
		OrderDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Lines: []OrderLineRequest{
			{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 5},
			{ProductID: "prod-c", UnitPrice: dec(7), Quantity: 1},
		},
	}
	view, err := f.orders.Update(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, view.Total.Equal(dec(57)), "got total %s", view.Total)

	require.Len(t, f.products.calls, 2)
	assert.Equal(t, domain.StockReduce, f.products.calls[0].direction)
	assert.Equal(t, []domain.StockAdjustment{
		{ProductID: "prod-a", Quantity: 3},
		{ProductID: "prod-c", Quantity: 1},
	}, f.products.calls[0].adjustments)

	assert.Equal(t, domain.StockIncrease, f.products.calls[1].direction)
	assert.Equal(t, []domain.StockAdjustment{
		{ProductID: "prod-b", Quantity: 3},
	}, f.products.calls[1].adjustments)

	assert.Equal(t, int64(1), f.store.orders["ord-1"].Version)
}

func TestUpdateOrder_NoStockCallsWhenQuantitiesUnchanged(t *testing.T) {
	f := newFixture()
	lines := []domain.OrderLine{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2}}
	seedOrder(f, "ord-1", lines)

	req := UpdateOrderRequest{
		OrderID:   "ord-1",
		UserID:    "user-1",
		OrderDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Lines:     []OrderLineRequest{{ProductID: "prod-a", UnitPrice: dec(12), Quantity: 2}},
	}
	_, err := f.orders.Update(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, f.products.calls, "a price-only change moves no stock")
	assert.Zero(t, f.intents.created)
}

func TestUpdateOrder_AbortsWhenReduceFails(t *testing.T) {
	f := newFixture()
	seedOrder(f, "ord-1", []domain.OrderLine{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2}})
	f.products.failReduce = apperr.New(apperr.KindTimeout, "stock call timed out")

	req := UpdateOrderRequest{
		OrderID:   "ord-1",
		UserID:    "user-1",
		OrderDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Lines:     []OrderLineRequest{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 5}},
	}
	_, err := f.orders.Update(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))

	// persisted order unchanged
	assert.Equal(t, int64(0), f.store.orders["ord-1"].Version)
	assert.Equal(t, 2, f.store.orders["ord-1"].Lines[0].Quantity)
}

func TestUpdateOrder_CompensatesWhenInvalidationFailsAfterReduce(t *testing.T) {
	f := newFixture()
	seedOrder(f, "ord-1", []domain.OrderLine{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2}})
	f.products.staleReduce = true

	req := UpdateOrderRequest{
		OrderID:   "ord-1",
		UserID:    "user-1",
		OrderDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Lines:     []OrderLineRequest{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 5}},
	}
	_, err := f.orders.Update(context.Background(), req)
	require.Error(t, err)

	require.Len(t, f.products.calls, 2)
	assert.Equal(t, domain.StockIncrease, f.products.calls[1].direction)
	assert.Equal(t, f.products.calls[0].adjustments, f.products.calls[1].adjustments)

	assert.Equal(t, int64(0), f.store.orders["ord-1"].Version, "the order itself stays untouched")
	assert.Empty(t, f.intents.open)
}

func TestUpdateOrder_CompensatesWhenReplaceConflicts(t *testing.T) {
	f := newFixture()
	seedOrder(f, "ord-1", []domain.OrderLine{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2}})
	f.store.replaceErr = apperr.New(apperr.KindConflict, "order was modified concurrently")

	req := UpdateOrderRequest{
		OrderID:   "ord-1",
		UserID:    "user-1",
		OrderDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Lines:     []OrderLineRequest{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 5}},
	}
	_, err := f.orders.Update(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.Len(t, f.products.calls, 2)
	assert.Equal(t, domain.StockIncrease, f.products.calls[1].direction)
	assert.Equal(t, f.products.calls[0].adjustments, f.products.calls[1].adjustments)
}

func TestUpdateOrder_ReleaseFailureDoesNotFailTheRequest(t *testing.T) {
	f := newFixture()
	seedOrder(f, "ord-1", []domain.OrderLine{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 5}})
	f.products.failIncrease = apperr.New(apperr.KindServiceUnavailable, "stock service down")

	req := UpdateOrderRequest{
		OrderID:   "ord-1",
		UserID:    "user-1",
		OrderDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Lines:     []OrderLineRequest{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2}},
	}
	view, err := f.orders.Update(context.Background(), req)
	require.NoError(t, err, "the saved order is already correct, inventory only lags")
	assert.True(t, view.Total.Equal(dec(20)))
	assert.Equal(t, int64(1), f.store.orders["ord-1"].Version)
}

func TestDeleteOrder_DoesNotTouchStock(t *testing.T) {
	f := newFixture()
	seedOrder(f, "ord-1", []domain.OrderLine{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2}})

	require.NoError(t, f.orders.Delete(context.Background(), "ord-1"))
	assert.Empty(t, f.products.calls)
	assert.Empty(t, f.store.orders)

	require.Len(t, f.events.published, 1)
	assert.Equal(t, EventOrderDeleted, f.events.published[0].EventType)
}

func TestDeleteOrder_UnknownIDIsNotFound(t *testing.T) {
	f := newFixture()

	err := f.orders.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Empty(t, f.events.published)
}

func TestGetOrder_EnrichmentFailureIsNonFatal(t *testing.T) {
	f := newFixture()
	seedOrder(f, "ord-1", []domain.OrderLine{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2}})
	f.products.lookupErr = apperr.New(apperr.KindServiceUnavailable, "catalog down")

	view, err := f.orders.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Empty(t, view.Lines[0].ProductName)
}

func TestGetOrder_EnrichesLineNames(t *testing.T) {
	f := newFixture()
	seedOrder(f, "ord-1", []domain.OrderLine{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 2}})
	f.products.lookup["prod-a"] = domain.Product{ID: "prod-a", Name: "Keyboard"}

	view, err := f.orders.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "Keyboard", view.Lines[0].ProductName)
}

func TestListOrders_EmptyPageIsNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.orders.List(context.Background(), ListOrdersQuery{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListOrders_ExplicitZeroPageSizeIsRejected(t *testing.T) {
	f := newFixture()
	seedOrder(f, "ord-1", []domain.OrderLine{{ProductID: "prod-a", UnitPrice: dec(10), Quantity: 1}})

	_, err := f.orders.List(context.Background(), ListOrdersQuery{Page: intp(1), PageSize: intp(0)})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidationFailed, apperr.KindOf(err),
		"an explicit zero is not a request for the default")

	// Absent paging still falls back to the defaults.
	views, err := f.orders.List(context.Background(), ListOrdersQuery{})
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestReconcile_ReturnsStuckStock(t *testing.T) {
	f := newFixture()
	f.intents.stuck = []domain.SagaIntent{{
		ID:      "intent-1",
		OrderID: "ord-1",
		Adjustments: []domain.StockAdjustment{
			{ProductID: "prod-a", Quantity: 2},
		},
		State: domain.IntentStockReduced,
	}}

	require.NoError(t, f.orders.Reconcile(context.Background(), 10*time.Minute))

	require.Len(t, f.products.calls, 1)
	assert.Equal(t, domain.StockIncrease, f.products.calls[0].direction)
	assert.Equal(t, []domain.StockAdjustment{{ProductID: "prod-a", Quantity: 2}},
		f.products.calls[0].adjustments)
	assert.Contains(t, f.intents.completed, "intent-1")
}

func TestReconcile_StaleCacheIncreaseStillCompletesTheIntent(t *testing.T) {
	f := newFixture()
	f.products.staleIncrease = true
	f.intents.stuck = []domain.SagaIntent{{
		ID:          "intent-1",
		OrderID:     "ord-1",
		Adjustments: []domain.StockAdjustment{{ProductID: "prod-a", Quantity: 2}},
		State:       domain.IntentStockReduced,
	}}

	require.NoError(t, f.orders.Reconcile(context.Background(), 10*time.Minute))
	assert.Contains(t, f.intents.completed, "intent-1",
		"the increase committed, the next sweep must not re-run it")
}
