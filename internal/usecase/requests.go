package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/aq2208/orders-service/internal/entity"
)

type OrderLineRequest struct {
	ProductID string          `json:"productId" validate:"required"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
}

type CreateOrderRequest struct {
	UserID    string             `json:"userId" validate:"required"`
	OrderDate time.Time          `json:"orderDate" validate:"required"`
	Lines     []OrderLineRequest `json:"orderItems" validate:"required,min=1,dive"`
}

type UpdateOrderRequest struct {
	OrderID   string             `json:"orderId" validate:"required"`
	UserID    string             `json:"userId" validate:"required"`
	OrderDate time.Time          `json:"orderDate" validate:"required"`
	Lines     []OrderLineRequest `json:"orderItems" validate:"required,min=1,dive"`
}

// ListOrdersQuery narrows and pages an order listing. Page and PageSize stay
// nil when the caller sent nothing; an explicit zero is a validation failure,
// not a request for the default.
type ListOrdersQuery struct {
	OrderID  *string
	UserID   *string
	FromDate *time.Time
	ToDate   *time.Time
	MinTotal *decimal.Decimal
	MaxTotal *decimal.Decimal
	Page     *int
	PageSize *int
}

func (q *ListOrdersQuery) applyDefaults() {
	if q.Page == nil {
		page := 1
		q.Page = &page
	}
	if q.PageSize == nil {
		size := 10
		q.PageSize = &size
	}
}

// toFilter must only run after applyDefaults.
func (q ListOrdersQuery) toFilter() domain.OrderFilter {
	return domain.OrderFilter{
		OrderID:  q.OrderID,
		UserID:   q.UserID,
		FromDate: q.FromDate,
		ToDate:   q.ToDate,
		MinTotal: q.MinTotal,
		MaxTotal: q.MaxTotal,
		Page:     *q.Page,
		PageSize: *q.PageSize,
	}
}

func linesFromRequest(lines []OrderLineRequest) []domain.OrderLine {
	out := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.OrderLine{
			ProductID: l.ProductID,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}
	return out
}

// OrderView is what read operations return: the order with lines enriched
// with a display name when the catalog lookup succeeded.
type OrderView struct {
	OrderID   string          `json:"orderId"`
	UserID    string          `json:"userId"`
	OrderDate time.Time       `json:"orderDate"`
	Total     decimal.Decimal `json:"total"`
	Lines     []OrderLineView `json:"orderItems"`
}

type OrderLineView struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// viewOf maps an order to its response shape; products may be nil when
// enrichment was skipped or failed (names are simply absent).
func viewOf(o *domain.Order, products map[string]domain.Product) *OrderView {
	v := &OrderView{
		OrderID:   o.OrderID,
		UserID:    o.UserID,
		OrderDate: o.OrderDate,
		Total:     o.Total,
		Lines:     make([]OrderLineView, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		lv := OrderLineView{
			ProductID: l.ProductID,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal(),
		}
		if p, ok := products[l.ProductID]; ok {
			lv.ProductName = p.Name
		}
		v.Lines = append(v.Lines, lv)
	}
	return v
}
