package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/aq2208/orders-service/internal/apperr"
	"github.com/aq2208/orders-service/internal/usecase"
)

type OrderHandler struct {
	orders *usecase.Orders
}

func NewOrderHandler(orders *usecase.Orders) *OrderHandler {
	return &OrderHandler{orders: orders}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req usecase.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.Validation("request body is not valid JSON", []string{err.Error()}))
		return
	}

	view, err := h.orders.Create(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusCreated, view)
}

func (h *OrderHandler) GetOrderByID(c *gin.Context) {
	view, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, view)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	q, violations := parseListQuery(c)
	if len(violations) > 0 {
		respondErr(c, apperr.Validation("invalid search parameters", violations))
		return
	}

	views, err := h.orders.List(c.Request.Context(), q)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, views)
}

func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	var req usecase.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.Validation("request body is not valid JSON", []string{err.Error()}))
		return
	}

	// The path owns the identity; a diverging body id is a client bug.
	id := c.Param("id")
	if req.OrderID != "" && req.OrderID != id {
		respondErr(c, apperr.Validation("order id in body does not match the URL", nil))
		return
	}
	req.OrderID = id

	view, err := h.orders.Update(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, view)
}

func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	if err := h.orders.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, true)
}

// parseListQuery reads the search parameters by hand; decimal and date
// bounds are not expressible with binding tags. All malformed values are
// collected so the client sees every problem in one round trip.
func parseListQuery(c *gin.Context) (usecase.ListOrdersQuery, []string) {
	var (
		q          usecase.ListOrdersQuery
		violations []string
	)

	if v := c.Query("orderId"); v != "" {
		q.OrderID = &v
	}
	if v := c.Query("userId"); v != "" {
		q.UserID = &v
	}

	parseDate := func(name string) *time.Time {
		v := c.Query(name)
		if v == "" {
			return nil
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			violations = append(violations, name+" must be a date in YYYY-MM-DD form")
			return nil
		}
		return &t
	}
	q.FromDate = parseDate("fromDate")
	q.ToDate = parseDate("toDate")

	parseDecimal := func(name string) *decimal.Decimal {
		v := c.Query(name)
		if v == "" {
			return nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			violations = append(violations, name+" must be a decimal number")
			return nil
		}
		return &d
	}
	q.MinTotal = parseDecimal("minTotal")
	q.MaxTotal = parseDecimal("maxTotal")

	// An absent parameter stays nil so the defaults apply; an explicit
	// value, zero included, is carried through to validation as sent.
	parseInt := func(name string) *int {
		v := c.Query(name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			violations = append(violations, name+" must be an integer")
			return nil
		}
		return &n
	}
	q.Page = parseInt("page")
	q.PageSize = parseInt("pageSize")

	return q, violations
}
