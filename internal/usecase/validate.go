package usecase

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/aq2208/orders-service/internal/apperr"
)

// Validator collects every rule violation of a request, not just the first,
// so a caller can fix a whole payload in one round trip.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (va *Validator) structViolations(s any) []string {
	err := va.v.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, violationMessage(fe))
	}
	return out
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		return fmt.Sprintf("%s should not be empty", fe.Field())
	case "gt":
		return fmt.Sprintf("%s should be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed the %s rule", fe.Field(), fe.Tag())
	}
}

// lineViolations covers what struct tags cannot: decimal positivity.
func lineViolations(lines []OrderLineRequest) []string {
	var out []string
	for i, l := range lines {
		if !l.UnitPrice.IsPositive() {
			out = append(out, fmt.Sprintf("UnitPrice of item %d should be greater than zero", i))
		}
	}
	return out
}

func (va *Validator) CreateOrder(req CreateOrderRequest) error {
	violations := va.structViolations(req)
	violations = append(violations, lineViolations(req.Lines)...)
	if len(violations) > 0 {
		return apperr.Validation("order validation failed", violations)
	}
	return nil
}

func (va *Validator) UpdateOrder(req UpdateOrderRequest) error {
	violations := va.structViolations(req)
	violations = append(violations, lineViolations(req.Lines)...)
	if len(violations) > 0 {
		return apperr.Validation("order validation failed", violations)
	}
	return nil
}

// ListOrders checks the paging bounds by hand: an explicit zero must be
// rejected, which struct tags on dereferenced pointers cannot express.
func (va *Validator) ListOrders(q ListOrdersQuery) error {
	var violations []string
	if q.Page != nil && *q.Page < 1 {
		violations = append(violations, "Page must be at least 1")
	}
	if q.PageSize != nil {
		switch {
		case *q.PageSize < 1:
			violations = append(violations, "PageSize must be at least 1")
		case *q.PageSize > 100:
			violations = append(violations, "PageSize must be at most 100")
		}
	}
	if q.MinTotal != nil && !q.MinTotal.IsPositive() {
		violations = append(violations, "MinTotal must be greater than zero")
	}
	if q.MinTotal != nil && q.MaxTotal != nil && q.MaxTotal.LessThan(*q.MinTotal) {
		violations = append(violations, "MaxTotal must be greater than or equal to MinTotal")
	}
	if q.FromDate != nil && q.ToDate != nil && q.ToDate.Before(*q.FromDate) {
		violations = append(violations, "ToDate must be greater than or equal to FromDate")
	}
	if len(violations) > 0 {
		return apperr.Validation("orders query validation failed", violations)
	}
	return nil
}
