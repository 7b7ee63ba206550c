package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domain "github.com/aq2208/orders-service/internal/entity"
)

func line(id string, qty int) domain.OrderLine {
	return domain.OrderLine{ProductID: id, Quantity: qty}
}

func TestDiffLines(t *testing.T) {
	tests := []struct {
		name     string
		old      []domain.OrderLine
		new      []domain.OrderLine
		reduce   []domain.StockAdjustment
		increase []domain.StockAdjustment
	}{
		{
			name:     "grown, added and removed products",
			old:      []domain.OrderLine{line("a", 2), line("b", 3)},
			new:      []domain.OrderLine{line("a", 5), line("c", 1)},
			reduce:   []domain.StockAdjustment{{ProductID: "a", Quantity: 3}, {ProductID: "c", Quantity: 1}},
			increase: []domain.StockAdjustment{{ProductID: "b", Quantity: 3}},
		},
		{
			name: "identical quantities move nothing",
			old:  []domain.OrderLine{line("a", 2)},
			new:  []domain.OrderLine{line("a", 2)},
		},
		{
			name:     "shrunk quantity increases the difference",
			old:      []domain.OrderLine{line("a", 5)},
			new:      []domain.OrderLine{line("a", 2)},
			increase: []domain.StockAdjustment{{ProductID: "a", Quantity: 3}},
		},
		{
			name:   "duplicate lines are summed before diffing",
			old:    []domain.OrderLine{line("a", 1), line("a", 1)},
			new:    []domain.OrderLine{line("a", 3)},
			reduce: []domain.StockAdjustment{{ProductID: "a", Quantity: 1}},
		},
		{
			name:     "all products removed",
			old:      []domain.OrderLine{line("a", 2), line("b", 1)},
			new:      nil,
			increase: []domain.StockAdjustment{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reduce, increase := diffLines(tt.old, tt.new)
			assert.Equal(t, tt.reduce, reduce)
			assert.Equal(t, tt.increase, increase)
		})
	}
}

func TestAggregateAdjustments(t *testing.T) {
	got := aggregateAdjustments([]domain.OrderLine{
		line("b", 2), line("a", 1), line("b", 3),
	})
	assert.Equal(t, []domain.StockAdjustment{
		{ProductID: "a", Quantity: 1},
		{ProductID: "b", Quantity: 5},
	}, got, "one adjustment per product, sorted by id")
}
