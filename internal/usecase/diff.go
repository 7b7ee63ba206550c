package usecase

import (
	"sort"

	domain "github.com/aq2208/orders-service/internal/entity"
)

// aggregateAdjustments folds order lines into one adjustment per product id,
// summing quantities of duplicate lines.
func aggregateAdjustments(lines []domain.OrderLine) []domain.StockAdjustment {
	perProduct := make(map[string]int, len(lines))
	for _, l := range lines {
		perProduct[l.ProductID] += l.Quantity
	}
	return sortedAdjustments(perProduct)
}

// diffLines computes the stock delta between the persisted lines and the
// requested ones:
//
//	quantity grew        -> reduce the difference
//	quantity shrank      -> increase the difference
//	product removed      -> increase its full old quantity
//	product newly added  -> reduce its full new quantity
func diffLines(oldLines, newLines []domain.OrderLine) (reduce, increase []domain.StockAdjustment) {
	oldQty := make(map[string]int, len(oldLines))
	for _, l := range oldLines {
		oldQty[l.ProductID] += l.Quantity
	}
	newQty := make(map[string]int, len(newLines))
	for _, l := range newLines {
		newQty[l.ProductID] += l.Quantity
	}

	reduceQty := make(map[string]int)
	increaseQty := make(map[string]int)
	for id, nq := range newQty {
		oq, existed := oldQty[id]
		switch {
		case !existed:
			reduceQty[id] = nq
		case nq > oq:
			reduceQty[id] = nq - oq
		case nq < oq:
			increaseQty[id] = oq - nq
		}
	}
	for id, oq := range oldQty {
		if _, kept := newQty[id]; !kept {
			increaseQty[id] = oq
		}
	}
	return sortedAdjustments(reduceQty), sortedAdjustments(increaseQty)
}

func sortedAdjustments(perProduct map[string]int) []domain.StockAdjustment {
	if len(perProduct) == 0 {
		return nil
	}
	out := make([]domain.StockAdjustment, 0, len(perProduct))
	for id, qty := range perProduct {
		out = append(out, domain.StockAdjustment{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
