package pnl

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/model"
)

// ComputeHoldings groups events by item and returns one Holding per item the
// user has bought at least once, ordered by item ID. Fully sold items are
// included with QuantityHeld == 0; use CurrentHoldings for the open view.
//
// AvgBuyCost is the plain mean of every purchase price of the item, including
// units that have since been sold.
func ComputeHoldings(purchases []model.PurchaseEvent, sales []model.SaleEvent) []model.Holding {
	type agg struct {
		userID string
		bought int64
		sold   int64
		cost   decimal.Decimal
	}

	byItem := make(map[int64]*agg)
	for _, p := range purchases {
		a, ok := byItem[p.ItemID]
		if !ok {
			a = &agg{userID: p.UserID}
			byItem[p.ItemID] = a
		}
		a.bought++
		a.cost = a.cost.Add(p.UnitPrice)
	}
	for _, s := range sales {
		// Sales of never-bought items carry no holding.
		if a, ok := byItem[s.ItemID]; ok {
			a.sold++
		}
	}

	holdings := make([]model.Holding, 0, len(byItem))
	for itemID, a := range byItem {
		held := a.bought - a.sold
		if held < 0 {
			held = 0
		}
		holdings = append(holdings, model.Holding{
			UserID:         a.userID,
			ItemID:         itemID,
			QuantityBought: a.bought,
			QuantitySold:   a.sold,
			QuantityHeld:   held,
			AvgBuyCost:     mean(a.cost, int(a.bought)),
			TotalCostBasis: a.cost,
		})
	}
	slices.SortFunc(holdings, func(x, y model.Holding) int {
		return cmp.Compare(x.ItemID, y.ItemID)
	})
	return holdings
}

// CurrentHoldings keeps only holdings with units still held.
func CurrentHoldings(holdings []model.Holding) []model.Holding {
	open := make([]model.Holding, 0, len(holdings))
	for _, h := range holdings {
		if h.QuantityHeld > 0 {
			open = append(open, h)
		}
	}
	return open
}

// QuantityHeld returns bought minus sold for one item, clamped at zero.
func QuantityHeld(itemID int64, purchases []model.PurchaseEvent, sales []model.SaleEvent) int64 {
	var held int64
	for _, p := range purchases {
		if p.ItemID == itemID {
			held++
		}
	}
	for _, s := range sales {
		if s.ItemID == itemID {
			held--
		}
	}
	return max(held, 0)
}
