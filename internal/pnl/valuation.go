package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/model"
)

// PriceLookup returns the latest known market price of an item.
// ok is false when no snapshot exists.
type PriceLookup func(itemID int64) (price decimal.Decimal, ok bool)

// Value marks a holding to market. A missing price values the position at
// zero, so UnrealizedPnL degrades to -AvgBuyCost * QuantityHeld.
func Value(h model.Holding, price decimal.Decimal, ok bool) model.Valuation {
	if !ok {
		price = decimal.Zero
	}
	qty := decimal.NewFromInt(h.QuantityHeld)
	return model.Valuation{
		Holding:            h,
		MarketPrice:        price,
		PriceKnown:         ok,
		CurrentMarketValue: price.Mul(qty),
		UnrealizedPnL:      price.Sub(h.AvgBuyCost).Mul(qty),
	}
}

// ValueHoldings values every holding with lookup. A nil lookup treats every
// price as missing.
func ValueHoldings(holdings []model.Holding, lookup PriceLookup) []model.Valuation {
	out := make([]model.Valuation, 0, len(holdings))
	for _, h := range holdings {
		var (
			price decimal.Decimal
			ok    bool
		)
		if lookup != nil {
			price, ok = lookup(h.ItemID)
		}
		out = append(out, Value(h, price, ok))
	}
	return out
}

// Totals sums market value and unrealized PnL over valuations.
func Totals(vals []model.Valuation) (marketValue, unrealized decimal.Decimal) {
	for _, v := range vals {
		marketValue = marketValue.Add(v.CurrentMarketValue)
		unrealized = unrealized.Add(v.UnrealizedPnL)
	}
	return marketValue, unrealized
}

// LatestSnapshot picks the current market snapshot: the greatest CapturedAt
// across platforms, ties broken by the highest PlatformID.
func LatestSnapshot(snaps []model.MarketSnapshot) (model.MarketSnapshot, bool) {
	if len(snaps) == 0 {
		return model.MarketSnapshot{}, false
	}
	best := snaps[0]
	for _, s := range snaps[1:] {
		switch c := s.CapturedAt.Compare(best.CapturedAt); {
		case c > 0:
			best = s
		case c == 0 && s.PlatformID > best.PlatformID:
			best = s
		}
	}
	return best, true
}
