// Package pnl implements the portfolio valuation engine: it reduces a user's
// purchase and sale history plus the latest market prices into holdings,
// FIFO-matched trades, unrealized/realized PnL, ROI and a day-bucketed
// cumulative series.
//
// Every function is a pure reduction over in-memory events. Nothing here does
// I/O or returns an error; degenerate inputs (no purchases, missing prices,
// unmatched sales) produce zero values instead.
//
// All monetary values use shopspring/decimal, never float64 for money.
// Money stays unrounded in the base currency; percentages are rounded to
// PercentScale places, half away from zero.
package pnl

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/model"
)

// PercentScale is the number of decimal places for ROI and win rate.
var PercentScale int32 = 2

var hundred = decimal.NewFromInt(100)

// percent returns num/den*100 rounded to PercentScale, or zero when den is zero.
func percent(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den).Mul(hundred).Round(PercentScale)
}

// mean returns sum/n, or zero when n is zero.
func mean(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

// sortedPurchases returns a copy ordered by timestamp, then insertion order.
func sortedPurchases(in []model.PurchaseEvent) []model.PurchaseEvent {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b model.PurchaseEvent) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}

func sortedSales(in []model.SaleEvent) []model.SaleEvent {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b model.SaleEvent) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}
