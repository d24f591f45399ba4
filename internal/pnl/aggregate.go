package pnl

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/model"
)

// DateLayout is the KlinePoint date format.
const DateLayout = "2006-01-02"

// ComputeStats merges the full history and a matching result into summary
// statistics.
//
// RealizedPnL nets all sale revenue against all purchase cost, not against
// the cost of the units actually sold; unsold inventory therefore shows up
// as a realized loss until it is sold.
func ComputeStats(purchases []model.PurchaseEvent, sales []model.SaleEvent, match MatchResult) model.FinancialStats {
	var invested, revenue, fees decimal.Decimal
	for _, p := range purchases {
		invested = invested.Add(p.UnitPrice)
	}
	for _, s := range sales {
		revenue = revenue.Add(s.Net())
		fees = fees.Add(s.Fee)
	}
	realized := revenue.Sub(invested)

	return model.FinancialStats{
		Currency:       model.BaseCurrency,
		TotalInvested:  invested,
		TotalRevenue:   revenue,
		TotalFees:      fees,
		RealizedPnL:    realized,
		ROIPercent:     percent(realized, invested),
		WinRate:        match.WinRate,
		AvgTradePnL:    match.AvgTradePnL,
		TradeCount:     len(match.Trades),
		UnmatchedSales: len(match.Unmatched),
		KlineData:      ComputeKline(purchases, sales),
	}
}

// ComputeKline returns one point per UTC calendar day from the first to the
// last transaction date inclusive. Each point carries running totals; days
// without activity repeat the previous day's values.
func ComputeKline(purchases []model.PurchaseEvent, sales []model.SaleEvent) []model.KlinePoint {
	type delta struct{ invested, revenue decimal.Decimal }

	days := make(map[time.Time]*delta)
	var first, last time.Time
	touch := func(ts time.Time) *delta {
		day := truncateDay(ts)
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
		d, ok := days[day]
		if !ok {
			d = &delta{}
			days[day] = d
		}
		return d
	}
	for _, p := range purchases {
		d := touch(p.Timestamp)
		d.invested = d.invested.Add(p.UnitPrice)
	}
	for _, s := range sales {
		d := touch(s.Timestamp)
		d.revenue = d.revenue.Add(s.Net())
	}

	points := []model.KlinePoint{}
	if len(days) == 0 {
		return points
	}

	var invested, revenue decimal.Decimal
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if d, ok := days[day]; ok {
			invested = invested.Add(d.invested)
			revenue = revenue.Add(d.revenue)
		}
		points = append(points, model.KlinePoint{
			Date:     day.Format(DateLayout),
			Invested: invested,
			Revenue:  revenue,
			PnL:      revenue.Sub(invested),
		})
	}
	return points
}

func truncateDay(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
