package pnl

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/model"
)

// Activity window defaults.
const (
	RecentDays       = 60
	RecentLimit      = 50
	PlatformDays     = 7
	MinDistinctItems = 2
)

// WindowStart is midnight UTC of the current day minus days.
func WindowStart(now time.Time, days int) time.Time {
	return truncateDay(now).AddDate(0, 0, -days)
}

// RecentTransactions merges purchases and sales into one feed, newest first
// (ts, then seq), truncated to limit. A non-positive limit keeps everything.
// Names are left for the caller to fill in.
func RecentTransactions(purchases []model.PurchaseEvent, sales []model.SaleEvent, limit int) []model.Transaction {
	feed := make([]model.Transaction, 0, len(purchases)+len(sales))
	for _, p := range purchases {
		feed = append(feed, model.Transaction{
			ID: p.ID, Seq: p.Seq, Side: model.SideBuy, UserID: p.UserID,
			ItemID: p.ItemID, PlatformID: p.PlatformID, Timestamp: p.Timestamp, Price: p.UnitPrice,
		})
	}
	for _, s := range sales {
		feed = append(feed, model.Transaction{
			ID: s.ID, Seq: s.Seq, Side: model.SideSell, UserID: s.UserID,
			ItemID: s.ItemID, PlatformID: s.PlatformID, Timestamp: s.Timestamp, Price: s.UnitPrice,
		})
	}
	slices.SortFunc(feed, func(a, b model.Transaction) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	if limit > 0 && len(feed) > limit {
		feed = feed[:limit]
	}
	return feed
}

// MarkPrice takes the latest snapshot on each platform and returns the
// highest of those prices.
func MarkPrice(snaps []model.MarketSnapshot) (decimal.Decimal, bool) {
	latest := make(map[int64]model.MarketSnapshot)
	for _, s := range snaps {
		if cur, ok := latest[s.PlatformID]; !ok || s.CapturedAt.After(cur.CapturedAt) {
			latest[s.PlatformID] = s
		}
	}
	var mark decimal.Decimal
	found := false
	for _, s := range latest {
		if !found || s.Price.GreaterThan(mark) {
			mark = s.Price
			found = true
		}
	}
	return mark, found
}

// RankByMarketValue estimates each user's collection value from the
// distinct items they bought that have a mark price. Users with fewer than
// minItems such items are left out. Highest value first, ties by user ID.
//
// AvgCost is the mean of the per-item average purchase prices, rounded to
// cents.
func RankByMarketValue(purchases []model.PurchaseEvent, marks map[int64]decimal.Decimal, minItems int) []model.MarketValueRank {
	type lot struct {
		sum decimal.Decimal
		n   int
	}
	byUser := make(map[string]map[int64]*lot)
	for _, p := range purchases {
		if _, ok := marks[p.ItemID]; !ok {
			continue
		}
		items, ok := byUser[p.UserID]
		if !ok {
			items = make(map[int64]*lot)
			byUser[p.UserID] = items
		}
		l, ok := items[p.ItemID]
		if !ok {
			l = &lot{}
			items[p.ItemID] = l
		}
		l.sum = l.sum.Add(p.UnitPrice)
		l.n++
	}

	ranks := []model.MarketValueRank{}
	for userID, items := range byUser {
		if len(items) < minItems {
			continue
		}
		var value, avgSum decimal.Decimal
		for itemID, l := range items {
			value = value.Add(marks[itemID])
			avgSum = avgSum.Add(mean(l.sum, l.n))
		}
		ranks = append(ranks, model.MarketValueRank{
			UserID:         userID,
			EstMarketValue: value,
			AvgCost:        mean(avgSum, len(items)).Round(2),
			DistinctItems:  len(items),
		})
	}
	slices.SortFunc(ranks, func(a, b model.MarketValueRank) int {
		if c := b.EstMarketValue.Cmp(a.EstMarketValue); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return ranks
}

// SummarizePlatformSales counts sales and averages their gross price per
// platform. Most sales first, then highest average, then platform ID.
func SummarizePlatformSales(sales []model.SaleEvent) []model.PlatformSales {
	type acc struct {
		sum decimal.Decimal
		n   int
	}
	byPlatform := make(map[int64]*acc)
	for _, s := range sales {
		a, ok := byPlatform[s.PlatformID]
		if !ok {
			a = &acc{}
			byPlatform[s.PlatformID] = a
		}
		a.sum = a.sum.Add(s.UnitPrice)
		a.n++
	}

	out := make([]model.PlatformSales, 0, len(byPlatform))
	for id, a := range byPlatform {
		out = append(out, model.PlatformSales{
			PlatformID:   id,
			SaleCount:    a.n,
			AvgSalePrice: mean(a.sum, a.n).Round(2),
		})
	}
	slices.SortFunc(out, func(a, b model.PlatformSales) int {
		if c := cmp.Compare(b.SaleCount, a.SaleCount); c != 0 {
			return c
		}
		if c := b.AvgSalePrice.Cmp(a.AvgSalePrice); c != 0 {
			return c
		}
		return cmp.Compare(a.PlatformID, b.PlatformID)
	})
	return out
}
