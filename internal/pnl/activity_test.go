package pnl

import (
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/model"
)

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, 3, 10, 23, 30, 0, 0, time.FixedZone("CST", 8*3600))
	want := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	if got := WindowStart(now, 7); !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestRecentTransactions(t *testing.T) {
	purchases := []model.PurchaseEvent{buy(1, 1, at(0), 10), buy(2, 2, at(5), 20)}
	sales := []model.SaleEvent{sell(3, 1, at(5), 15, 1), sell(4, 2, at(9), 25, 0)}

	tests := []struct {
		name  string
		limit int
		want  []string // side:seq, newest first
	}{
		{"all", 0, []string{"SELL:4", "SELL:3", "BUY:2", "BUY:1"}},
		{"limited", 2, []string{"SELL:4", "SELL:3"}},
		{"limit above size", 10, []string{"SELL:4", "SELL:3", "BUY:2", "BUY:1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := RecentTransactions(purchases, sales, tt.limit)
			if len(feed) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(feed))
			}
			for i, tx := range feed {
				if got := tx.Side + ":" + strconv.FormatInt(tx.Seq, 10); got != tt.want[i] {
					t.Errorf("entry %d: expected %s, got %s", i, tt.want[i], got)
				}
			}
		})
	}

	// Sales keep the gross price.
	if feed := RecentTransactions(nil, sales[:1], 0); !feed[0].Price.Equal(d(15)) {
		t.Errorf("expected gross sale price 15, got %s", feed[0].Price)
	}
	if feed := RecentTransactions(nil, nil, RecentLimit); feed == nil || len(feed) != 0 {
		t.Errorf("expected empty non-nil feed, got %v", feed)
	}
}

func TestMarkPrice(t *testing.T) {
	snap := func(platform int64, hours int, price float64) model.MarketSnapshot {
		return model.MarketSnapshot{ItemID: 1, PlatformID: platform, Price: d(price), CapturedAt: at(hours)}
	}
	tests := []struct {
		name  string
		snaps []model.MarketSnapshot
		want  float64
		ok    bool
	}{
		{"none", nil, 0, false},
		{"single", []model.MarketSnapshot{snap(1, 0, 12)}, 12, true},
		{"latest per platform", []model.MarketSnapshot{snap(1, 0, 50), snap(1, 3, 12)}, 12, true},
		{"highest across platforms", []model.MarketSnapshot{snap(1, 3, 12), snap(2, 0, 14), snap(3, 1, 9)}, 14, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MarkPrice(tt.snaps)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok {
				assertDec(t, "mark", got, tt.want)
			}
		})
	}
}

func TestRankByMarketValue(t *testing.T) {
	p := func(user string, item int64, price float64) model.PurchaseEvent {
		return model.PurchaseEvent{UserID: user, ItemID: item, Timestamp: t0, UnitPrice: d(price)}
	}
	purchases := []model.PurchaseEvent{
		// alice: items 1 (twice) and 2, both priced.
		p("alice", 1, 10), p("alice", 1, 12), p("alice", 2, 5),
		// bob: items 1 and 3; item 3 has no mark, so bob has one priced item.
		p("bob", 1, 9), p("bob", 3, 100),
		// carol: items 2 and 4.
		p("carol", 2, 4), p("carol", 4, 30),
	}
	marks := map[int64]decimal.Decimal{1: d(15), 2: d(6), 4: d(40)}

	ranks := RankByMarketValue(purchases, marks, MinDistinctItems)
	if len(ranks) != 2 {
		t.Fatalf("expected 2 ranked users, got %+v", ranks)
	}

	tests := []struct {
		user     string
		value    float64
		avgCost  float64
		distinct int
	}{
		{"carol", 46, 17, 2},
		{"alice", 21, 8, 2}, // avg of (11, 5)
	}
	for i, tt := range tests {
		r := ranks[i]
		if r.UserID != tt.user || r.DistinctItems != tt.distinct {
			t.Errorf("rank %d: expected %s with %d items, got %s with %d", i, tt.user, tt.distinct, r.UserID, r.DistinctItems)
		}
		assertDec(t, tt.user+" value", r.EstMarketValue, tt.value)
		assertDec(t, tt.user+" avg cost", r.AvgCost, tt.avgCost)
	}

	if got := RankByMarketValue(purchases, marks, 1); len(got) != 3 {
		t.Errorf("expected bob included with minItems=1, got %d users", len(got))
	}
}

func TestSummarizePlatformSales(t *testing.T) {
	s := func(platform int64, price float64) model.SaleEvent {
		return model.SaleEvent{PlatformID: platform, Timestamp: t0, UnitPrice: d(price), Fee: d(1)}
	}
	tests := []struct {
		name  string
		sales []model.SaleEvent
		want  []model.PlatformSales
	}{
		{"empty", nil, []model.PlatformSales{}},
		{
			"ordered by count then average",
			[]model.SaleEvent{s(1, 10), s(2, 3), s(2, 4), s(3, 20), s(2, 5)},
			[]model.PlatformSales{
				{PlatformID: 2, SaleCount: 3, AvgSalePrice: d(4)},
				{PlatformID: 3, SaleCount: 1, AvgSalePrice: d(20)},
				{PlatformID: 1, SaleCount: 1, AvgSalePrice: d(10)},
			},
		},
		{
			"average rounded to cents",
			[]model.SaleEvent{s(4, 1), s(4, 1), s(4, 2)},
			[]model.PlatformSales{{PlatformID: 4, SaleCount: 3, AvgSalePrice: d(1.33)}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SummarizePlatformSales(tt.sales)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d platforms, got %+v", len(tt.want), got)
			}
			for i, w := range tt.want {
				if got[i].PlatformID != w.PlatformID || got[i].SaleCount != w.SaleCount || !got[i].AvgSalePrice.Equal(w.AvgSalePrice) {
					t.Errorf("row %d: expected %+v, got %+v", i, w, got[i])
				}
			}
		})
	}
}
