package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skintrack/tracker/internal/model"
)

func TestDashboard_Windows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.now = func() time.Time { return t0.AddDate(0, 0, 70) }
	f.ms.CreateUser(ctx, &model.User{ID: "alice", DisplayName: "Alice"})

	f.buy(t, f.ak, 0, 10)   // outside the 60 day feed window
	f.buy(t, f.awp, 20, 40) // inside
	f.sell(t, f.ak, 62, 15, 1)
	f.sell(t, f.awp, 68, 50, 2)
	f.ms.InsertSnapshot(ctx, &model.MarketSnapshot{ID: "a", ItemID: f.ak.ID, PlatformID: 1, Price: d(12), CapturedAt: t0})
	f.ms.InsertSnapshot(ctx, &model.MarketSnapshot{ID: "b", ItemID: f.awp.ID, PlatformID: 1, Price: d(45), CapturedAt: t0})

	dash, err := f.svc.Dashboard(ctx, "CNY")
	if err != nil {
		t.Fatal(err)
	}
	if dash.Currency != "CNY" {
		t.Errorf("expected CNY, got %s", dash.Currency)
	}

	tests := []struct {
		side  string
		item  string
		price float64
	}{
		{model.SideSell, f.awp.MarketName, 350},
		{model.SideSell, f.ak.MarketName, 105},
		{model.SideBuy, f.awp.MarketName, 280},
	}
	if len(dash.Transactions) != len(tests) {
		t.Fatalf("expected %d transactions, got %+v", len(tests), dash.Transactions)
	}
	for i, tt := range tests {
		tx := dash.Transactions[i]
		if tx.Side != tt.side || tx.MarketName != tt.item || tx.DisplayName != "Alice" || !tx.Price.Equal(d(tt.price)) {
			t.Errorf("transaction %d: expected %s %s at %v, got %+v", i, tt.side, tt.item, tt.price, tx)
		}
	}

	// The ranking covers all history: both items, marks 12 + 45.
	if len(dash.Portfolios) != 1 {
		t.Fatalf("expected alice ranked, got %+v", dash.Portfolios)
	}
	r := dash.Portfolios[0]
	if r.DisplayName != "Alice" || r.DistinctItems != 2 || !r.EstMarketValue.Equal(d(399)) || !r.AvgCost.Equal(d(175)) {
		t.Errorf("unexpected rank %+v", r)
	}

	// Only the day 68 sale falls in the 7 day platform window.
	if len(dash.Platforms) != 1 || dash.Platforms[0].SaleCount != 1 || !dash.Platforms[0].AvgSalePrice.Equal(d(350)) {
		t.Errorf("unexpected platform stats %+v", dash.Platforms)
	}
}

func TestDashboard_Empty(t *testing.T) {
	f := newFixture(t)
	dash, err := f.svc.Dashboard(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if dash.Transactions == nil || dash.Portfolios == nil || dash.Platforms == nil {
		t.Errorf("expected empty non-nil views, got %+v", dash)
	}
}

func TestDashboard_InvalidCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.RecentTransactions(ctx, "DOLLARS"); !errors.Is(err, ErrInvalidCurrency) {
		t.Errorf("expected ErrInvalidCurrency, got %v", err)
	}
	if _, err := f.svc.PlatformActivity(ctx, "ZZZ"); !errors.Is(err, ErrInvalidCurrency) {
		t.Errorf("expected ErrInvalidCurrency, got %v", err)
	}
}
