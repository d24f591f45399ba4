package portfolio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/fx"
	"github.com/skintrack/tracker/internal/model"
	"github.com/skintrack/tracker/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ms  *store.MemoryStore
	svc *Service
	ak  *model.Item
	awp *model.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStore()
	ak, _, _ := ms.GetOrCreateItem(ctx, "AK-47 | Redline (Field-Tested)", "Field-Tested")
	awp, _, _ := ms.GetOrCreateItem(ctx, "AWP | Asiimov (Field-Tested)", "Field-Tested")
	return &fixture{
		ms:  ms,
		svc: NewService(ms, fx.Static{"CNY": d(7)}),
		ak:  ak,
		awp: awp,
	}
}

func (f *fixture) buy(t *testing.T, item *model.Item, day int, price float64) {
	t.Helper()
	p := &model.PurchaseEvent{
		ID: uuid.NewString(), UserID: "alice", ItemID: item.ID,
		Timestamp: t0.AddDate(0, 0, day), UnitPrice: d(price), Currency: model.BaseCurrency,
	}
	if err := f.ms.InsertPurchase(context.Background(), p); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) sell(t *testing.T, item *model.Item, day int, price, fee float64) {
	t.Helper()
	s := &model.SaleEvent{
		ID: uuid.NewString(), UserID: "alice", ItemID: item.ID,
		Timestamp: t0.AddDate(0, 0, day), UnitPrice: d(price), Fee: d(fee), Currency: model.BaseCurrency,
	}
	if err := f.ms.InsertSale(context.Background(), s); err != nil {
		t.Fatal(err)
	}
}

func TestComputeHoldings_MissingPrice(t *testing.T) {
	f := newFixture(t)
	for range 3 {
		f.buy(t, f.ak, 0, 10)
	}

	vals, err := f.svc.ComputeHoldings(context.Background(), "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(vals))
	}
	v := vals[0]
	if v.PriceKnown {
		t.Error("expected price_known=false")
	}
	if !v.UnrealizedPnL.Equal(d(-30)) {
		t.Errorf("expected unrealized -30, got %s", v.UnrealizedPnL)
	}
	if v.MarketName != f.ak.MarketName {
		t.Errorf("expected market name %q, got %q", f.ak.MarketName, v.MarketName)
	}
}

func TestComputeHoldings_UsesLatestSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.buy(t, f.ak, 0, 10)
	f.buy(t, f.ak, 0, 14)
	f.ms.InsertSnapshot(ctx, &model.MarketSnapshot{ID: "old", ItemID: f.ak.ID, PlatformID: 1, Price: d(9), CapturedAt: t0})
	f.ms.InsertSnapshot(ctx, &model.MarketSnapshot{ID: "new", ItemID: f.ak.ID, PlatformID: 1, Price: d(15), CapturedAt: t0.Add(time.Hour)})

	vals, err := f.svc.ComputeHoldings(ctx, "alice", "USD")
	if err != nil {
		t.Fatal(err)
	}
	v := vals[0]
	if !v.PriceKnown || !v.MarketPrice.Equal(d(15)) {
		t.Errorf("expected latest price 15, got %s known=%v", v.MarketPrice, v.PriceKnown)
	}
	if !v.CurrentMarketValue.Equal(d(30)) || !v.UnrealizedPnL.Equal(d(6)) {
		t.Errorf("expected value 30 / pnl 6, got %s / %s", v.CurrentMarketValue, v.UnrealizedPnL)
	}
}

func TestComputeHoldings_SoldOutExcluded(t *testing.T) {
	f := newFixture(t)
	f.buy(t, f.ak, 0, 10)
	f.buy(t, f.awp, 0, 50)
	f.sell(t, f.ak, 1, 12, 0)

	vals, err := f.svc.ComputeHoldings(context.Background(), "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 || vals[0].ItemID != f.awp.ID {
		t.Errorf("expected only AWP held, got %+v", vals)
	}
}

func TestComputeFinancialStats(t *testing.T) {
	f := newFixture(t)
	f.buy(t, f.ak, 0, 10)
	f.buy(t, f.awp, 1, 20)
	f.sell(t, f.ak, 2, 15, 0)
	f.sell(t, f.awp, 3, 16, 0)

	st, err := f.svc.ComputeFinancialStats(context.Background(), "alice", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if st.UserID != "alice" || st.Currency != "USD" {
		t.Errorf("unexpected header %s/%s", st.UserID, st.Currency)
	}
	if !st.TotalInvested.Equal(d(30)) || !st.TotalRevenue.Equal(d(31)) || !st.RealizedPnL.Equal(d(1)) {
		t.Errorf("unexpected totals invested=%s revenue=%s realized=%s", st.TotalInvested, st.TotalRevenue, st.RealizedPnL)
	}
	if st.TradeCount != 2 || !st.WinRate.Equal(d(50)) {
		t.Errorf("expected 2 trades at 50%% win rate, got %d / %s", st.TradeCount, st.WinRate)
	}
	if len(st.KlineData) != 4 {
		t.Errorf("expected 4 kline points, got %d", len(st.KlineData))
	}
}

func TestComputeFinancialStats_CurrencyScaling(t *testing.T) {
	f := newFixture(t)
	f.buy(t, f.ak, 0, 10)
	f.sell(t, f.ak, 1, 12.5, 0.5)
	ctx := context.Background()

	usd, err := f.svc.ComputeFinancialStats(ctx, "alice", "USD", "global")
	if err != nil {
		t.Fatal(err)
	}
	cny, err := f.svc.ComputeFinancialStats(ctx, "alice", "cny", "global")
	if err != nil {
		t.Fatal(err)
	}
	seven := d(7)
	if cny.Currency != "CNY" {
		t.Errorf("expected CNY, got %s", cny.Currency)
	}
	for name, pair := range map[string][2]decimal.Decimal{
		"invested": {usd.TotalInvested, cny.TotalInvested},
		"revenue":  {usd.TotalRevenue, cny.TotalRevenue},
		"realized": {usd.RealizedPnL, cny.RealizedPnL},
		"fees":     {usd.TotalFees, cny.TotalFees},
	} {
		if !pair[0].Mul(seven).Equal(pair[1]) {
			t.Errorf("%s: expected %s × 7, got %s", name, pair[0], pair[1])
		}
	}
	if !usd.ROIPercent.Equal(cny.ROIPercent) || !usd.WinRate.Equal(cny.WinRate) {
		t.Errorf("ratios must not scale: roi %s/%s win %s/%s", usd.ROIPercent, cny.ROIPercent, usd.WinRate, cny.WinRate)
	}
}

func TestComputeFinancialStats_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ComputeFinancialStats(ctx, "alice", "", "lifo"); !errors.Is(err, ErrInvalidMatching) {
		t.Errorf("expected ErrInvalidMatching, got %v", err)
	}
	if _, err := f.svc.ComputeFinancialStats(ctx, "alice", "DOLLARS", ""); !errors.Is(err, ErrInvalidCurrency) {
		t.Errorf("expected ErrInvalidCurrency, got %v", err)
	}
}

func TestComputeKline_Empty(t *testing.T) {
	f := newFixture(t)
	points, err := f.svc.ComputeKline(context.Background(), "nobody", "")
	if err != nil {
		t.Fatal(err)
	}
	if points == nil || len(points) != 0 {
		t.Errorf("expected empty non-nil series, got %v", points)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.buy(t, f.ak, 0, 10)
	f.buy(t, f.awp, 0, 40)
	f.ms.InsertSnapshot(ctx, &model.MarketSnapshot{ID: "s", ItemID: f.awp.ID, PlatformID: 1, Price: d(45), CapturedAt: t0})

	p, err := f.svc.Summary(ctx, "alice", "CNY")
	if err != nil {
		t.Fatal(err)
	}
	if p.Currency != "CNY" || len(p.Holdings) != 2 {
		t.Fatalf("unexpected summary %+v", p)
	}
	// AK: no price, -10. AWP: +5. Total -5 USD → -35 CNY.
	if !p.TotalUnrealizedPnL.Equal(d(-35)) {
		t.Errorf("expected total unrealized -35, got %s", p.TotalUnrealizedPnL)
	}
	if !p.TotalMarketValue.Equal(d(315)) {
		t.Errorf("expected total market value 315, got %s", p.TotalMarketValue)
	}
	if !p.Stats.TotalInvested.Equal(d(350)) {
		t.Errorf("expected invested 350, got %s", p.Stats.TotalInvested)
	}
	if !strings.Contains(p.TotalMarketValueDisplay, "315.00") || !strings.Contains(p.TotalUnrealizedPnLDisplay, "35.00") {
		t.Errorf("unexpected display totals %q / %q", p.TotalMarketValueDisplay, p.TotalUnrealizedPnLDisplay)
	}
}

func TestSummary_TotalsMatchRows(t *testing.T) {
	f := newFixture(t)
	f.svc = NewService(f.ms, fx.Static{"CNY": d(7.1234)})
	ctx := context.Background()
	f.buy(t, f.ak, 0, 1.01)
	f.buy(t, f.awp, 0, 2.02)
	f.ms.InsertSnapshot(ctx, &model.MarketSnapshot{ID: "a", ItemID: f.ak.ID, PlatformID: 1, Price: d(1.37), CapturedAt: t0})
	f.ms.InsertSnapshot(ctx, &model.MarketSnapshot{ID: "b", ItemID: f.awp.ID, PlatformID: 1, Price: d(2.11), CapturedAt: t0})

	p, err := f.svc.Summary(ctx, "alice", "CNY")
	if err != nil {
		t.Fatal(err)
	}
	var value, unrealized decimal.Decimal
	for _, h := range p.Holdings {
		if !h.UnrealizedPnL.Equal(h.CurrentMarketValue.Sub(h.TotalCostBasis)) {
			t.Errorf("item %d: unrealized %s != value %s - cost %s", h.ItemID, h.UnrealizedPnL, h.CurrentMarketValue, h.TotalCostBasis)
		}
		value = value.Add(h.CurrentMarketValue)
		unrealized = unrealized.Add(h.UnrealizedPnL)
	}
	if !p.TotalMarketValue.Equal(value) || !p.TotalUnrealizedPnL.Equal(unrealized) {
		t.Errorf("totals %s/%s do not match rows %s/%s", p.TotalMarketValue, p.TotalUnrealizedPnL, value, unrealized)
	}
}
