// Package portfolio loads a user's ledger from the store and runs the pnl
// core over it: holdings marked to market, realized statistics and the
// cumulative daily series, each converted to the requested display currency.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/skintrack/tracker/internal/fx"
	"github.com/skintrack/tracker/internal/metrics"
	"github.com/skintrack/tracker/internal/model"
	"github.com/skintrack/tracker/internal/pnl"
	"github.com/skintrack/tracker/internal/store"
)

var (
	// ErrInvalidCurrency is returned for currency codes that are not ISO 4217.
	ErrInvalidCurrency = errors.New("portfolio: unsupported currency")

	// ErrInvalidMatching is returned for an unknown matching policy.
	ErrInvalidMatching = errors.New("portfolio: unknown matching policy")
)

// itemLookups bounds concurrent item reads when naming holdings.
const itemLookups = 8

// Service computes portfolio views. Safe for concurrent use.
type Service struct {
	store store.Store
	rates fx.Rates
	now   func() time.Time
}

// NewService creates a portfolio service.
func NewService(st store.Store, rates fx.Rates) *Service {
	return &Service{store: st, rates: rates, now: time.Now}
}

type ledger struct {
	purchases []model.PurchaseEvent
	sales     []model.SaleEvent
}

// load reads purchases and sales concurrently.
func (s *Service) load(ctx context.Context, userID string) (ledger, error) {
	var l ledger
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		l.purchases, err = s.store.ListPurchases(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		l.sales, err = s.store.ListSales(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return ledger{}, fmt.Errorf("load ledger %s: %w", userID, err)
	}
	return l, nil
}

// converter validates currency and resolves its rate. Empty means USD.
func (s *Service) converter(ctx context.Context, currency string) (pnl.Converter, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == model.BaseCurrency {
		return pnl.NewConverter(model.BaseCurrency, decimal.NewFromInt(1)), nil
	}
	if len(currency) != 3 || money.GetCurrency(currency) == nil {
		return pnl.Converter{}, fmt.Errorf("%w: %s", ErrInvalidCurrency, currency)
	}
	return pnl.NewConverter(currency, s.rates.Rate(ctx, currency)), nil
}

// ValidateMatching reports whether policy names a matching policy. Empty
// selects the global policy.
func ValidateMatching(policy string) error {
	switch policy {
	case "", pnl.MatchGlobal, pnl.MatchPerItem:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidMatching, policy)
}

// ComputeHoldings returns the items the user currently holds, valued at the
// latest known market price.
func (s *Service) ComputeHoldings(ctx context.Context, userID, currency string) ([]model.Valuation, error) {
	defer metrics.Since(metrics.PortfolioLatency, "holdings", time.Now())

	conv, err := s.converter(ctx, currency)
	if err != nil {
		return nil, err
	}
	l, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	vals, err := s.value(ctx, l)
	if err != nil {
		return nil, err
	}
	for i := range vals {
		vals[i] = conv.Valuation(vals[i])
	}
	return vals, nil
}

// value marks current holdings to market and attaches item names.
func (s *Service) value(ctx context.Context, l ledger) ([]model.Valuation, error) {
	held := pnl.CurrentHoldings(pnl.ComputeHoldings(l.purchases, l.sales))
	ids := make([]int64, len(held))
	for i, h := range held {
		ids[i] = h.ItemID
	}

	prices, err := s.store.LatestPrices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("latest prices: %w", err)
	}
	vals := pnl.ValueHoldings(held, func(itemID int64) (decimal.Decimal, bool) {
		p, ok := prices[itemID]
		return p, ok
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(itemLookups)
	for i := range vals {
		g.Go(func() error {
			it, err := s.store.GetItem(gctx, vals[i].ItemID)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			vals[i].MarketName = it.MarketName
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("item names: %w", err)
	}
	return vals, nil
}

// ComputeFinancialStats returns realized statistics. matching selects the
// FIFO policy; empty means global.
func (s *Service) ComputeFinancialStats(ctx context.Context, userID, currency, matching string) (model.FinancialStats, error) {
	defer metrics.Since(metrics.PortfolioLatency, "stats", time.Now())

	if err := ValidateMatching(matching); err != nil {
		return model.FinancialStats{}, err
	}
	conv, err := s.converter(ctx, currency)
	if err != nil {
		return model.FinancialStats{}, err
	}
	l, err := s.load(ctx, userID)
	if err != nil {
		return model.FinancialStats{}, err
	}
	return conv.Stats(stats(userID, l, matching)), nil
}

func stats(userID string, l ledger, matching string) model.FinancialStats {
	st := pnl.ComputeStats(l.purchases, l.sales, pnl.Match(matching, l.purchases, l.sales))
	st.UserID = userID
	return st
}

// ComputeKline returns the cumulative daily invested/revenue series.
func (s *Service) ComputeKline(ctx context.Context, userID, currency string) ([]model.KlinePoint, error) {
	defer metrics.Since(metrics.PortfolioLatency, "kline", time.Now())

	conv, err := s.converter(ctx, currency)
	if err != nil {
		return nil, err
	}
	l, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return conv.Kline(pnl.ComputeKline(l.purchases, l.sales)), nil
}

// Summary combines holdings, their totals and global-FIFO statistics from a
// single ledger read.
func (s *Service) Summary(ctx context.Context, userID, currency string) (*model.Portfolio, error) {
	defer metrics.Since(metrics.PortfolioLatency, "summary", time.Now())

	conv, err := s.converter(ctx, currency)
	if err != nil {
		return nil, err
	}
	l, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	vals, err := s.value(ctx, l)
	if err != nil {
		return nil, err
	}

	for i := range vals {
		vals[i] = conv.Valuation(vals[i])
	}
	// Totals sum the converted rows so they agree with what is listed.
	marketValue, unrealized := pnl.Totals(vals)
	return &model.Portfolio{
		UserID:                    userID,
		Currency:                  conv.Currency,
		Holdings:                  vals,
		TotalMarketValue:          marketValue,
		TotalUnrealizedPnL:        unrealized,
		TotalMarketValueDisplay:   conv.Format(marketValue),
		TotalUnrealizedPnLDisplay: conv.Format(unrealized),
		Stats:                     conv.Stats(stats(userID, l, pnl.MatchGlobal)),
	}, nil
}
