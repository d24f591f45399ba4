package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/skintrack/tracker/internal/metrics"
	"github.com/skintrack/tracker/internal/model"
	"github.com/skintrack/tracker/internal/pnl"
)

// directory resolves IDs to display names for the activity views.
type directory struct {
	users     map[string]string
	items     map[int64]string
	platforms map[int64]string
}

func (s *Service) directory(ctx context.Context) (directory, error) {
	var (
		dir       directory
		users     []model.User
		items     []model.Item
		platforms []model.Platform
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { users, err = s.store.ListUsers(gctx); return })
	g.Go(func() (err error) { items, err = s.store.ListItems(gctx); return })
	g.Go(func() (err error) { platforms, err = s.store.ListPlatforms(gctx); return })
	if err := g.Wait(); err != nil {
		return directory{}, fmt.Errorf("load names: %w", err)
	}

	dir.users = make(map[string]string, len(users))
	for _, u := range users {
		dir.users[u.ID] = u.DisplayName
	}
	dir.items = make(map[int64]string, len(items))
	for _, it := range items {
		dir.items[it.ID] = it.MarketName
	}
	dir.platforms = make(map[int64]string, len(platforms))
	for _, p := range platforms {
		dir.platforms[p.ID] = p.Name
	}
	return dir, nil
}

// RecentTransactions returns up to pnl.RecentLimit purchases and sales from
// the last pnl.RecentDays days across all users, newest first.
func (s *Service) RecentTransactions(ctx context.Context, currency string) ([]model.Transaction, error) {
	defer metrics.Since(metrics.PortfolioLatency, "recent_transactions", time.Now())

	conv, err := s.converter(ctx, currency)
	if err != nil {
		return nil, err
	}
	return s.recentTransactions(ctx, conv)
}

func (s *Service) recentTransactions(ctx context.Context, conv pnl.Converter) ([]model.Transaction, error) {
	since := pnl.WindowStart(s.now(), pnl.RecentDays)

	var (
		purchases []model.PurchaseEvent
		sales     []model.SaleEvent
		dir       directory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { purchases, err = s.store.ListPurchasesSince(gctx, since); return })
	g.Go(func() (err error) { sales, err = s.store.ListSalesSince(gctx, since); return })
	g.Go(func() (err error) { dir, err = s.directory(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}

	feed := pnl.RecentTransactions(purchases, sales, pnl.RecentLimit)
	for i := range feed {
		feed[i].DisplayName = dir.users[feed[i].UserID]
		feed[i].MarketName = dir.items[feed[i].ItemID]
		feed[i].PlatformName = dir.platforms[feed[i].PlatformID]
		feed[i].Price = conv.Amount(feed[i].Price)
	}
	return feed, nil
}

// MarketValueRanking ranks users holding at least pnl.MinDistinctItems
// priced items by estimated collection value.
func (s *Service) MarketValueRanking(ctx context.Context, currency string) ([]model.MarketValueRank, error) {
	defer metrics.Since(metrics.PortfolioLatency, "market_value_ranking", time.Now())

	conv, err := s.converter(ctx, currency)
	if err != nil {
		return nil, err
	}
	return s.marketValueRanking(ctx, conv)
}

func (s *Service) marketValueRanking(ctx context.Context, conv pnl.Converter) ([]model.MarketValueRank, error) {
	var (
		purchases []model.PurchaseEvent
		marks     map[int64]decimal.Decimal
		dir       directory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { purchases, err = s.store.ListPurchasesSince(gctx, time.Time{}); return })
	g.Go(func() (err error) { marks, err = s.store.MarkPrices(gctx); return })
	g.Go(func() (err error) { dir, err = s.directory(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("market value ranking: %w", err)
	}

	ranks := pnl.RankByMarketValue(purchases, marks, pnl.MinDistinctItems)
	for i := range ranks {
		ranks[i].DisplayName = dir.users[ranks[i].UserID]
		ranks[i].EstMarketValue = conv.Amount(ranks[i].EstMarketValue)
		ranks[i].AvgCost = conv.Amount(ranks[i].AvgCost)
	}
	return ranks, nil
}

// PlatformActivity summarises sales per platform over the last
// pnl.PlatformDays days.
func (s *Service) PlatformActivity(ctx context.Context, currency string) ([]model.PlatformSales, error) {
	defer metrics.Since(metrics.PortfolioLatency, "platform_activity", time.Now())

	conv, err := s.converter(ctx, currency)
	if err != nil {
		return nil, err
	}
	return s.platformActivity(ctx, conv)
}

func (s *Service) platformActivity(ctx context.Context, conv pnl.Converter) ([]model.PlatformSales, error) {
	since := pnl.WindowStart(s.now(), pnl.PlatformDays)

	var (
		sales     []model.SaleEvent
		platforms []model.Platform
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { sales, err = s.store.ListSalesSince(gctx, since); return })
	g.Go(func() (err error) { platforms, err = s.store.ListPlatforms(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("platform activity: %w", err)
	}

	names := make(map[int64]string, len(platforms))
	for _, p := range platforms {
		names[p.ID] = p.Name
	}
	stats := pnl.SummarizePlatformSales(sales)
	for i := range stats {
		stats[i].PlatformName = names[stats[i].PlatformID]
		stats[i].AvgSalePrice = conv.Amount(stats[i].AvgSalePrice)
	}
	return stats, nil
}

// Dashboard builds all three activity views concurrently.
func (s *Service) Dashboard(ctx context.Context, currency string) (*model.Dashboard, error) {
	defer metrics.Since(metrics.PortfolioLatency, "dashboard", time.Now())

	conv, err := s.converter(ctx, currency)
	if err != nil {
		return nil, err
	}
	dash := &model.Dashboard{Currency: conv.Currency}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { dash.Transactions, err = s.recentTransactions(gctx, conv); return })
	g.Go(func() (err error) { dash.Portfolios, err = s.marketValueRanking(gctx, conv); return })
	g.Go(func() (err error) { dash.Platforms, err = s.platformActivity(gctx, conv); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dash, nil
}
