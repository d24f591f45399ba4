// Package model defines the core domain types shared across the tracker.
// All monetary values use shopspring/decimal, never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency every stored price is expressed in.
const BaseCurrency = "USD"

// Item is a tradable CS2 item, identified by market name and exterior.
type Item struct {
	ID         int64  `json:"item_id" db:"item_id"`
	MarketName string `json:"market_name" db:"market_name"`
	Game       string `json:"game" db:"game"`
	Rarity     string `json:"rarity,omitempty" db:"rarity"`
	Exterior   string `json:"exterior,omitempty" db:"exterior"`
}

// Platform is a marketplace where items are bought, sold or priced.
type Platform struct {
	ID   int64  `json:"platform_id" db:"platform_id"`
	Name string `json:"platform_name" db:"platform_name"`
}

// User is the identity record a ledger belongs to.
type User struct {
	ID          string    `json:"user_id" db:"user_id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PurchaseEvent records one unit of an item bought by a user.
// Ordered by Timestamp, ties broken by Seq (insertion order).
type PurchaseEvent struct {
	ID         string          `json:"id" db:"id"`
	Seq        int64           `json:"seq" db:"seq"`
	UserID     string          `json:"user_id" db:"user_id"`
	ItemID     int64           `json:"item_id" db:"item_id"`
	PlatformID int64           `json:"platform_id" db:"platform_id"`
	Timestamp  time.Time       `json:"ts" db:"ts"`
	UnitPrice  decimal.Decimal `json:"price" db:"price"`
	Currency   string          `json:"currency" db:"currency"`
}

// SaleEvent records one unit of an item sold by a user.
type SaleEvent struct {
	ID         string          `json:"id" db:"id"`
	Seq        int64           `json:"seq" db:"seq"`
	UserID     string          `json:"user_id" db:"user_id"`
	ItemID     int64           `json:"item_id" db:"item_id"`
	PlatformID int64           `json:"platform_id" db:"platform_id"`
	Timestamp  time.Time       `json:"ts" db:"ts"`
	UnitPrice  decimal.Decimal `json:"price" db:"price"`
	Fee        decimal.Decimal `json:"fee" db:"fee"`
	Currency   string          `json:"currency" db:"currency"`
}

// Net is the sale proceeds after the platform fee.
func (s SaleEvent) Net() decimal.Decimal {
	return s.UnitPrice.Sub(s.Fee)
}

// MarketSnapshot is an append-only observation of an item's market price.
type MarketSnapshot struct {
	ID         string          `json:"id" db:"id"`
	ItemID     int64           `json:"item_id" db:"item_id"`
	PlatformID int64           `json:"platform_id" db:"platform_id"`
	Price      decimal.Decimal `json:"price" db:"price"`
	Currency   string          `json:"currency" db:"currency"`
	CapturedAt time.Time       `json:"captured_at" db:"captured_at"`
}

// Holding is a user's net position in one item. Derived, never stored.
type Holding struct {
	UserID         string          `json:"user_id"`
	ItemID         int64           `json:"item_id"`
	QuantityBought int64           `json:"quantity_bought"`
	QuantitySold   int64           `json:"quantity_sold"`
	QuantityHeld   int64           `json:"quantity_held"`
	AvgBuyCost     decimal.Decimal `json:"avg_buy_cost"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis"`
}

// Valuation is a holding marked to the latest known market price.
type Valuation struct {
	Holding
	MarketName         string          `json:"market_name,omitempty"`
	MarketPrice        decimal.Decimal `json:"market_price"`
	PriceKnown         bool            `json:"price_known"`
	CurrentMarketValue decimal.Decimal `json:"current_market_value"`
	UnrealizedPnL      decimal.Decimal `json:"unrealized_pnl"`
}

// Trade is one sale paired with one purchase by FIFO matching.
type Trade struct {
	Sale     SaleEvent       `json:"sale"`
	Purchase PurchaseEvent   `json:"purchase"`
	PnL      decimal.Decimal `json:"pnl"`
}

// KlinePoint is one day of the cumulative invested/revenue series.
type KlinePoint struct {
	Date     string          `json:"date"` // YYYY-MM-DD, UTC
	Invested decimal.Decimal `json:"invested"`
	Revenue  decimal.Decimal `json:"revenue"`
	PnL      decimal.Decimal `json:"pnl"`
}

// FinancialStats summarises a user's realized trading performance.
type FinancialStats struct {
	UserID         string          `json:"user_id"`
	Currency       string          `json:"currency"`
	TotalInvested  decimal.Decimal `json:"total_invested"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalFees      decimal.Decimal `json:"total_fees"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	ROIPercent     decimal.Decimal `json:"roi_percent"`
	WinRate        decimal.Decimal `json:"win_rate"`
	AvgTradePnL    decimal.Decimal `json:"avg_trade_pnl"`
	TradeCount     int             `json:"trade_count"`
	UnmatchedSales int             `json:"unmatched_sales"`
	KlineData      []KlinePoint    `json:"kline_data"`
}

// Portfolio aggregates current holdings with realized statistics.
type Portfolio struct {
	UserID             string          `json:"user_id"`
	Currency           string          `json:"currency"`
	Holdings           []Valuation     `json:"holdings"`
	TotalMarketValue   decimal.Decimal `json:"total_market_value"`
	TotalUnrealizedPnL decimal.Decimal `json:"total_unrealized_pnl"`
	// Display strings for the totals, formatted for Currency.
	TotalMarketValueDisplay   string         `json:"total_market_value_display"`
	TotalUnrealizedPnLDisplay string         `json:"total_unrealized_pnl_display"`
	Stats                     FinancialStats `json:"stats"`
}

// Transaction sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Transaction is one purchase or sale in the cross-user activity feed.
type Transaction struct {
	ID           string          `json:"id"`
	Seq          int64           `json:"seq"`
	Side         string          `json:"side"`
	UserID       string          `json:"user_id"`
	DisplayName  string          `json:"display_name"`
	ItemID       int64           `json:"item_id"`
	MarketName   string          `json:"market_name"`
	PlatformID   int64           `json:"platform_id"`
	PlatformName string          `json:"platform_name"`
	Timestamp    time.Time       `json:"ts"`
	Price        decimal.Decimal `json:"price"`
}

// MarketValueRank estimates one user's collection value. Each distinct item
// the user ever bought counts once at its mark price.
type MarketValueRank struct {
	UserID         string          `json:"user_id"`
	DisplayName    string          `json:"display_name"`
	EstMarketValue decimal.Decimal `json:"est_market_value"`
	AvgCost        decimal.Decimal `json:"avg_cost_across_items"`
	DistinctItems  int             `json:"distinct_items"`
}

// PlatformSales summarises recent sales on one platform.
type PlatformSales struct {
	PlatformID   int64           `json:"platform_id"`
	PlatformName string          `json:"platform_name"`
	SaleCount    int             `json:"n_sales"`
	AvgSalePrice decimal.Decimal `json:"avg_sale_price"`
}

// Dashboard bundles the three cross-user activity views.
type Dashboard struct {
	Currency     string            `json:"currency"`
	Transactions []Transaction     `json:"transactions"`
	Portfolios   []MarketValueRank `json:"portfolios"`
	Platforms    []PlatformSales   `json:"platforms"`
}
