// Package store defines the persistence interface for the tracker.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache for latest prices), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a record with the same key already exists.
	ErrConflict = errors.New("store: already exists")

	// ErrInsufficientHoldings is returned by InsertSale when the user holds
	// no unit of the item at insertion time.
	ErrInsufficientHoldings = errors.New("store: no units held to sell")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache for latest prices.
type Store interface {
	// --- Catalog ---

	// CreateUser persists a new user.
	CreateUser(ctx context.Context, user *model.User) error

	// ListUsers returns all users ordered by ID.
	ListUsers(ctx context.Context) ([]model.User, error)

	// ListPlatforms returns all platforms ordered by name.
	ListPlatforms(ctx context.Context) ([]model.Platform, error)

	// GetOrCreateItem returns the item with the given market name and
	// exterior, creating it if needed. created reports which happened.
	GetOrCreateItem(ctx context.Context, marketName, exterior string) (item *model.Item, created bool, err error)

	// GetItem retrieves an item by ID.
	GetItem(ctx context.Context, id int64) (*model.Item, error)

	// ListItems returns all items ordered by market name.
	ListItems(ctx context.Context) ([]model.Item, error)

	// --- Ledger ---

	// InsertPurchase appends a purchase and assigns its Seq.
	InsertPurchase(ctx context.Context, p *model.PurchaseEvent) error

	// InsertSale appends a sale and assigns its Seq. It fails with
	// ErrInsufficientHoldings, atomically with the insert, when the user
	// holds no unit of the item.
	InsertSale(ctx context.Context, s *model.SaleEvent) error

	// DeletePurchase removes a purchase owned by userID.
	DeletePurchase(ctx context.Context, userID, id string) error

	// DeleteSale removes a sale owned by userID.
	DeleteSale(ctx context.Context, userID, id string) error

	// ListPurchases returns a user's purchases, oldest first (ts, seq).
	ListPurchases(ctx context.Context, userID string) ([]model.PurchaseEvent, error)

	// ListSales returns a user's sales, oldest first (ts, seq).
	ListSales(ctx context.Context, userID string) ([]model.SaleEvent, error)

	// ListItemPurchases returns every user's purchases of an item, newest first.
	ListItemPurchases(ctx context.Context, itemID int64) ([]model.PurchaseEvent, error)

	// ListItemSales returns every user's sales of an item, newest first.
	ListItemSales(ctx context.Context, itemID int64) ([]model.SaleEvent, error)

	// ListPurchasesSince returns every user's purchases with ts >= since,
	// oldest first (ts, seq).
	ListPurchasesSince(ctx context.Context, since time.Time) ([]model.PurchaseEvent, error)

	// ListSalesSince returns every user's sales with ts >= since, oldest
	// first (ts, seq).
	ListSalesSince(ctx context.Context, since time.Time) ([]model.SaleEvent, error)

	// --- Market snapshots ---

	// InsertSnapshot appends a market price observation.
	InsertSnapshot(ctx context.Context, snap *model.MarketSnapshot) error

	// ListSnapshots returns an item's snapshots, newest first.
	ListSnapshots(ctx context.Context, itemID int64) ([]model.MarketSnapshot, error)

	// LatestPrices returns the current market price of each item that has at
	// least one snapshot. Items without snapshots are absent from the map.
	LatestPrices(ctx context.Context, itemIDs []int64) (map[int64]decimal.Decimal, error)

	// MarkPrices returns, for every item with snapshots, the highest of the
	// latest prices seen on each platform.
	MarkPrices(ctx context.Context) (map[int64]decimal.Decimal, error)
}

// DefaultPlatforms seeds the platform table. Snapshots written by the
// refresher use SteamPlatformID.
var DefaultPlatforms = []model.Platform{
	{ID: 1, Name: "Steam"},
	{ID: 2, Name: "BUFF163"},
	{ID: 3, Name: "Skinport"},
	{ID: 4, Name: "CSFloat"},
}

// SteamPlatformID is the platform the price refresher records snapshots for.
const SteamPlatformID int64 = 1
