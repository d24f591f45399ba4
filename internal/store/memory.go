package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/item"
	"github.com/skintrack/tracker/internal/model"
	"github.com/skintrack/tracker/internal/pnl"
)

// MemoryStore implements Store with in-memory slices and maps. Used for
// testing and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]model.User
	platforms []model.Platform
	items     map[int64]model.Item
	nextItem  int64
	seq       int64
	purchases []model.PurchaseEvent
	sales     []model.SaleEvent
	snapshots map[int64][]model.MarketSnapshot
}

// NewMemoryStore creates a new in-memory store seeded with DefaultPlatforms.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]model.User),
		platforms: slices.Clone(DefaultPlatforms),
		items:     make(map[int64]model.Item),
		snapshots: make(map[int64][]model.MarketSnapshot),
	}
}

// --- Catalog ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("%w: user %s", ErrConflict, u.ID)
	}
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b model.User) int { return cmp.Compare(a.ID, b.ID) })
	return users, nil
}

func (s *MemoryStore) ListPlatforms(_ context.Context) ([]model.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	platforms := slices.Clone(s.platforms)
	slices.SortFunc(platforms, func(a, b model.Platform) int { return cmp.Compare(a.Name, b.Name) })
	return platforms, nil
}

func (s *MemoryStore) GetOrCreateItem(_ context.Context, marketName, exterior string) (*model.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.items {
		if it.MarketName == marketName && it.Exterior == exterior {
			copy := it
			return &copy, false, nil
		}
	}

	s.nextItem++
	it := model.Item{
		ID:         s.nextItem,
		MarketName: marketName,
		Game:       item.Game,
		Exterior:   exterior,
	}
	s.items[it.ID] = it
	return &it, true, nil
}

func (s *MemoryStore) GetItem(_ context.Context, id int64) (*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	return &it, nil
}

func (s *MemoryStore) ListItems(_ context.Context) ([]model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.Item, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, it)
	}
	slices.SortFunc(items, func(a, b model.Item) int {
		if c := cmp.Compare(a.MarketName, b.MarketName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return items, nil
}

// --- Ledger ---

func (s *MemoryStore) InsertPurchase(_ context.Context, p *model.PurchaseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	p.Seq = s.seq
	s.purchases = append(s.purchases, *p)
	return nil
}

// InsertSale checks holdings and appends under a single lock.
func (s *MemoryStore) InsertSale(_ context.Context, sale *model.SaleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heldLocked(sale.UserID, sale.ItemID) <= 0 {
		return ErrInsufficientHoldings
	}
	s.seq++
	sale.Seq = s.seq
	s.sales = append(s.sales, *sale)
	return nil
}

// heldLocked counts units held. Caller must hold s.mu.
func (s *MemoryStore) heldLocked(userID string, itemID int64) int64 {
	var held int64
	for _, p := range s.purchases {
		if p.UserID == userID && p.ItemID == itemID {
			held++
		}
	}
	for _, e := range s.sales {
		if e.UserID == userID && e.ItemID == itemID {
			held--
		}
	}
	return held
}

func (s *MemoryStore) DeletePurchase(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.purchases, func(p model.PurchaseEvent) bool {
		return p.ID == id && p.UserID == userID
	})
	if i < 0 {
		return fmt.Errorf("%w: purchase %s", ErrNotFound, id)
	}
	s.purchases = slices.Delete(s.purchases, i, i+1)
	return nil
}

func (s *MemoryStore) DeleteSale(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.sales, func(e model.SaleEvent) bool {
		return e.ID == id && e.UserID == userID
	})
	if i < 0 {
		return fmt.Errorf("%w: sale %s", ErrNotFound, id)
	}
	s.sales = slices.Delete(s.sales, i, i+1)
	return nil
}

func comparePurchases(a, b model.PurchaseEvent) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

func compareSales(a, b model.SaleEvent) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

func (s *MemoryStore) ListPurchases(_ context.Context, userID string) ([]model.PurchaseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PurchaseEvent
	for _, p := range s.purchases {
		if p.UserID == userID {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, comparePurchases)
	return result, nil
}

func (s *MemoryStore) ListSales(_ context.Context, userID string) ([]model.SaleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SaleEvent
	for _, e := range s.sales {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, compareSales)
	return result, nil
}

func (s *MemoryStore) ListItemPurchases(_ context.Context, itemID int64) ([]model.PurchaseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PurchaseEvent
	for _, p := range s.purchases {
		if p.ItemID == itemID {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b model.PurchaseEvent) int { return comparePurchases(b, a) })
	return result, nil
}

func (s *MemoryStore) ListItemSales(_ context.Context, itemID int64) ([]model.SaleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SaleEvent
	for _, e := range s.sales {
		if e.ItemID == itemID {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, func(a, b model.SaleEvent) int { return compareSales(b, a) })
	return result, nil
}

func (s *MemoryStore) ListPurchasesSince(_ context.Context, since time.Time) ([]model.PurchaseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PurchaseEvent
	for _, p := range s.purchases {
		if !p.Timestamp.Before(since) {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, comparePurchases)
	return result, nil
}

func (s *MemoryStore) ListSalesSince(_ context.Context, since time.Time) ([]model.SaleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SaleEvent
	for _, e := range s.sales {
		if !e.Timestamp.Before(since) {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, compareSales)
	return result, nil
}

// --- Market snapshots ---

func (s *MemoryStore) InsertSnapshot(_ context.Context, snap *model.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snap.ItemID] = append(s.snapshots[snap.ItemID], *snap)
	return nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, itemID int64) ([]model.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.snapshots[itemID])
	slices.SortStableFunc(result, func(a, b model.MarketSnapshot) int {
		return b.CapturedAt.Compare(a.CapturedAt)
	})
	return result, nil
}

// LatestPrices applies pnl.LatestSnapshot per item (single lock).
func (s *MemoryStore) LatestPrices(_ context.Context, itemIDs []int64) (map[int64]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prices := make(map[int64]decimal.Decimal, len(itemIDs))
	for _, id := range itemIDs {
		if snap, ok := pnl.LatestSnapshot(s.snapshots[id]); ok {
			prices[id] = snap.Price
		}
	}
	return prices, nil
}

func (s *MemoryStore) MarkPrices(_ context.Context) (map[int64]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	marks := make(map[int64]decimal.Decimal, len(s.snapshots))
	for id, snaps := range s.snapshots {
		if price, ok := pnl.MarkPrice(snaps); ok {
			marks[id] = price
		}
	}
	return marks, nil
}
