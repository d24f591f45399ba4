package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for items and latest prices. Writes go to the primary store and
// invalidate the cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	Store
	rdb redis.Cmdable
	ttl time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store. Methods
// not overridden here pass straight through to primary.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: primary,
		rdb:   rdb,
		ttl:   ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertSnapshot(ctx context.Context, snap *model.MarketSnapshot) error {
	if err := s.Store.InsertSnapshot(ctx, snap); err != nil {
		return err
	}
	s.rdb.Del(ctx, priceKey(snap.ItemID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	data, err := s.rdb.Get(ctx, itemKey(id)).Bytes()
	if err == nil {
		var it model.Item
		if json.Unmarshal(data, &it) == nil {
			return &it, nil
		}
	}

	it, err := s.Store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(it); err == nil {
		s.rdb.Set(ctx, itemKey(id), data, s.ttl)
	}
	return it, nil
}

// LatestPrices serves cached prices and asks the primary only for misses.
// Items known to have no snapshot are not cached, so a first snapshot is
// picked up without waiting for expiry.
func (s *CachedStore) LatestPrices(ctx context.Context, itemIDs []int64) (map[int64]decimal.Decimal, error) {
	prices := make(map[int64]decimal.Decimal, len(itemIDs))
	if len(itemIDs) == 0 {
		return prices, nil
	}

	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = priceKey(id)
	}

	var missing []int64
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		missing = itemIDs
	} else {
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				missing = append(missing, itemIDs[i])
				continue
			}
			p, err := decimal.NewFromString(str)
			if err != nil {
				missing = append(missing, itemIDs[i])
				continue
			}
			prices[itemIDs[i]] = p
		}
	}
	if len(missing) == 0 {
		return prices, nil
	}

	fresh, err := s.Store.LatestPrices(ctx, missing)
	if err != nil {
		return nil, err
	}
	pipe := s.rdb.Pipeline()
	for id, p := range fresh {
		prices[id] = p
		pipe.Set(ctx, priceKey(id), p.String(), s.ttl)
	}
	pipe.Exec(ctx)
	return prices, nil
}

// --- Cache helpers ---

func itemKey(id int64) string  { return fmt.Sprintf("item:%d", id) }
func priceKey(id int64) string { return fmt.Sprintf("price:%d", id) }
