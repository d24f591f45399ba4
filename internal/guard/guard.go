// Package guard enforces ledger invariants before events are written: a sale
// needs a unit currently held, and optional caps bound how many units of one
// item, or of one weapon across all its skins, a user may accumulate.
//
// Items of the same weapon (every "AK-47 | ..." skin, any wear) move together
// when the weapon's market moves, so the weapon cap acts as a correlated
// exposure limit.
package guard

import (
	"errors"
)

var (
	// ErrNoHoldings is returned when a sale is attempted with nothing held.
	ErrNoHoldings = errors.New("guard: no units held to sell")

	// ErrPerItemLimitExceeded is returned when a purchase would push the
	// units held of one item beyond the per-item maximum.
	ErrPerItemLimitExceeded = errors.New("guard: per-item holding limit exceeded")

	// ErrWeaponLimitExceeded is returned when a purchase would push the units
	// held across all items of one weapon beyond the weapon maximum.
	ErrWeaponLimitExceeded = errors.New("guard: per-weapon holding limit exceeded")
)

// Limiter checks sales and purchases against current holdings.
// Zero limits mean unlimited.
type Limiter struct {
	// MaxPerItem is the maximum number of units held of a single item.
	MaxPerItem int64

	// MaxPerWeapon is the maximum number of units held across every item
	// sharing a weapon group.
	MaxPerWeapon int64
}

// NewLimiter creates a limiter. Negative limits are treated as unlimited.
func NewLimiter(maxPerItem, maxPerWeapon int64) *Limiter {
	return &Limiter{
		MaxPerItem:   max(maxPerItem, 0),
		MaxPerWeapon: max(maxPerWeapon, 0),
	}
}

// CheckSale rejects a sale unless at least one unit is currently held.
func (l *Limiter) CheckSale(held int64) error {
	if held <= 0 {
		return ErrNoHoldings
	}
	return nil
}

// CheckPurchase validates buying one more unit.
//
// Parameters:
//   - targetGroup: weapon group of the item being bought
//   - heldItem: units of the item currently held
//   - heldByGroup: weapon group → units currently held, for this user
func (l *Limiter) CheckPurchase(targetGroup string, heldItem int64, heldByGroup map[string]int64) error {
	if l.MaxPerItem > 0 && heldItem+1 > l.MaxPerItem {
		return ErrPerItemLimitExceeded
	}
	if l.MaxPerWeapon > 0 && heldByGroup[targetGroup]+1 > l.MaxPerWeapon {
		return ErrWeaponLimitExceeded
	}
	return nil
}
