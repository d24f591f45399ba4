package guard

import (
	"testing"
)

func TestCheckSale(t *testing.T) {
	l := NewLimiter(0, 0)

	tests := []struct {
		held int64
		want error
	}{
		{0, ErrNoHoldings},
		{-1, ErrNoHoldings},
		{1, nil},
		{5, nil},
	}
	for _, tt := range tests {
		if err := l.CheckSale(tt.held); err != tt.want {
			t.Errorf("held=%d: expected %v, got %v", tt.held, tt.want, err)
		}
	}
}

func TestCheckPurchase_Unlimited(t *testing.T) {
	l := NewLimiter(0, 0)

	err := l.CheckPurchase("AK-47", 10000, map[string]int64{"AK-47": 10000})
	if err != nil {
		t.Errorf("expected no error with zero limits, got %v", err)
	}
}

func TestCheckPurchase_PerItem(t *testing.T) {
	l := NewLimiter(3, 0)

	if err := l.CheckPurchase("AK-47", 2, nil); err != nil {
		t.Errorf("buying the 3rd unit should be allowed, got %v", err)
	}
	if err := l.CheckPurchase("AK-47", 3, nil); err != ErrPerItemLimitExceeded {
		t.Errorf("expected ErrPerItemLimitExceeded, got %v", err)
	}
}

func TestCheckPurchase_PerWeapon(t *testing.T) {
	l := NewLimiter(10, 5)

	held := map[string]int64{
		"AK-47": 4, // e.g. 2x Redline + 2x Vulcan
		"AWP":   5,
	}
	if err := l.CheckPurchase("AK-47", 0, held); err != nil {
		t.Errorf("5th AK-47 unit should be allowed, got %v", err)
	}
	if err := l.CheckPurchase("AWP", 0, held); err != ErrWeaponLimitExceeded {
		t.Errorf("expected ErrWeaponLimitExceeded, got %v", err)
	}
	if err := l.CheckPurchase("M4A1-S", 0, held); err != nil {
		t.Errorf("unrelated weapon should be allowed, got %v", err)
	}
}

func TestNewLimiter_NegativeIsUnlimited(t *testing.T) {
	l := NewLimiter(-1, -5)
	if l.MaxPerItem != 0 || l.MaxPerWeapon != 0 {
		t.Errorf("expected limits clamped to 0, got %d/%d", l.MaxPerItem, l.MaxPerWeapon)
	}
}
