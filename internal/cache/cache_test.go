package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemory_GetPut(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryWithClock(clk.Now)

	if _, ok := m.Get(ctx, "fx:CNY"); ok {
		t.Fatal("expected miss on empty cache")
	}

	m.Put(ctx, "fx:CNY", "7.24", time.Hour)
	v, ok := m.Get(ctx, "fx:CNY")
	if !ok || v != "7.24" {
		t.Fatalf("expected hit 7.24, got %q %v", v, ok)
	}

	clk.Advance(59 * time.Minute)
	if _, ok := m.Get(ctx, "fx:CNY"); !ok {
		t.Error("entry should still be live before ttl")
	}

	clk.Advance(time.Minute)
	if _, ok := m.Get(ctx, "fx:CNY"); ok {
		t.Error("entry should expire at ttl")
	}
}

func TestMemory_NoExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Now()}
	m := NewMemoryWithClock(clk.Now)

	m.Put(ctx, "k", "v", 0)
	clk.Advance(1000 * time.Hour)
	if v, ok := m.Get(ctx, "k"); !ok || v != "v" {
		t.Errorf("zero ttl should never expire, got %q %v", v, ok)
	}
}

func TestMemory_Overwrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Put(ctx, "k", "1", time.Minute)
	m.Put(ctx, "k", "2", time.Minute)
	if v, _ := m.Get(ctx, "k"); v != "2" {
		t.Errorf("expected overwritten value 2, got %q", v)
	}
}
