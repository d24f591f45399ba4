package fx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/cache"
	"github.com/skintrack/tracker/internal/fx"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newFrankfurter(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("from") != "USD" {
			t.Errorf("expected from=USD, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("to") {
		case "CNY":
			w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2025-06-01","rates":{"CNY":7.24}}`))
		case "EUR":
			w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2025-06-01","rates":{"EUR":0.92}}`))
		case "XXX":
			w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2025-06-01","rates":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRate_FetchAndCache(t *testing.T) {
	var calls atomic.Int32
	srv := newFrankfurter(t, &calls)
	c := fx.NewClient(srv.URL, srv.Client(), cache.NewMemory(), 0)
	ctx := context.Background()

	if r := c.Rate(ctx, "cny"); !r.Equal(d(7.24)) {
		t.Fatalf("expected 7.24, got %s", r)
	}
	if r := c.Rate(ctx, "CNY"); !r.Equal(d(7.24)) {
		t.Fatalf("expected cached 7.24, got %s", r)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected a single upstream call, got %d", n)
	}

	if r := c.Rate(ctx, "EUR"); !r.Equal(d(0.92)) {
		t.Errorf("expected 0.92, got %s", r)
	}
}

func TestRate_SharedFetchIgnoresCallerCancel(t *testing.T) {
	var calls atomic.Int32
	srv := newFrankfurter(t, &calls)
	c := fx.NewClient(srv.URL, srv.Client(), cache.NewMemory(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r := c.Rate(ctx, "CNY"); !r.Equal(d(7.24)) {
		t.Fatalf("cancelled caller should still get the fetched rate, got %s", r)
	}
	if r := c.Rate(context.Background(), "CNY"); !r.Equal(d(7.24)) || calls.Load() != 1 {
		t.Errorf("expected cached 7.24 after one call, got %s (%d calls)", r, calls.Load())
	}
}

func TestRate_USDNeedsNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := newFrankfurter(t, &calls)
	c := fx.NewClient(srv.URL, srv.Client(), cache.NewMemory(), 0)

	for _, cur := range []string{"USD", "usd", ""} {
		if r := c.Rate(context.Background(), cur); !r.Equal(d(1)) {
			t.Errorf("%q: expected 1, got %s", cur, r)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("USD should not hit the API")
	}
}

func TestRate_FallsBackToOne(t *testing.T) {
	var calls atomic.Int32
	srv := newFrankfurter(t, &calls)
	c := fx.NewClient(srv.URL, srv.Client(), cache.NewMemory(), 0)

	for _, cur := range []string{"XXX", "ZZZ"} {
		if r := c.Rate(context.Background(), cur); !r.Equal(d(1)) {
			t.Errorf("%s: expected fallback 1, got %s", cur, r)
		}
	}
}

func TestRate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := fx.NewClient(url, nil, cache.NewMemory(), 0)
	if r := c.Rate(context.Background(), "CNY"); !r.Equal(d(1)) {
		t.Errorf("expected fallback 1, got %s", r)
	}
}

func TestStatic(t *testing.T) {
	s := fx.Static{"CNY": d(7)}
	if r := s.Rate(context.Background(), "cny"); !r.Equal(d(7)) {
		t.Errorf("expected 7, got %s", r)
	}
	if r := s.Rate(context.Background(), "GBP"); !r.Equal(d(1)) {
		t.Errorf("expected 1, got %s", r)
	}
}
