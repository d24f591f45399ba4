// Package tracker provides the HTTP handlers for recording purchases and
// sales, browsing the item catalog, and querying portfolio views.
//
// All monetary values use shopspring/decimal, never float64 for money.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/guard"
	"github.com/skintrack/tracker/internal/item"
	"github.com/skintrack/tracker/internal/market"
	"github.com/skintrack/tracker/internal/metrics"
	"github.com/skintrack/tracker/internal/model"
	"github.com/skintrack/tracker/internal/pnl"
	"github.com/skintrack/tracker/internal/portfolio"
	"github.com/skintrack/tracker/internal/store"
)

// TopSource lists the market's top-selling items.
type TopSource interface {
	TopItems(ctx context.Context) []market.TopItem
}

// Service handles ledger writes and portfolio reads. Ledger writes are
// serialized by a mutex so the guard check and the insert see the same
// holdings (single-instance). PostgresStore repeats the sale check inside
// its insert transaction for multi-instance deployments.
type Service struct {
	store     store.Store
	limiter   *guard.Limiter
	portfolio *portfolio.Service
	top       TopSource
	mu        sync.Mutex
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new tracker service.
// Pass nil for top or hub when those features are not needed.
func NewService(st store.Store, limiter *guard.Limiter, pf *portfolio.Service, top TopSource, hub *WSHub) *Service {
	return &Service{
		store:     st,
		limiter:   limiter,
		portfolio: pf,
		top:       top,
		wsHub:     hub,
	}
}

// --- Request/Response types ---

// CreateUserRequest is the JSON body for POST /users.
type CreateUserRequest struct {
	UserID      string `json:"user_id"` // generated when empty
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// PurchaseRequest is the JSON body for POST /purchases. The item is looked
// up by market name and exterior and created on first use.
type PurchaseRequest struct {
	UserID     string          `json:"user_id"`
	PlatformID int64           `json:"platform_id"`
	MarketName string          `json:"market_name"` // e.g. "AK-47 | Redline"
	Exterior   string          `json:"exterior"`    // e.g. "Field-Tested" or "FT"
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Timestamp  *time.Time      `json:"ts"` // defaults to now
}

// SaleRequest is the JSON body for POST /sales.
type SaleRequest struct {
	UserID     string          `json:"user_id"`
	PlatformID int64           `json:"platform_id"`
	ItemID     int64           `json:"item_id"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	Currency   string          `json:"currency"`
	Timestamp  *time.Time      `json:"ts"`
}

// PurchaseResponse is returned from POST /purchases.
type PurchaseResponse struct {
	Purchase    model.PurchaseEvent `json:"purchase"`
	Item        model.Item          `json:"item"`
	ItemCreated bool                `json:"item_created"`
}

// ItemDetail is returned from GET /items/{itemID}. Event lists are newest first.
type ItemDetail struct {
	Item        model.Item             `json:"item"`
	LatestPrice *decimal.Decimal       `json:"latest_price"`
	Purchases   []model.PurchaseEvent  `json:"purchases"`
	Sales       []model.SaleEvent      `json:"sales"`
	Snapshots   []model.MarketSnapshot `json:"snapshots"`
}

// Routes mounts the REST API under r, typically at /api/v1. The WebSocket
// endpoint is mounted separately from WSHub.HandleWS.
func (s *Service) Routes(r chi.Router) {
	// Catalog.
	r.Get("/items", s.ListItems)
	r.Get("/items/{itemID}", s.GetItem)
	r.Get("/users", s.ListUsers)
	r.Post("/users", s.CreateUser)
	r.Get("/platforms", s.ListPlatforms)
	r.Get("/market/top", s.TopItems)

	// Ledger.
	r.Post("/purchases", s.RecordPurchase)
	r.Delete("/purchases/{id}", s.DeletePurchase)
	r.Post("/sales", s.RecordSale)
	r.Delete("/sales/{id}", s.DeleteSale)

	// Portfolio queries.
	r.Get("/portfolio/{userID}", s.GetPortfolio)
	r.Get("/portfolio/{userID}/holdings", s.GetHoldings)
	r.Get("/portfolio/{userID}/stats", s.GetStats)
	r.Get("/portfolio/{userID}/kline", s.GetKline)

	// Cross-user activity.
	r.Get("/dashboard", s.GetDashboard)
	r.Get("/dashboard/transactions", s.GetRecentTransactions)
	r.Get("/dashboard/portfolios", s.GetMarketValueRanking)
	r.Get("/dashboard/platforms", s.GetPlatformActivity)
}

// --- Catalog handlers ---

// ListItems handles GET /api/v1/items
func (s *Service) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListItems(r.Context())
	if err != nil {
		writeError(w, "failed to list items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// GetItem handles GET /api/v1/items/{itemID}
func (s *Service) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		writeError(w, "item id must be an integer", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	it, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	detail := ItemDetail{Item: *it}
	if detail.Purchases, err = s.store.ListItemPurchases(ctx, itemID); err != nil {
		writeError(w, "failed to load purchases", http.StatusInternalServerError)
		return
	}
	if detail.Sales, err = s.store.ListItemSales(ctx, itemID); err != nil {
		writeError(w, "failed to load sales", http.StatusInternalServerError)
		return
	}
	if detail.Snapshots, err = s.store.ListSnapshots(ctx, itemID); err != nil {
		writeError(w, "failed to load snapshots", http.StatusInternalServerError)
		return
	}
	if snap, ok := pnl.LatestSnapshot(detail.Snapshots); ok {
		detail.LatestPrice = &snap.Price
	}
	if detail.Purchases == nil {
		detail.Purchases = []model.PurchaseEvent{}
	}
	if detail.Sales == nil {
		detail.Sales = []model.SaleEvent{}
	}
	if detail.Snapshots == nil {
		detail.Snapshots = []model.MarketSnapshot{}
	}

	writeJSON(w, http.StatusOK, detail)
}

// ListUsers handles GET /api/v1/users
func (s *Service) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// CreateUser handles POST /api/v1/users
func (s *Service) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	u := &model.User{
		ID:          strings.TrimSpace(req.UserID),
		Email:       strings.TrimSpace(req.Email),
		DisplayName: strings.TrimSpace(req.DisplayName),
		CreatedAt:   time.Now().UTC(),
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}

	if err := s.store.CreateUser(r.Context(), u); err != nil {
		writeStoreError(w, err)
		return
	}
	slog.Info("user created", "user", u.ID)
	writeJSON(w, http.StatusCreated, u)
}

// ListPlatforms handles GET /api/v1/platforms
func (s *Service) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := s.store.ListPlatforms(r.Context())
	if err != nil {
		writeError(w, "failed to list platforms", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, platforms)
}

// TopItems handles GET /api/v1/market/top
func (s *Service) TopItems(w http.ResponseWriter, r *http.Request) {
	items := []market.TopItem{}
	if s.top != nil {
		items = s.top.TopItems(r.Context())
	}
	writeJSON(w, http.StatusOK, items)
}

// --- Ledger handlers ---

// RecordPurchase handles POST /api/v1/purchases
// Get-or-creates the item, checks holding caps, and appends the purchase.
func (s *Service) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Price.IsNegative() {
		writeError(w, "price must not be negative", http.StatusBadRequest)
		return
	}
	if !baseCurrency(req.Currency) {
		writeError(w, "prices are recorded in "+model.BaseCurrency, http.StatusBadRequest)
		return
	}
	name, err := item.Compose(req.MarketName, req.Exterior)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if status, msg := s.checkPlatform(ctx, req.PlatformID); status != 0 {
		writeError(w, msg, status)
		return
	}

	it, created, err := s.store.GetOrCreateItem(ctx, name.HashName, name.Exterior)
	if err != nil {
		writeError(w, "failed to resolve item", http.StatusInternalServerError)
		return
	}
	if created {
		slog.Info("item created", "item_id", it.ID, "market_name", it.MarketName)
	}

	// Serialize ledger writes.
	s.mu.Lock()
	defer s.mu.Unlock()

	// --- Holding cap check ---
	heldItem, heldByWeapon, err := s.exposure(ctx, req.UserID, it.ID)
	if err != nil {
		writeError(w, "failed to check holding limits", http.StatusInternalServerError)
		return
	}
	if err := s.limiter.CheckPurchase(name.Group(), heldItem, heldByWeapon); err != nil {
		metrics.GuardRejections.WithLabelValues(rejectionReason(err)).Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	p := &model.PurchaseEvent{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		ItemID:     it.ID,
		PlatformID: req.PlatformID,
		Timestamp:  eventTime(req.Timestamp),
		UnitPrice:  req.Price,
		Currency:   model.BaseCurrency,
	}
	if err := s.store.InsertPurchase(ctx, p); err != nil {
		writeError(w, "failed to record purchase", http.StatusInternalServerError)
		return
	}
	metrics.LedgerEventsTotal.WithLabelValues("purchase", "create").Inc()

	slog.Info("purchase recorded",
		"id", p.ID,
		"user", p.UserID,
		"item_id", it.ID,
		"market_name", it.MarketName,
		"price", p.UnitPrice.String(),
	)

	s.wsHub.Broadcast(WSMessage{
		Type:       MsgPurchaseRecorded,
		UserID:     p.UserID,
		ItemID:     it.ID,
		MarketName: it.MarketName,
		PlatformID: p.PlatformID,
		Price:      p.UnitPrice.String(),
		Timestamp:  p.Timestamp.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusCreated, PurchaseResponse{Purchase: *p, Item: *it, ItemCreated: created})
}

// RecordSale handles POST /api/v1/sales
// Rejected with 409 when the user holds no unit of the item.
func (s *Service) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Price.IsNegative() || req.Fee.IsNegative() {
		writeError(w, "price and fee must not be negative", http.StatusBadRequest)
		return
	}
	if !baseCurrency(req.Currency) {
		writeError(w, "prices are recorded in "+model.BaseCurrency, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if status, msg := s.checkPlatform(ctx, req.PlatformID); status != 0 {
		writeError(w, msg, status)
		return
	}
	it, err := s.store.GetItem(ctx, req.ItemID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Serialize ledger writes.
	s.mu.Lock()
	defer s.mu.Unlock()

	held, err := s.held(ctx, req.UserID, it.ID)
	if err != nil {
		writeError(w, "failed to check holdings", http.StatusInternalServerError)
		return
	}
	if err := s.limiter.CheckSale(held); err != nil {
		metrics.GuardRejections.WithLabelValues(rejectionReason(err)).Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	sale := &model.SaleEvent{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		ItemID:     it.ID,
		PlatformID: req.PlatformID,
		Timestamp:  eventTime(req.Timestamp),
		UnitPrice:  req.Price,
		Fee:        req.Fee,
		Currency:   model.BaseCurrency,
	}
	if err := s.store.InsertSale(ctx, sale); err != nil {
		if errors.Is(err, store.ErrInsufficientHoldings) {
			metrics.GuardRejections.WithLabelValues(rejectionReason(err)).Inc()
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, "failed to record sale", http.StatusInternalServerError)
		return
	}
	metrics.LedgerEventsTotal.WithLabelValues("sale", "create").Inc()

	slog.Info("sale recorded",
		"id", sale.ID,
		"user", sale.UserID,
		"item_id", it.ID,
		"price", sale.UnitPrice.String(),
		"fee", sale.Fee.String(),
		"held_before", held,
	)

	s.wsHub.Broadcast(WSMessage{
		Type:       MsgSaleRecorded,
		UserID:     sale.UserID,
		ItemID:     it.ID,
		MarketName: it.MarketName,
		PlatformID: sale.PlatformID,
		Price:      sale.UnitPrice.String(),
		Fee:        sale.Fee.String(),
		Timestamp:  sale.Timestamp.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusCreated, sale)
}

// DeletePurchase handles DELETE /api/v1/purchases/{id}?user_id=
// A purchase backing a unit that has already been sold cannot be removed.
func (s *Service) DeletePurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	purchases, err := s.store.ListPurchases(ctx, userID)
	if err != nil {
		writeError(w, "failed to load purchases", http.StatusInternalServerError)
		return
	}
	i := slices.IndexFunc(purchases, func(p model.PurchaseEvent) bool { return p.ID == id })
	if i < 0 {
		writeError(w, "purchase not found", http.StatusNotFound)
		return
	}

	// Removing a purchase needs a held unit, exactly like a sale.
	held, err := s.held(ctx, userID, purchases[i].ItemID)
	if err != nil {
		writeError(w, "failed to check holdings", http.StatusInternalServerError)
		return
	}
	if err := s.limiter.CheckSale(held); err != nil {
		metrics.GuardRejections.WithLabelValues(rejectionReason(err)).Inc()
		writeError(w, "purchase is matched by a recorded sale", http.StatusConflict)
		return
	}

	if err := s.store.DeletePurchase(ctx, userID, id); err != nil {
		writeStoreError(w, err)
		return
	}
	metrics.LedgerEventsTotal.WithLabelValues("purchase", "delete").Inc()
	slog.Info("purchase deleted", "id", id, "user", userID)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSale handles DELETE /api/v1/sales/{id}?user_id=
func (s *Service) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteSale(r.Context(), userID, id); err != nil {
		writeStoreError(w, err)
		return
	}
	metrics.LedgerEventsTotal.WithLabelValues("sale", "delete").Inc()
	slog.Info("sale deleted", "id", id, "user", userID)
	w.WriteHeader(http.StatusNoContent)
}

// --- Portfolio handlers ---

// GetHoldings handles GET /api/v1/portfolio/{userID}/holdings?currency=
func (s *Service) GetHoldings(w http.ResponseWriter, r *http.Request) {
	vals, err := s.portfolio.ComputeHoldings(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("currency"))
	if err != nil {
		writePortfolioError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vals)
}

// GetStats handles GET /api/v1/portfolio/{userID}/stats?currency=&matching=
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st, err := s.portfolio.ComputeFinancialStats(r.Context(), chi.URLParam(r, "userID"), q.Get("currency"), q.Get("matching"))
	if err != nil {
		writePortfolioError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetKline handles GET /api/v1/portfolio/{userID}/kline?currency=
func (s *Service) GetKline(w http.ResponseWriter, r *http.Request) {
	points, err := s.portfolio.ComputeKline(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("currency"))
	if err != nil {
		writePortfolioError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}?currency=
// Returns holdings, market value totals and realized statistics.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.portfolio.Summary(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("currency"))
	if err != nil {
		writePortfolioError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Dashboard handlers ---

// GetDashboard handles GET /api/v1/dashboard?currency=
func (s *Service) GetDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.portfolio.Dashboard(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		writePortfolioError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// GetRecentTransactions handles GET /api/v1/dashboard/transactions?currency=
func (s *Service) GetRecentTransactions(w http.ResponseWriter, r *http.Request) {
	feed, err := s.portfolio.RecentTransactions(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		writePortfolioError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// GetMarketValueRanking handles GET /api/v1/dashboard/portfolios?currency=
func (s *Service) GetMarketValueRanking(w http.ResponseWriter, r *http.Request) {
	ranks, err := s.portfolio.MarketValueRanking(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		writePortfolioError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranks)
}

// GetPlatformActivity handles GET /api/v1/dashboard/platforms?currency=
func (s *Service) GetPlatformActivity(w http.ResponseWriter, r *http.Request) {
	stats, err := s.portfolio.PlatformActivity(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		writePortfolioError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Helpers ---

// held returns the units of itemID the user currently holds.
func (s *Service) held(ctx context.Context, userID string, itemID int64) (int64, error) {
	purchases, err := s.store.ListPurchases(ctx, userID)
	if err != nil {
		return 0, err
	}
	sales, err := s.store.ListSales(ctx, userID)
	if err != nil {
		return 0, err
	}
	return pnl.QuantityHeld(itemID, purchases, sales), nil
}

// exposure returns units held of itemID and units held per weapon group.
// Groups are only resolved when a weapon cap is configured.
func (s *Service) exposure(ctx context.Context, userID string, itemID int64) (int64, map[string]int64, error) {
	purchases, err := s.store.ListPurchases(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	sales, err := s.store.ListSales(ctx, userID)
	if err != nil {
		return 0, nil, err
	}

	var heldItem int64
	byWeapon := make(map[string]int64)
	for _, h := range pnl.CurrentHoldings(pnl.ComputeHoldings(purchases, sales)) {
		if h.ItemID == itemID {
			heldItem = h.QuantityHeld
		}
		if s.limiter.MaxPerWeapon == 0 {
			continue
		}
		it, err := s.store.GetItem(ctx, h.ItemID)
		if err != nil {
			return 0, nil, err
		}
		if n, err := item.ParseMarketName(it.MarketName); err == nil {
			byWeapon[n.Group()] += h.QuantityHeld
		}
	}
	return heldItem, byWeapon, nil
}

// checkPlatform returns a non-zero status when platformID is not a known
// platform.
func (s *Service) checkPlatform(ctx context.Context, platformID int64) (int, string) {
	platforms, err := s.store.ListPlatforms(ctx)
	if err != nil {
		return http.StatusInternalServerError, "failed to load platforms"
	}
	if !slices.ContainsFunc(platforms, func(p model.Platform) bool { return p.ID == platformID }) {
		return http.StatusBadRequest, "unknown platform_id"
	}
	return 0, ""
}

func baseCurrency(c string) bool {
	c = strings.TrimSpace(c)
	return c == "" || strings.EqualFold(c, model.BaseCurrency)
}

func eventTime(ts *time.Time) time.Time {
	if ts == nil || ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, guard.ErrPerItemLimitExceeded):
		return "item_limit"
	case errors.Is(err, guard.ErrWeaponLimitExceeded):
		return "weapon_limit"
	default:
		return "no_holdings"
	}
}

// writeJSON writes v as a JSON response with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("store error", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writePortfolioError(w http.ResponseWriter, err error) {
	if errors.Is(err, portfolio.ErrInvalidCurrency) || errors.Is(err, portfolio.ErrInvalidMatching) {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Error("portfolio computation failed", "err", err)
	writeError(w, "failed to compute portfolio", http.StatusInternalServerError)
}
