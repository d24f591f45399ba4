package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/skintrack/tracker/internal/item"
	"github.com/skintrack/tracker/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates tables and seeds platforms. Safe to run on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// --- Catalog ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, email, display_name, created_at)
		 VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.DisplayName, u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: user %s", ErrConflict, u.ID)
	}
	return err
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, email, display_name, created_at FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) ListPlatforms(ctx context.Context) ([]model.Platform, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT platform_id, platform_name FROM platforms ORDER BY platform_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var platforms []model.Platform
	for rows.Next() {
		var p model.Platform
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

const itemColumns = `item_id, market_name, game, COALESCE(rarity, ''), exterior`

func scanItem(row pgx.Row) (*model.Item, error) {
	var it model.Item
	if err := row.Scan(&it.ID, &it.MarketName, &it.Game, &it.Rarity, &it.Exterior); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *PostgresStore) GetOrCreateItem(ctx context.Context, marketName, exterior string) (*model.Item, bool, error) {
	it, err := scanItem(s.pool.QueryRow(ctx,
		`INSERT INTO items (market_name, game, exterior) VALUES ($1, $2, $3)
		 ON CONFLICT (market_name, exterior) DO NOTHING
		 RETURNING `+itemColumns,
		marketName, item.Game, exterior))
	if err == nil {
		return it, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create item %q: %w", marketName, err)
	}

	// Conflict: the item already exists.
	it, err = scanItem(s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE market_name = $1 AND exterior = $2`,
		marketName, exterior))
	if err != nil {
		return nil, false, fmt.Errorf("get item %q: %w", marketName, err)
	}
	return it, false, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE item_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return it, nil
}

func (s *PostgresStore) ListItems(ctx context.Context) ([]model.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY market_name, item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// --- Ledger ---

func (s *PostgresStore) InsertPurchase(ctx context.Context, p *model.PurchaseEvent) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO purchases (id, user_id, item_id, platform_id, ts, price, currency)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)
		 RETURNING seq`,
		p.ID, p.UserID, p.ItemID, p.PlatformID, p.Timestamp,
		p.UnitPrice.String(), p.Currency,
	).Scan(&p.Seq)
}

// InsertSale serialises sales per (user, item) with a transaction-scoped
// advisory lock so the holdings check and the insert are atomic.
func (s *PostgresStore) InsertSale(ctx context.Context, sale *model.SaleEvent) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1 || ':' || $2::TEXT, 0))`,
			sale.UserID, sale.ItemID); err != nil {
			return err
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO sales (id, user_id, item_id, platform_id, ts, price, fee, currency)
			 SELECT $1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8
			 WHERE (SELECT count(*) FROM purchases WHERE user_id = $2 AND item_id = $3)
			     > (SELECT count(*) FROM sales WHERE user_id = $2 AND item_id = $3)
			 RETURNING seq`,
			sale.ID, sale.UserID, sale.ItemID, sale.PlatformID, sale.Timestamp,
			sale.UnitPrice.String(), sale.Fee.String(), sale.Currency,
		).Scan(&sale.Seq)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientHoldings
		}
		return err
	})
}

func (s *PostgresStore) DeletePurchase(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM purchases WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) DeleteSale(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sales WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sale %s", ErrNotFound, id)
	}
	return nil
}

const (
	purchaseColumns = `id, seq, user_id, item_id, platform_id, ts, price::TEXT, currency`
	saleColumns     = `id, seq, user_id, item_id, platform_id, ts, price::TEXT, fee::TEXT, currency`
)

func (s *PostgresStore) ListPurchases(ctx context.Context, userID string) ([]model.PurchaseEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE user_id = $1 ORDER BY ts, seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPurchases(rows)
}

func (s *PostgresStore) ListSales(ctx context.Context, userID string) ([]model.SaleEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE user_id = $1 ORDER BY ts, seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSales(rows)
}

func (s *PostgresStore) ListItemPurchases(ctx context.Context, itemID int64) ([]model.PurchaseEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE item_id = $1 ORDER BY ts DESC, seq DESC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPurchases(rows)
}

func (s *PostgresStore) ListItemSales(ctx context.Context, itemID int64) ([]model.SaleEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE item_id = $1 ORDER BY ts DESC, seq DESC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSales(rows)
}

func (s *PostgresStore) ListPurchasesSince(ctx context.Context, since time.Time) ([]model.PurchaseEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE ts >= $1 ORDER BY ts, seq`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPurchases(rows)
}

func (s *PostgresStore) ListSalesSince(ctx context.Context, since time.Time) ([]model.SaleEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE ts >= $1 ORDER BY ts, seq`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSales(rows)
}

// --- Market snapshots ---

func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap *model.MarketSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_snapshots (id, item_id, platform_id, price, currency, captured_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)`,
		snap.ID, snap.ItemID, snap.PlatformID, snap.Price.String(), snap.Currency, snap.CapturedAt,
	)
	return err
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, itemID int64) ([]model.MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, item_id, platform_id, price::TEXT, currency, captured_at
		 FROM market_snapshots WHERE item_id = $1
		 ORDER BY captured_at DESC, platform_id DESC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.MarketSnapshot
	for rows.Next() {
		var m model.MarketSnapshot
		var priceS string
		if err := rows.Scan(&m.ID, &m.ItemID, &m.PlatformID, &priceS, &m.Currency, &m.CapturedAt); err != nil {
			return nil, err
		}
		m.Price, _ = decimal.NewFromString(priceS)
		snaps = append(snaps, m)
	}
	return snaps, rows.Err()
}

// LatestPrices picks, per item, the snapshot with the greatest captured_at,
// ties broken by the highest platform_id.
func (s *PostgresStore) LatestPrices(ctx context.Context, itemIDs []int64) (map[int64]decimal.Decimal, error) {
	prices := make(map[int64]decimal.Decimal, len(itemIDs))
	if len(itemIDs) == 0 {
		return prices, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (item_id) item_id, price::TEXT
		 FROM market_snapshots
		 WHERE item_id = ANY($1)
		 ORDER BY item_id, captured_at DESC, platform_id DESC`, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var priceS string
		if err := rows.Scan(&id, &priceS); err != nil {
			return nil, err
		}
		prices[id], _ = decimal.NewFromString(priceS)
	}
	return prices, rows.Err()
}

// MarkPrices takes the latest snapshot per (item, platform), then the
// highest of those per item.
func (s *PostgresStore) MarkPrices(ctx context.Context) (map[int64]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`WITH latest AS (
		     SELECT DISTINCT ON (item_id, platform_id) item_id, price
		     FROM market_snapshots
		     ORDER BY item_id, platform_id, captured_at DESC
		 )
		 SELECT item_id, MAX(price)::TEXT FROM latest GROUP BY item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	marks := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var id int64
		var priceS string
		if err := rows.Scan(&id, &priceS); err != nil {
			return nil, err
		}
		marks[id], _ = decimal.NewFromString(priceS)
	}
	return marks, rows.Err()
}

// scanPurchases reads pgx rows into PurchaseEvent slices.
func scanPurchases(rows pgx.Rows) ([]model.PurchaseEvent, error) {
	var out []model.PurchaseEvent
	for rows.Next() {
		var p model.PurchaseEvent
		var priceS string
		if err := rows.Scan(&p.ID, &p.Seq, &p.UserID, &p.ItemID, &p.PlatformID,
			&p.Timestamp, &priceS, &p.Currency); err != nil {
			return nil, err
		}
		p.UnitPrice, _ = decimal.NewFromString(priceS)
		out = append(out, p)
	}
	return out, rows.Err()
}

// scanSales reads pgx rows into SaleEvent slices.
func scanSales(rows pgx.Rows) ([]model.SaleEvent, error) {
	var out []model.SaleEvent
	for rows.Next() {
		var e model.SaleEvent
		var priceS, feeS string
		if err := rows.Scan(&e.ID, &e.Seq, &e.UserID, &e.ItemID, &e.PlatformID,
			&e.Timestamp, &priceS, &feeS, &e.Currency); err != nil {
			return nil, err
		}
		e.UnitPrice, _ = decimal.NewFromString(priceS)
		e.Fee, _ = decimal.NewFromString(feeS)
		out = append(out, e)
	}
	return out, rows.Err()
}
