package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian-crm/internal/platform/db"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the ledger.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, productID string) (Item, error)
	UpsertItem(ctx context.Context, item Item) error
	InsertMovement(ctx context.Context, m Movement) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Bind exposes transactional ledger operations on an externally-owned
// transaction, so challan completion can share one atomic unit with its
// status update.
func (r *Repository) Bind(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// GetItem retrieves a stock record by product id.
func (r *Repository) GetItem(ctx context.Context, productID string) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `
		SELECT product_id, current_stock, min_stock, unit_price::text, updated_at
		FROM stock_items
		WHERE product_id = $1
	`, productID), productID)
}

// ListItems retrieves stock records ordered by product id.
func (r *Repository) ListItems(ctx context.Context, limit, offset int) ([]Item, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_items`).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, current_stock, min_stock, unit_price::text, updated_at
		FROM stock_items
		ORDER BY product_id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item     Item
			priceRaw string
		)
		if err := rows.Scan(&item.ProductID, &item.CurrentStock, &item.MinStock, &priceRaw, &item.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if item.UnitPrice, err = decimal.NewFromString(priceRaw); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// ListMovements retrieves ledger rows in append order.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	query := `
		SELECT id, product_id, movement_type, quantity, challan_id, reason, actor_id, occurred_at
		FROM stock_movements
		WHERE ($1 = '' OR product_id = $1)
		  AND ($2::uuid IS NULL OR challan_id = $2)
		  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
		  AND ($4::timestamptz IS NULL OR occurred_at <= $4)
		ORDER BY occurred_at, id
	`
	args := []any{filter.ProductID, filter.ChallanID, nullableTime(filter.From), nullableTime(filter.To)}
	if filter.Limit > 0 {
		query += ` LIMIT $5`
		args = append(args, filter.Limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var (
			m       Movement
			mvtType string
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &mvtType, &m.Quantity, &m.ChallanID, &m.Reason, &m.ActorID, &m.OccurredAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(mvtType)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListProductIDs returns every product present in the ledger.
func (r *Repository) ListProductIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id FROM stock_items ORDER BY product_id`)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *txRepo) GetItemForUpdate(ctx context.Context, productID string) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `
		SELECT product_id, current_stock, min_stock, unit_price::text, updated_at
		FROM stock_items
		WHERE product_id = $1
		FOR UPDATE
	`, productID), productID)
}

func (r *txRepo) UpsertItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO stock_items (product_id, current_stock, min_stock, unit_price, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id) DO UPDATE
		SET current_stock = EXCLUDED.current_stock,
		    min_stock = EXCLUDED.min_stock,
		    unit_price = EXCLUDED.unit_price,
		    updated_at = EXCLUDED.updated_at
	`, item.ProductID, item.CurrentStock, item.MinStock, item.UnitPrice.String(), item.UpdatedAt)
	return db.MapError(err)
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO stock_movements (id, product_id, movement_type, quantity, challan_id, reason, actor_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.ProductID, string(m.Type), m.Quantity, m.ChallanID, m.Reason, m.ActorID, m.OccurredAt)
	return db.MapError(err)
}

func scanItem(row pgx.Row, productID string) (Item, error) {
	var (
		item     Item
		priceRaw string
	)
	err := row.Scan(&item.ProductID, &item.CurrentStock, &item.MinStock, &priceRaw, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.Ef(shared.ErrNotFound, "product %s has no stock record", productID)
		}
		return Item{}, db.MapError(err)
	}
	if item.UnitPrice, err = decimal.NewFromString(priceRaw); err != nil {
		return Item{}, err
	}
	return item, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
