package challan

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-crm/meridian-crm/internal/platform/db"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// BoundLedger posts ledger writes on an externally-owned transaction.
type BoundLedger interface {
	StockOnHand(ctx context.Context, productID string) (float64, error)
	PostOut(ctx context.Context, productID string, quantity float64, challanID uuid.UUID, actorID int64) error
}

// LedgerBinder attaches ledger operations to a challan transaction so the
// delivery commit is one atomic unit.
type LedgerBinder interface {
	Bind(tx pgx.Tx) BoundLedger
}

// Repository persists challans in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	ledger LedgerBinder
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, ledger LedgerBinder) *Repository {
	return &Repository{pool: pool, ledger: ledger}
}

const challanColumns = `
	id, order_ref, owner_employee_id, status, version,
	requested_quantity, available_quantity, deliverable_quantity,
	shortfall_quantity, short_closed, po_document_ref, carrier, tracking_ref,
	remarks, hold_reason, hold_return_status, superseded,
	allocated_at, created_at, updated_at, completed_at`

// Raise inserts the challan unless one already exists for its
// (order_ref, owner). The partial unique index decides races; the loser gets
// the winner's row back unchanged.
func (r *Repository) Raise(ctx context.Context, ch DeliveryChallan) (DeliveryChallan, bool, error) {
	var (
		stored  DeliveryChallan
		created bool
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO delivery_challans (
				id, order_ref, owner_employee_id, status, version,
				requested_quantity, available_quantity, deliverable_quantity,
				shortfall_quantity, short_closed, po_document_ref, carrier, tracking_ref,
				remarks, hold_reason, hold_return_status, superseded,
				allocated_at, created_at, updated_at, completed_at
			)
			VALUES ($1, $2, $3, $4, $5, 0, 0, 0, 0, FALSE, '', '', '', '', '', NULL, FALSE, NULL, $6, $6, NULL)
			ON CONFLICT (order_ref, owner_employee_id) WHERE NOT superseded DO NOTHING
		`, ch.ID, ch.OrderRef, ch.OwnerEmployeeID, string(ch.Status), ch.Version, ch.CreatedAt)
		if err != nil {
			return db.MapError(err)
		}
		if tag.RowsAffected() == 0 {
			existing, err := r.getByRef(ctx, tx, ch.OrderRef, ch.OwnerEmployeeID)
			if err != nil {
				return err
			}
			stored = existing
			return nil
		}

		for _, line := range ch.Lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO challan_lines (
					id, challan_id, product_id, class_or_level, category,
					quantity, strength, unit_price, spec_tag,
					available_quantity, deliverable_quantity, line_order
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, $10)
			`, line.ID, ch.ID, line.ProductID, line.ClassOrLevel, line.Category,
				line.Quantity, line.Strength, line.UnitPrice.String(), line.SpecTag, line.LineOrder); err != nil {
				return db.MapError(err)
			}
		}
		stored = ch
		created = true
		return nil
	})
	if err != nil {
		return DeliveryChallan{}, false, err
	}
	return stored, created, nil
}

// Get retrieves one challan with its lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (DeliveryChallan, error) {
	ch, err := scanChallan(r.pool.QueryRow(ctx, `SELECT `+challanColumns+` FROM delivery_challans WHERE id = $1`, id))
	if err != nil {
		return DeliveryChallan{}, err
	}
	ch.Lines, err = r.listLines(ctx, id)
	if err != nil {
		return DeliveryChallan{}, err
	}
	return ch, nil
}

// List retrieves challans matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]DeliveryChallan, int, error) {
	where := `
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = 0 OR owner_employee_id = $2)
		  AND ($3 = '' OR order_ref = $3)`
	args := []any{string(filter.Status), filter.OwnerEmployeeID, filter.OrderRef}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_challans`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+challanColumns+` FROM delivery_challans`+where+`
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()

	var challans []DeliveryChallan
	for rows.Next() {
		ch, err := scanChallan(rows)
		if err != nil {
			return nil, 0, err
		}
		challans = append(challans, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range challans {
		if challans[i].Lines, err = r.listLines(ctx, challans[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return challans, total, nil
}

// ListStaleAllocating returns Allocating challans whose allocation is older
// than the cutoff.
func (r *Repository) ListStaleAllocating(ctx context.Context, cutoff time.Time) ([]DeliveryChallan, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+challanColumns+` FROM delivery_challans
		WHERE status = $1 AND allocated_at IS NOT NULL AND allocated_at < $2
		ORDER BY allocated_at`, string(StatusAllocating), cutoff)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()

	var challans []DeliveryChallan
	for rows.Next() {
		ch, err := scanChallan(rows)
		if err != nil {
			return nil, err
		}
		challans = append(challans, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range challans {
		if challans[i].Lines, err = r.listLines(ctx, challans[i].ID); err != nil {
			return nil, err
		}
	}
	return challans, nil
}

// UpdateTransition applies a status transition guarded by the version the
// caller read. Zero rows means another writer got there first.
func (r *Repository) UpdateTransition(ctx context.Context, ch *DeliveryChallan) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return updateTransition(ctx, tx, ch)
	})
}

// CommitDelivery runs fn with challan and ledger operations bound to one
// transaction.
func (r *Repository) CommitDelivery(ctx context.Context, fn func(context.Context, CommitTx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &commitTx{tx: tx, BoundLedger: r.ledger.Bind(tx)})
	})
}

type commitTx struct {
	tx pgx.Tx
	BoundLedger
}

func (c *commitTx) UpdateTransition(ctx context.Context, ch *DeliveryChallan) error {
	return updateTransition(ctx, c.tx, ch)
}

func updateTransition(ctx context.Context, tx pgx.Tx, ch *DeliveryChallan) error {
	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE delivery_challans SET
			status = $3, version = version + 1,
			requested_quantity = $4, available_quantity = $5, deliverable_quantity = $6,
			shortfall_quantity = $7, short_closed = $8,
			po_document_ref = $9, carrier = $10, tracking_ref = $11, remarks = $12,
			hold_reason = $13, hold_return_status = $14,
			allocated_at = $15, completed_at = $16, updated_at = $17
		WHERE id = $1 AND version = $2
	`, ch.ID, ch.Version, string(ch.Status),
		ch.RequestedQuantity, ch.AvailableQuantity, ch.DeliverableQuantity,
		ch.ShortfallQuantity, ch.ShortClosed,
		ch.PODocumentRef, ch.Carrier, ch.TrackingRef, ch.Remarks,
		ch.HoldReason, holdReturnValue(ch.HoldReturnStatus),
		ch.AllocatedAt, ch.CompletedAt, now)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_challans WHERE id = $1)`, ch.ID).Scan(&exists); err != nil {
			return db.MapError(err)
		}
		if !exists {
			return shared.Ef(shared.ErrNotFound, "challan %s not found", ch.ID)
		}
		return shared.Ef(shared.ErrConcurrencyConflict, "challan %s was modified, re-read and retry", ch.ID)
	}

	for _, line := range ch.Lines {
		if _, err := tx.Exec(ctx, `
			UPDATE challan_lines
			SET available_quantity = $2, deliverable_quantity = $3
			WHERE id = $1
		`, line.ID, line.AvailableQuantity, line.DeliverableQuantity); err != nil {
			return db.MapError(err)
		}
	}

	ch.Version++
	ch.UpdatedAt = now
	return nil
}

func (r *Repository) getByRef(ctx context.Context, tx pgx.Tx, orderRef string, owner int64) (DeliveryChallan, error) {
	ch, err := scanChallan(tx.QueryRow(ctx, `SELECT `+challanColumns+` FROM delivery_challans
		WHERE order_ref = $1 AND owner_employee_id = $2 AND NOT superseded`, orderRef, owner))
	if err != nil {
		return DeliveryChallan{}, err
	}
	ch.Lines, err = listLinesTx(ctx, tx, ch.ID)
	if err != nil {
		return DeliveryChallan{}, err
	}
	return ch, nil
}

const lineColumns = `
	id, challan_id, product_id, class_or_level, category,
	quantity, strength, unit_price::text, spec_tag,
	available_quantity, deliverable_quantity, line_order`

func (r *Repository) listLines(ctx context.Context, challanID uuid.UUID) ([]ProductLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` FROM challan_lines WHERE challan_id = $1 ORDER BY line_order`, challanID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collectLines(rows)
}

func listLinesTx(ctx context.Context, tx pgx.Tx, challanID uuid.UUID) ([]ProductLine, error) {
	rows, err := tx.Query(ctx, `SELECT `+lineColumns+` FROM challan_lines WHERE challan_id = $1 ORDER BY line_order`, challanID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collectLines(rows)
}

func collectLines(rows pgx.Rows) ([]ProductLine, error) {
	defer rows.Close()
	var lines []ProductLine
	for rows.Next() {
		var (
			line     ProductLine
			priceRaw string
		)
		if err := rows.Scan(&line.ID, &line.ChallanID, &line.ProductID, &line.ClassOrLevel, &line.Category,
			&line.Quantity, &line.Strength, &priceRaw, &line.SpecTag,
			&line.AvailableQuantity, &line.DeliverableQuantity, &line.LineOrder); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceRaw)
		if err != nil {
			return nil, err
		}
		line.UnitPrice = price
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanChallan(row pgx.Row) (DeliveryChallan, error) {
	var (
		ch         DeliveryChallan
		status     string
		holdReturn *string
	)
	err := row.Scan(&ch.ID, &ch.OrderRef, &ch.OwnerEmployeeID, &status, &ch.Version,
		&ch.RequestedQuantity, &ch.AvailableQuantity, &ch.DeliverableQuantity,
		&ch.ShortfallQuantity, &ch.ShortClosed, &ch.PODocumentRef, &ch.Carrier, &ch.TrackingRef,
		&ch.Remarks, &ch.HoldReason, &holdReturn, &ch.Superseded,
		&ch.AllocatedAt, &ch.CreatedAt, &ch.UpdatedAt, &ch.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeliveryChallan{}, shared.E(shared.ErrNotFound, "challan not found")
		}
		return DeliveryChallan{}, db.MapError(err)
	}
	ch.Status = Status(status)
	if holdReturn != nil {
		s := Status(*holdReturn)
		ch.HoldReturnStatus = &s
	}
	return ch, nil
}

func holdReturnValue(s *Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
