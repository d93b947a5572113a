package conversion

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-crm/meridian-crm/internal/platform/db"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Repository reads and closes leads in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get retrieves a lead by ref.
func (r *Repository) Get(ctx context.Context, ref string) (Lead, error) {
	var (
		lead   Lead
		status string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT ref, status, closed_at, created_at
		FROM leads
		WHERE ref = $1
	`, ref).Scan(&lead.Ref, &status, &lead.ClosedAt, &lead.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, shared.Ef(shared.ErrNotFound, "lead %s not found", ref)
		}
		return Lead{}, db.MapError(err)
	}
	lead.Status = LeadStatus(status)
	return lead, nil
}

// MarkClosed closes the lead if it is not closed already. The condition in
// the update makes the closure exactly-once without a read-modify-write.
func (r *Repository) MarkClosed(ctx context.Context, ref string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET status = 'CLOSED', closed_at = NOW()
		WHERE ref = $1 AND status <> 'CLOSED'
	`, ref)
	if err != nil {
		return false, db.MapError(err)
	}
	return tag.RowsAffected() > 0, nil
}
