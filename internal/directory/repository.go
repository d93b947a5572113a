package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-crm/meridian-crm/internal/platform/db"
	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Repository reads the employee projection table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetEmployee retrieves one employee by id.
func (r *Repository) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	var emp Employee
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, role, active
		FROM employees
		WHERE id = $1
	`, id).Scan(&emp.ID, &emp.Name, &emp.Role, &emp.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, shared.Ef(shared.ErrNotFound, "employee %d not found", id)
		}
		return Employee{}, db.MapError(err)
	}
	return emp, nil
}
