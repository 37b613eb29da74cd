package repository // repository for discount code persistence

import (
	"context"
	"database/sql"

	"github.com/entradaslive/ticketing-core/internal/model"
)

// DiscountRepo encapsulates database operations for the descuentos
// table.  It implements the discount engine's CodeSource.
type DiscountRepo struct {
	db *sql.DB
}

// NewDiscountRepo constructs a DiscountRepo given a DB handle.
func NewDiscountRepo(db *sql.DB) *DiscountRepo { return &DiscountRepo{db: db} }

// GetByCode looks a discount up by its code string.  found is false
// when no such code exists; err is reserved for database failures.
func (r *DiscountRepo) GetByCode(ctx context.Context, code string) (model.DiscountCode, bool, error) {
	const q = `SELECT id, codigo, fecha_inicio, fecha_final, tipo, valor, max_usos, usos, created_at, updated_at
        FROM descuentos WHERE codigo = ?`
	var d model.DiscountCode
	err := r.db.QueryRowContext(ctx, q, code).Scan(
		&d.ID, &d.Code, &d.ValidFrom, &d.ValidTo, &d.Rule, &d.Value, &d.MaxUses, &d.Uses, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return model.DiscountCode{}, false, nil
	}
	if err != nil {
		return model.DiscountCode{}, false, err
	}
	return d, true, nil
}

// RegisterUse bumps the usage counter, guarded by the cap in the
// same statement so two concurrent redemptions cannot overshoot it.
// Returns ErrUsageCapReached when the cap would be exceeded.
func (r *DiscountRepo) RegisterUse(ctx context.Context, id uint64) error {
	const q = `UPDATE descuentos SET usos = usos + 1
        WHERE id = ? AND (max_usos = 0 OR usos < max_usos)`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUsageCapReached
	}
	return nil
}

// Create inserts a new discount code.
func (r *DiscountRepo) Create(ctx context.Context, d *model.DiscountCode) error {
	const q = `INSERT INTO descuentos (codigo, fecha_inicio, fecha_final, tipo, valor, max_usos, usos)
        VALUES (?, ?, ?, ?, ?, ?, 0)`
	res, err := r.db.ExecContext(ctx, q,
		d.Code, d.ValidFrom.UTC().Format(dbTime), d.ValidTo.UTC().Format(dbTime),
		string(d.Rule), d.Value, d.MaxUses,
	)
	if err != nil {
		return err
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(lastID)
	return nil
}
