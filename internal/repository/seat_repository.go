package repository // repository for seat persistence

import (
	"context"
	"database/sql"

	"github.com/entradaslive/ticketing-core/internal/model"
)

// SeatRepo encapsulates database operations for the asientos table.
// Only terminal statuses (AVAILABLE, RESERVED, SOLD, BLOCKED) live
// here; live holds are the hold store's business.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo given a DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// GetSeat loads one seat of a session.
func (r *SeatRepo) GetSeat(ctx context.Context, sessionID, seatID uint64) (model.Seat, error) {
	const q = `SELECT id, funcion_id, zona_id, etiqueta, precio_cents, estado, created_at, updated_at
        FROM asientos WHERE funcion_id = ? AND id = ?`
	var s model.Seat
	err := r.db.QueryRowContext(ctx, q, sessionID, seatID).Scan(
		&s.ID, &s.SessionID, &s.ZoneID, &s.Label, &s.PriceCents, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return model.Seat{}, ErrSeatNotFound
	}
	if err != nil {
		return model.Seat{}, err
	}
	return s, nil
}

// ListBySession returns every seat of a session ordered by label, for
// rendering the seat map.
func (r *SeatRepo) ListBySession(ctx context.Context, sessionID uint64) ([]model.Seat, error) {
	const q = `SELECT id, funcion_id, zona_id, etiqueta, precio_cents, estado, created_at, updated_at
        FROM asientos WHERE funcion_id = ? ORDER BY etiqueta`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.SessionID, &s.ZoneID, &s.Label, &s.PriceCents, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateStatus sets the terminal status for the given seats of a
// session in one statement.  Passing no seat IDs has no effect.
func (r *SeatRepo) UpdateStatus(ctx context.Context, sessionID uint64, seatIDs []uint64, status model.SeatStatus) error {
	if len(seatIDs) == 0 {
		return nil
	}
	q := `UPDATE asientos SET estado = ? WHERE funcion_id = ? AND id IN (`
	args := make([]interface{}, 0, len(seatIDs)+2)
	args = append(args, string(status), sessionID)
	for i, id := range seatIDs {
		if i > 0 {
			q += ","
		}
		q += "?"
		args = append(args, id)
	}
	q += ")"
	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}

// CreateBulk inserts multiple seats in one statement.  Each row
// requires funcion_id, zona_id, etiqueta, precio_cents and estado;
// timestamps default in the DB.  The ID fields of the passed
// structures are not populated.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	q := `INSERT INTO asientos (funcion_id, zona_id, etiqueta, precio_cents, estado) VALUES `
	args := make([]interface{}, 0, len(seats)*5)
	for i, s := range seats {
		if i > 0 {
			q += ","
		}
		q += "(?, ?, ?, ?, ?)"
		status := s.Status
		if status == "" {
			status = model.SeatAvailable
		}
		args = append(args, s.SessionID, s.ZoneID, s.Label, s.PriceCents, string(status))
	}
	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}
