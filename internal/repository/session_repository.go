package repository // repository for session (función) persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entradaslive/ticketing-core/internal/model"
	"github.com/entradaslive/ticketing-core/internal/salewindow"
)

const dbTime = "2006-01-02 15:04:05"

// SessionRepo provides data access to the funciones table.  All
// timestamps are stored and compared in UTC; the DSN must carry
// parseTime=true&loc=UTC so DATETIME columns scan into time.Time
// consistently.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the provided database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions
// that span repositories.
func (r *SessionRepo) DB() *sql.DB { return r.db }

// Create validates the session's sale windows and inserts it.  The
// canales map is persisted as a JSON document.  Validation errors
// are returned as salewindow.ErrValidation wraps and nothing is
// written.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	if err := salewindow.Validate(*s); err != nil {
		return err
	}
	canales, err := json.Marshal(s.Channels)
	if err != nil {
		return err
	}
	const q = `INSERT INTO funciones
        (evento_id, sala_id, fecha_celebracion, zona_horaria, canales, misma_fecha_canales, tiempo_caducidad_reservas, activo)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		s.EventID, s.RoomID,
		s.CelebrationTime.UTC().Format(dbTime),
		s.Timezone, string(canales), s.SameDates,
		s.Release.StoredMinutes(), s.Active,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// Update validates and rewrites an existing session's configurable
// fields.  Returns ErrSessionNotFound when the row does not exist.
func (r *SessionRepo) Update(ctx context.Context, s *model.Session) error {
	if err := salewindow.Validate(*s); err != nil {
		return err
	}
	canales, err := json.Marshal(s.Channels)
	if err != nil {
		return err
	}
	const q = `UPDATE funciones
        SET fecha_celebracion = ?, zona_horaria = ?, canales = ?, misma_fecha_canales = ?, tiempo_caducidad_reservas = ?, activo = ?
        WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q,
		s.CelebrationTime.UTC().Format(dbTime),
		s.Timezone, string(canales), s.SameDates,
		s.Release.StoredMinutes(), s.Active, s.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession loads one session by ID.  The canales column may hold
// either a JSON document or a JSON document encoded once more as a
// string; both forms are accepted because older writers produced the
// double-encoded variant.
func (r *SessionRepo) GetSession(ctx context.Context, id uint64) (model.Session, error) {
	const q = `SELECT id, evento_id, sala_id, fecha_celebracion, zona_horaria, canales, misma_fecha_canales, tiempo_caducidad_reservas, activo, created_at, updated_at
        FROM funciones WHERE id = ?`
	var (
		s       model.Session
		canales []byte
		minutes int
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.EventID, &s.RoomID, &s.CelebrationTime, &s.Timezone,
		&canales, &s.SameDates, &minutes, &s.Active, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return model.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	s.Release = model.ReleasePolicyFromMinutes(minutes)
	s.Channels, err = decodeChannels(canales)
	if err != nil {
		return model.Session{}, fmt.Errorf("session %d: %w", id, err)
	}
	return s, nil
}

// ListUpcoming returns active sessions celebrating after the given
// instant, soonest first.  Used by the store surface to render which
// sessions are on sale.
func (r *SessionRepo) ListUpcoming(ctx context.Context, after time.Time) ([]model.Session, error) {
	const q = `SELECT id, evento_id, sala_id, fecha_celebracion, zona_horaria, canales, misma_fecha_canales, tiempo_caducidad_reservas, activo, created_at, updated_at
        FROM funciones WHERE activo = 1 AND fecha_celebracion > ? ORDER BY fecha_celebracion ASC`
	rows, err := r.db.QueryContext(ctx, q, after.UTC().Format(dbTime))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var (
			s       model.Session
			canales []byte
			minutes int
		)
		if err := rows.Scan(&s.ID, &s.EventID, &s.RoomID, &s.CelebrationTime, &s.Timezone,
			&canales, &s.SameDates, &minutes, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Release = model.ReleasePolicyFromMinutes(minutes)
		if s.Channels, err = decodeChannels(canales); err != nil {
			return nil, fmt.Errorf("session %d: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// decodeChannels parses the canales column, tolerating the
// double-encoded string form.
func decodeChannels(raw []byte) (map[string]model.ChannelWindow, error) {
	if len(raw) == 0 {
		return map[string]model.ChannelWindow{}, nil
	}
	var m map[string]model.ChannelWindow
	if err := json.Unmarshal(raw, &m); err == nil {
		return m, nil
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, fmt.Errorf("canales: not a JSON object or string")
	}
	if err := json.Unmarshal([]byte(inner), &m); err != nil {
		return nil, fmt.Errorf("canales: %w", err)
	}
	return m, nil
}
