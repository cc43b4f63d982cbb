package orders

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepo stores table sessions opened by staff when guests sit down.
type SessionRepo struct{ DB *pgxpool.Pool }

func (r *SessionRepo) Get(ctx context.Context, id string) (Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, ErrInvalidSession
	}
	var s Session
	err := r.DB.QueryRow(ctx, `
		SELECT session_id::text, table_number, is_active, created_at
		FROM order_sessions WHERE session_id = $1`, id).Scan(&s.ID, &s.TableNumber, &s.Active, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrInvalidSession
	}
	return s, err
}

func (r *SessionRepo) Open(ctx context.Context, table int) (Session, error) {
	s := Session{ID: uuid.NewString(), TableNumber: table, Active: true}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO order_sessions(session_id, table_number, is_active)
		VALUES ($1, $2, TRUE) RETURNING created_at`, s.ID, table).Scan(&s.CreatedAt)
	return s, err
}

func (r *SessionRepo) Deactivate(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidSession
	}
	ct, err := r.DB.Exec(ctx, `UPDATE order_sessions SET is_active = FALSE WHERE session_id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrInvalidSession
	}
	return nil
}
