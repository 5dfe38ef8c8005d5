package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tgforward-web/internal/model"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Load(ctx context.Context, id string) (model.SessionRecord, error) {
	rec := model.SessionRecord{ID: id}
	err := r.pool.QueryRow(ctx,
		`SELECT data, expires_at, updated_at FROM sessions
		 WHERE id = $1 AND expires_at > now()`, id).Scan(&rec.Data, &rec.ExpiresAt, &rec.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.SessionRecord{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("load session: %w", err)
	}
	return rec, nil
}

func (r *SessionRepository) Save(ctx context.Context, rec model.SessionRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, data, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Data, rec.ExpiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("clean expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
