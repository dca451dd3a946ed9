package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// RefreshRepo persists opaque refresh tokens. Schema (see
// pkg/database/migrations): refresh_tokens(id, refresh_token unique,
// username, valid).
type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

func (r *RefreshRepo) Save(ctx context.Context, token, username string, valid time.Time) error {
	const q = `INSERT INTO refresh_tokens (refresh_token, username, valid) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, q, token, username, valid)
	return err
}

func (r *RefreshRepo) Get(ctx context.Context, token string) (string, time.Time, error) {
	const q = `SELECT username, valid FROM refresh_tokens WHERE refresh_token = $1`
	var username string
	var valid time.Time
	row := r.db.QueryRowxContext(ctx, q, token)
	if err := row.Scan(&username, &valid); err != nil {
		return "", time.Time{}, err
	}
	return username, valid, nil
}

func (r *RefreshRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE refresh_token = $1`, token)
	return err
}
