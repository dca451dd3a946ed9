package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lumenkit/identity-core/internal/account/entity"
)

// uniqueViolation is the Postgres error code raised when a unique
// constraint rejects a write. The constraints on accounts (email,
// username, provider ids) are the final backstop against
// reconciliation races.
const uniqueViolation = "23505"

const accountColumns = `id, email, username, password_hash, roles,
	first_name, last_name, phone_number,
	google_id, facebook_id, apple_id, avatar_url, is_social_login,
	reset_token, reset_token_expires_at, created_at, updated_at`

// providerColumn maps a provider tag to its id column. Only values
// from this map ever reach query text.
var providerColumn = map[entity.Provider]string{
	entity.ProviderGoogle:   "google_id",
	entity.ProviderFacebook: "facebook_id",
	entity.ProviderApple:    "apple_id",
}

// AccountRepo provides data access for the accounts table using sqlx.
// It implements entity.Store against either the root connection pool
// or, inside InTx, a single transaction.
type AccountRepo struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo {
	return &AccountRepo{db: db, ext: db}
}

var _ entity.Store = (*AccountRepo)(nil)

// InTx runs fn against a repo bound to one transaction. Rollback is
// guaranteed on error or panic; nil commits.
func (r *AccountRepo) InTx(ctx context.Context, fn func(entity.Store) error) error {
	if _, ok := r.ext.(*sqlx.Tx); ok {
		// already transactional, reuse the open transaction
		return fn(r)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&AccountRepo{db: r.db, ext: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapWriteErr(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (r *AccountRepo) FindByID(ctx context.Context, id int64) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return r.getOne(ctx, q, id)
}

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE email=$1`
	return r.getOne(ctx, q, email)
}

func (r *AccountRepo) FindByProviderID(ctx context.Context, provider entity.Provider, providerID string) (*entity.Account, error) {
	col, ok := providerColumn[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + col + `=$1`
	return r.getOne(ctx, q, providerID)
}

func (r *AccountRepo) FindByResetToken(ctx context.Context, token string) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE reset_token=$1`
	return r.getOne(ctx, q, token)
}

func (r *AccountRepo) getOne(ctx context.Context, query string, arg any) (*entity.Account, error) {
	var row entity.Account
	if err := sqlx.GetContext(ctx, r.ext, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	if err := decodeRoles(&row); err != nil {
		return nil, err
	}
	return &row, nil
}

// Create inserts a new account row. The caller assigns the id.
func (r *AccountRepo) Create(ctx context.Context, a *entity.Account) error {
	if err := encodeRoles(a); err != nil {
		return err
	}
	const q = `INSERT INTO accounts (id, email, username, password_hash, roles,
		first_name, last_name, phone_number,
		google_id, facebook_id, apple_id, avatar_url, is_social_login,
		reset_token, reset_token_expires_at, created_at, updated_at)
	VALUES (:id, :email, :username, :password_hash, :roles,
		:first_name, :last_name, :phone_number,
		:google_id, :facebook_id, :apple_id, :avatar_url, :is_social_login,
		:reset_token, :reset_token_expires_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, q, a); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

// SaveProviderLink writes only the provider id column, the social
// flag, the avatar backfill and updated_at. Columns owned by other
// flows (password hash, reset token) are never part of the statement,
// so a link racing another writer cannot restore their stale values.
func (r *AccountRepo) SaveProviderLink(ctx context.Context, id int64, provider entity.Provider, providerID string, avatarURL *string, linkedAt time.Time) error {
	col, ok := providerColumn[provider]
	if !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}
	q := `UPDATE accounts SET ` + col + `=$1, is_social_login=TRUE,
		avatar_url=COALESCE(avatar_url, $2), updated_at=$3
	WHERE id=$4`
	res, err := r.ext.ExecContext(ctx, q, providerID, avatarURL, linkedAt, id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// SaveResetToken replaces the pending reset token, if any.
func (r *AccountRepo) SaveResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	const q = `UPDATE accounts SET reset_token=$1, reset_token_expires_at=$2 WHERE id=$3`
	res, err := r.ext.ExecContext(ctx, q, token, expiresAt, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// ConsumePasswordReset guards the write on the stored token still
// matching, which makes consumption single-use even when two callers
// read the same token before either committed.
func (r *AccountRepo) ConsumePasswordReset(ctx context.Context, id int64, token, passwordHash string, resetAt time.Time) error {
	const q = `UPDATE accounts SET password_hash=$1, reset_token=NULL,
		reset_token_expires_at=NULL, updated_at=$2
	WHERE id=$3 AND reset_token=$4`
	res, err := r.ext.ExecContext(ctx, q, passwordHash, resetAt, id, token)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrInvalidToken
	}
	return nil
}

func encodeRoles(a *entity.Account) error {
	raw, err := json.Marshal(a.Roles)
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	a.RolesRaw = string(raw)
	return nil
}

func decodeRoles(a *entity.Account) error {
	if a.RolesRaw == "" {
		a.Roles = nil
		return nil
	}
	if err := json.Unmarshal([]byte(a.RolesRaw), &a.Roles); err != nil {
		return fmt.Errorf("decode roles: %w", err)
	}
	return nil
}

func mapWriteErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return entity.ErrDuplicateAccount
	}
	return err
}
