package entity

import (
	"context"
	"time"
)

// Store is the durable account store contract. Lookups return
// ErrNotFound for absent rows. Create and SaveProviderLink return
// ErrDuplicateAccount when a uniqueness constraint (email, username,
// provider id) rejects the write.
//
// The writes are column-targeted on purpose: each mutation touches
// only the columns its flow owns, so two flows updating the same
// account concurrently never overwrite each other's columns with
// stale values read before the other committed.
type Store interface {
	FindByID(ctx context.Context, id int64) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByProviderID(ctx context.Context, provider Provider, providerID string) (*Account, error)
	FindByResetToken(ctx context.Context, token string) (*Account, error)
	Create(ctx context.Context, a *Account) error

	// SaveProviderLink sets one provider id column, marks the account
	// social, backfills the avatar only when the account has none and
	// touches updated_at. No other column is written.
	SaveProviderLink(ctx context.Context, id int64, provider Provider, providerID string, avatarURL *string, linkedAt time.Time) error

	// SaveResetToken stores a pending reset token, replacing any
	// prior one.
	SaveResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error

	// ConsumePasswordReset sets the password hash and clears the
	// reset token in one guarded write. It returns ErrInvalidToken
	// when the stored token no longer matches, so a token can never
	// be consumed twice even across concurrent callers.
	ConsumePasswordReset(ctx context.Context, id int64, token, passwordHash string, resetAt time.Time) error

	// InTx runs fn against a store bound to a single transaction.
	// Any error (or panic) rolls the transaction back entirely;
	// nil commits. Calling InTx on an already transactional store
	// reuses the open transaction.
	InTx(ctx context.Context, fn func(Store) error) error
}
