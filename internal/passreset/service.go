// Package passreset implements single-use, time-boxed password reset
// tokens. Expiry is checked lazily at validate/consume time; nothing
// here sweeps expired tokens.
package passreset

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumenkit/identity-core/internal/account"
	"github.com/lumenkit/identity-core/internal/account/entity"
)

// DefaultTTL is the reset-token validity window.
const DefaultTTL = time.Hour

// tokenBytes gives 256 bits of entropy, hex-encoded to 64 chars.
const tokenBytes = 32

type Service struct {
	store  entity.Store
	hasher account.PasswordHasher
	logger *zap.SugaredLogger
	ttl    time.Duration
	now    func() time.Time
}

func NewService(store entity.Store, hasher account.PasswordHasher, logger *zap.SugaredLogger, ttl time.Duration) *Service {
	if hasher == nil {
		hasher = account.BcryptHasher{Cost: 12}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, hasher: hasher, logger: logger, ttl: ttl, now: time.Now}
}

// Request issues a reset token for the account holding email. An
// unknown email reports success with an empty token and performs no
// mutation, so callers cannot probe for account existence. A prior
// pending token is overwritten; only one reset is active per account.
func (s *Service) Request(ctx context.Context, email string) (string, error) {
	a, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	expires := s.now().Add(s.ttl)
	if err := s.store.SaveResetToken(ctx, a.ID, token, expires); err != nil {
		return "", err
	}
	s.logger.Infow("password reset token issued", "account_id", a.ID)
	return token, nil
}

// Validate is a side-effect-free check of a presented token. The
// token is not cleared on validation failure or success; only
// consumption clears it.
func (s *Service) Validate(ctx context.Context, token string) error {
	_, err := s.lookup(ctx, token)
	return err
}

// Consume resets the password for the account holding the token and
// clears the token in the same guarded write, so a consumed or
// cleared token fails a second time with ErrInvalidToken even when
// the second caller read the token before the first one finished.
func (s *Service) Consume(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return errors.New("password required")
	}
	a, err := s.lookup(ctx, token)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.ConsumePasswordReset(ctx, a.ID, token, hash, s.now()); err != nil {
		return err
	}
	s.logger.Infow("password reset consumed", "account_id", a.ID)
	return nil
}

func (s *Service) lookup(ctx context.Context, token string) (*entity.Account, error) {
	if token == "" {
		return nil, entity.ErrInvalidToken
	}
	a, err := s.store.FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, entity.ErrInvalidToken
		}
		return nil, err
	}
	if !a.HasValidResetToken(s.now()) {
		return nil, entity.ErrTokenExpired
	}
	return a, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
