package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lumenkit/identity-core/internal/account/entity"
	"github.com/lumenkit/identity-core/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can
// swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation. Verification is bcrypt's constant-time
// comparison; plaintext never leaves this type.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Service orchestrates account lifecycle and password authentication.
type Service struct {
	store  entity.Store
	hasher PasswordHasher
	now    func() time.Time
}

func NewService(store entity.Store, hasher PasswordHasher) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &Service{store: store, hasher: hasher, now: time.Now}
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email       string
	Username    string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
}

// Register creates a password account. A taken email surfaces as
// entity.ErrDuplicateAccount; the store's unique constraint backstops
// the pre-check under concurrency.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.Account, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, errors.New("email and password required")
	}
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, entity.ErrDuplicateAccount
	} else if !errors.Is(err, entity.ErrNotFound) {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	a := &entity.Account{
		ID:           utilities.NewSnowflakeInt64(),
		Email:        email,
		PasswordHash: &hash,
		FirstName:    optional(in.FirstName),
		LastName:     optional(in.LastName),
		PhoneNumber:  optional(in.PhoneNumber),
		Username:     optional(in.Username),
		CreatedAt:    s.now(),
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// AuthenticatePassword checks a password against the stored hash.
// Unknown account, social-only account and wrong password are
// indistinguishable to the caller: all return ErrInvalidCredentials.
func (s *Service) AuthenticatePassword(ctx context.Context, email, password string) (*entity.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, entity.ErrInvalidCredentials
	}
	a, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, entity.ErrInvalidCredentials
		}
		return nil, err
	}
	if a.PasswordHash == nil || *a.PasswordHash == "" {
		return nil, entity.ErrInvalidCredentials
	}
	if !s.hasher.Verify(*a.PasswordHash, password) {
		return nil, entity.ErrInvalidCredentials
	}
	return a, nil
}

// Profile returns the account for claims display.
func (s *Service) Profile(ctx context.Context, id int64) (*entity.Account, error) {
	return s.store.FindByID(ctx, id)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
