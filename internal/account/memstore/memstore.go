// Package memstore provides an in-memory entity.Store with the same
// uniqueness rules as the Postgres schema. It backs tests that need
// to exercise reconciliation and reset flows without a database.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/lumenkit/identity-core/internal/account/entity"
)

type Store struct {
	mu       sync.Mutex
	accounts map[int64]*entity.Account
}

func New() *Store {
	return &Store{accounts: make(map[int64]*entity.Account)}
}

var _ entity.Store = (*Store)(nil)

func (s *Store) FindByID(ctx context.Context, id int64) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(a *entity.Account) bool { return a.ID == id })
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(a *entity.Account) bool { return a.Email == email })
}

func (s *Store) FindByProviderID(ctx context.Context, provider entity.Provider, providerID string) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(a *entity.Account) bool {
		id := a.ProviderID(provider)
		return id != nil && *id == providerID
	})
}

func (s *Store) FindByResetToken(ctx context.Context, token string) (*entity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(func(a *entity.Account) bool {
		return a.ResetToken != nil && *a.ResetToken == token
	})
}

func (s *Store) Create(ctx context.Context, a *entity.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(a)
}

func (s *Store) SaveProviderLink(ctx context.Context, id int64, provider entity.Provider, providerID string, avatarURL *string, linkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveProviderLinkLocked(id, provider, providerID, avatarURL, linkedAt)
}

func (s *Store) SaveResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveResetTokenLocked(id, token, expiresAt)
}

func (s *Store) ConsumePasswordReset(ctx context.Context, id int64, token, passwordHash string, resetAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumePasswordResetLocked(id, token, passwordHash, resetAt)
}

// InTx serializes the whole callback under the store lock and restores
// a snapshot on error, mirroring transactional rollback.
func (s *Store) InTx(ctx context.Context, fn func(entity.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	if err := fn(&txStore{s: s}); err != nil {
		s.accounts = snap
		return err
	}
	return nil
}

// txStore runs against an already-locked Store.
type txStore struct{ s *Store }

func (t *txStore) FindByID(ctx context.Context, id int64) (*entity.Account, error) {
	return t.s.findLocked(func(a *entity.Account) bool { return a.ID == id })
}

func (t *txStore) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return t.s.findLocked(func(a *entity.Account) bool { return a.Email == email })
}

func (t *txStore) FindByProviderID(ctx context.Context, provider entity.Provider, providerID string) (*entity.Account, error) {
	return t.s.findLocked(func(a *entity.Account) bool {
		id := a.ProviderID(provider)
		return id != nil && *id == providerID
	})
}

func (t *txStore) FindByResetToken(ctx context.Context, token string) (*entity.Account, error) {
	return t.s.findLocked(func(a *entity.Account) bool {
		return a.ResetToken != nil && *a.ResetToken == token
	})
}

func (t *txStore) Create(ctx context.Context, a *entity.Account) error {
	return t.s.createLocked(a)
}

func (t *txStore) SaveProviderLink(ctx context.Context, id int64, provider entity.Provider, providerID string, avatarURL *string, linkedAt time.Time) error {
	return t.s.saveProviderLinkLocked(id, provider, providerID, avatarURL, linkedAt)
}

func (t *txStore) SaveResetToken(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	return t.s.saveResetTokenLocked(id, token, expiresAt)
}

func (t *txStore) ConsumePasswordReset(ctx context.Context, id int64, token, passwordHash string, resetAt time.Time) error {
	return t.s.consumePasswordResetLocked(id, token, passwordHash, resetAt)
}

func (t *txStore) InTx(ctx context.Context, fn func(entity.Store) error) error {
	return fn(t)
}

func (s *Store) findLocked(match func(*entity.Account) bool) (*entity.Account, error) {
	for _, a := range s.accounts {
		if match(a) {
			return clone(a), nil
		}
	}
	return nil, entity.ErrNotFound
}

func (s *Store) createLocked(a *entity.Account) error {
	if _, ok := s.accounts[a.ID]; ok {
		return entity.ErrDuplicateAccount
	}
	if err := s.checkUniqueLocked(a); err != nil {
		return err
	}
	s.accounts[a.ID] = clone(a)
	return nil
}

// saveProviderLinkLocked mutates only the link fields of the stored
// row, mirroring the column-targeted UPDATE of the SQL store.
func (s *Store) saveProviderLinkLocked(id int64, provider entity.Provider, providerID string, avatarURL *string, linkedAt time.Time) error {
	a, ok := s.accounts[id]
	if !ok {
		return entity.ErrNotFound
	}
	for _, other := range s.accounts {
		theirs := other.ProviderID(provider)
		if other.ID != id && theirs != nil && *theirs == providerID {
			return entity.ErrDuplicateAccount
		}
	}
	a.SetProviderID(provider, providerID)
	a.IsSocialLogin = true
	if a.AvatarURL == nil && avatarURL != nil {
		a.AvatarURL = cloneStr(avatarURL)
	}
	t := linkedAt
	a.UpdatedAt = &t
	return nil
}

func (s *Store) saveResetTokenLocked(id int64, token string, expiresAt time.Time) error {
	a, ok := s.accounts[id]
	if !ok {
		return entity.ErrNotFound
	}
	a.ResetToken = &token
	a.ResetTokenExpiresAt = &expiresAt
	return nil
}

// consumePasswordResetLocked refuses the write unless the stored
// token still matches, so a token consumed once stays consumed.
func (s *Store) consumePasswordResetLocked(id int64, token, passwordHash string, resetAt time.Time) error {
	a, ok := s.accounts[id]
	if !ok {
		return entity.ErrInvalidToken
	}
	if a.ResetToken == nil || *a.ResetToken != token {
		return entity.ErrInvalidToken
	}
	a.PasswordHash = &passwordHash
	a.ResetToken = nil
	a.ResetTokenExpiresAt = nil
	t := resetAt
	a.UpdatedAt = &t
	return nil
}

// checkUniqueLocked enforces the schema's unique constraints: email,
// username when present, and each provider id when present.
func (s *Store) checkUniqueLocked(a *entity.Account) error {
	for _, other := range s.accounts {
		if other.ID == a.ID {
			continue
		}
		if other.Email == a.Email {
			return entity.ErrDuplicateAccount
		}
		if a.Username != nil && other.Username != nil && *a.Username == *other.Username {
			return entity.ErrDuplicateAccount
		}
		for _, p := range []entity.Provider{entity.ProviderGoogle, entity.ProviderFacebook, entity.ProviderApple} {
			mine, theirs := a.ProviderID(p), other.ProviderID(p)
			if mine != nil && theirs != nil && *mine == *theirs {
				return entity.ErrDuplicateAccount
			}
		}
	}
	return nil
}

func (s *Store) snapshotLocked() map[int64]*entity.Account {
	snap := make(map[int64]*entity.Account, len(s.accounts))
	for id, a := range s.accounts {
		snap[id] = clone(a)
	}
	return snap
}

func clone(a *entity.Account) *entity.Account {
	c := *a
	c.Username = cloneStr(a.Username)
	c.PasswordHash = cloneStr(a.PasswordHash)
	c.FirstName = cloneStr(a.FirstName)
	c.LastName = cloneStr(a.LastName)
	c.PhoneNumber = cloneStr(a.PhoneNumber)
	c.GoogleID = cloneStr(a.GoogleID)
	c.FacebookID = cloneStr(a.FacebookID)
	c.AppleID = cloneStr(a.AppleID)
	c.AvatarURL = cloneStr(a.AvatarURL)
	c.ResetToken = cloneStr(a.ResetToken)
	if a.ResetTokenExpiresAt != nil {
		t := *a.ResetTokenExpiresAt
		c.ResetTokenExpiresAt = &t
	}
	if a.UpdatedAt != nil {
		t := *a.UpdatedAt
		c.UpdatedAt = &t
	}
	c.Roles = append([]string(nil), a.Roles...)
	return &c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
