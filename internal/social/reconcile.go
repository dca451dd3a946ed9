package social

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lumenkit/identity-core/internal/account/entity"
	"github.com/lumenkit/identity-core/pkg/utilities"
)

// Reconciler unifies a verified external profile with exactly one
// account: find by provider id, else link by email, else create.
type Reconciler struct {
	store  entity.Store
	logger *zap.SugaredLogger
	now    func() time.Time
	newID  func() int64
}

func NewReconciler(store entity.Store, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  utilities.NewSnowflakeInt64,
	}
}

// Reconcile runs the find-or-create-or-link algorithm atomically.
// fallback supplies creation-time names for providers that omit them
// from the token (Apple); it never overrides existing data.
//
// The store's unique constraints are the backstop against concurrent
// reconciliations for the same new identity: a constraint violation
// rolls the transaction back and surfaces as a ProviderError wrapping
// ErrDuplicateAccount, after which retrying the whole call is safe
// because the provider-id lookup will find the winning row.
func (r *Reconciler) Reconcile(ctx context.Context, p *entity.Profile, fallback *entity.NamePayload) (*entity.Account, error) {
	if !p.Provider.Valid() {
		return nil, &entity.ProviderError{Provider: p.Provider, Detail: "unsupported provider"}
	}

	var out *entity.Account
	err := r.store.InTx(ctx, func(tx entity.Store) error {
		linked, err := tx.FindByProviderID(ctx, p.Provider, p.ProviderID)
		if err == nil {
			// already linked, no mutation
			out = linked
			return nil
		}
		if !errors.Is(err, entity.ErrNotFound) {
			return err
		}

		if p.Email == "" {
			return &entity.MissingEmailError{Provider: p.Provider}
		}

		existing, err := tx.FindByEmail(ctx, p.Email)
		if err == nil {
			out, err = r.link(ctx, tx, existing, p)
			return err
		}
		if !errors.Is(err, entity.ErrNotFound) {
			return err
		}

		out, err = r.create(ctx, tx, p, fallback)
		return err
	})
	if err != nil {
		var missing *entity.MissingEmailError
		if errors.As(err, &missing) {
			return nil, err
		}
		var perr *entity.ProviderError
		if errors.As(err, &perr) {
			return nil, err
		}
		r.logger.Warnw("reconciliation failed", "provider", p.Provider, "err", err)
		return nil, &entity.ProviderError{Provider: p.Provider, Detail: "reconciliation failed", Err: err}
	}
	return out, nil
}

// link merges the provider identity into an existing account matched
// by email. Avatar is backfilled only when the account has none. The
// write targets only the link columns; columns owned by the password
// and reset flows are never part of it, so a link racing either flow
// cannot restore values from a stale read.
func (r *Reconciler) link(ctx context.Context, tx entity.Store, a *entity.Account, p *entity.Profile) (*entity.Account, error) {
	now := r.now()
	if err := tx.SaveProviderLink(ctx, a.ID, p.Provider, p.ProviderID, optional(p.AvatarURL), now); err != nil {
		return nil, err
	}
	a.SetProviderID(p.Provider, p.ProviderID)
	a.IsSocialLogin = true
	if a.AvatarURL == nil && p.AvatarURL != "" {
		url := p.AvatarURL
		a.AvatarURL = &url
	}
	a.UpdatedAt = &now
	r.logger.Infow("linked provider to existing account",
		"provider", p.Provider, "account_id", a.ID)
	return a, nil
}

func (r *Reconciler) create(ctx context.Context, tx entity.Store, p *entity.Profile, fallback *entity.NamePayload) (*entity.Account, error) {
	first, last := p.FirstName, p.LastName
	if first == "" && fallback != nil {
		first = fallback.FirstName
	}
	if last == "" && fallback != nil {
		last = fallback.LastName
	}
	a := &entity.Account{
		ID:            r.newID(),
		Email:         p.Email,
		FirstName:     optional(first),
		LastName:      optional(last),
		AvatarURL:     optional(p.AvatarURL),
		IsSocialLogin: true,
		CreatedAt:     r.now(),
	}
	a.SetProviderID(p.Provider, p.ProviderID)
	if err := tx.Create(ctx, a); err != nil {
		return nil, err
	}
	r.logger.Infow("created account from provider profile",
		"provider", p.Provider, "account_id", a.ID)
	return a, nil
}

// Connect links a provider identity onto an already-authenticated
// account. A pair claimed by a different account is refused with
// ErrDuplicateAccount.
func (r *Reconciler) Connect(ctx context.Context, accountID int64, p *entity.Profile) (*entity.Account, error) {
	if !p.Provider.Valid() {
		return nil, &entity.ProviderError{Provider: p.Provider, Detail: "unsupported provider"}
	}

	var out *entity.Account
	err := r.store.InTx(ctx, func(tx entity.Store) error {
		linked, err := tx.FindByProviderID(ctx, p.Provider, p.ProviderID)
		if err == nil {
			if linked.ID != accountID {
				return entity.ErrDuplicateAccount
			}
			out = linked
			return nil
		}
		if !errors.Is(err, entity.ErrNotFound) {
			return err
		}

		a, err := tx.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		out, err = r.link(ctx, tx, a, p)
		return err
	})
	if err != nil {
		if errors.Is(err, entity.ErrDuplicateAccount) || errors.Is(err, entity.ErrNotFound) {
			return nil, err
		}
		return nil, &entity.ProviderError{Provider: p.Provider, Detail: "connect failed", Err: err}
	}
	return out, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
