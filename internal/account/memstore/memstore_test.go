package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumenkit/identity-core/internal/account/entity"
)

func TestUniqueConstraints(t *testing.T) {
	store := New()
	ctx := context.Background()

	gid := "g1"
	a := &entity.Account{ID: 1, Email: "a@x.com", GoogleID: &gid, CreatedAt: time.Now()}
	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	dupEmail := &entity.Account{ID: 2, Email: "a@x.com", CreatedAt: time.Now()}
	if err := store.Create(ctx, dupEmail); !errors.Is(err, entity.ErrDuplicateAccount) {
		t.Fatalf("expected duplicate email rejection, got %v", err)
	}

	dupProvider := &entity.Account{ID: 3, Email: "b@x.com", GoogleID: &gid, CreatedAt: time.Now()}
	if err := store.Create(ctx, dupProvider); !errors.Is(err, entity.ErrDuplicateAccount) {
		t.Fatalf("expected duplicate provider-id rejection, got %v", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	store := New()
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx entity.Store) error {
		if err := tx.Create(ctx, &entity.Account{ID: 1, Email: "a@x.com", CreatedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.FindByEmail(ctx, "a@x.com"); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("expected rollback, found row: %v", err)
	}
}

func TestFindReturnsClones(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Create(ctx, &entity.Account{ID: 1, Email: "a@x.com", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	a, err := store.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	a.Email = "mutated@x.com"

	b, err := store.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if b.Email != "a@x.com" {
		t.Fatalf("stored row mutated through returned pointer: %q", b.Email)
	}
}

func TestSaveProviderLinkLeavesOtherColumnsAlone(t *testing.T) {
	store := New()
	ctx := context.Background()

	token := "tok"
	expires := time.Now().Add(time.Hour)
	hash := "old-hash"
	a := &entity.Account{
		ID: 1, Email: "a@x.com", PasswordHash: &hash,
		ResetToken: &token, ResetTokenExpiresAt: &expires, CreatedAt: time.Now(),
	}
	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	// a linker that read the row while the reset token was still pending
	stale, err := store.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := store.ConsumePasswordReset(ctx, 1, token, "new-hash", time.Now()); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := store.SaveProviderLink(ctx, stale.ID, entity.ProviderGoogle, "g1", nil, time.Now()); err != nil {
		t.Fatalf("link: %v", err)
	}

	got, err := store.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("find after link: %v", err)
	}
	if got.ResetToken != nil {
		t.Fatalf("link restored consumed reset token %q", *got.ResetToken)
	}
	if got.PasswordHash == nil || *got.PasswordHash != "new-hash" {
		t.Fatal("link overwrote the new password hash")
	}
	if got.GoogleID == nil || *got.GoogleID != "g1" {
		t.Fatal("expected provider link applied")
	}
}

func TestConsumePasswordResetSingleUse(t *testing.T) {
	store := New()
	ctx := context.Background()

	token := "tok"
	expires := time.Now().Add(time.Hour)
	a := &entity.Account{ID: 1, Email: "a@x.com", ResetToken: &token, ResetTokenExpiresAt: &expires, CreatedAt: time.Now()}
	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.ConsumePasswordReset(ctx, 1, token, "first", time.Now()); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := store.ConsumePasswordReset(ctx, 1, token, "second", time.Now()); !errors.Is(err, entity.ErrInvalidToken) {
		t.Fatalf("expected second consume to fail, got %v", err)
	}
	got, err := store.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.PasswordHash == nil || *got.PasswordHash != "first" {
		t.Fatal("second consume overwrote the password hash")
	}
}

func TestSaveProviderLinkRejectsClaimedID(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Create(ctx, &entity.Account{ID: 1, Email: "a@x.com", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &entity.Account{ID: 2, Email: "b@x.com", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.SaveProviderLink(ctx, 1, entity.ProviderGoogle, "g1", nil, time.Now()); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if err := store.SaveProviderLink(ctx, 2, entity.ProviderGoogle, "g1", nil, time.Now()); !errors.Is(err, entity.ErrDuplicateAccount) {
		t.Fatalf("expected duplicate provider-id rejection, got %v", err)
	}
}
