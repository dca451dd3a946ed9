package entity

import (
	"testing"
	"time"
)

func TestEffectiveRolesAlwaysIncludesBase(t *testing.T) {
	a := &Account{}
	roles := a.EffectiveRoles()
	if len(roles) != 1 || roles[0] != BaseRole {
		t.Fatalf("expected [%s], got %v", BaseRole, roles)
	}

	a.Roles = []string{"admin", BaseRole, "admin"}
	roles = a.EffectiveRoles()
	if len(roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", roles)
	}
}

func TestProviderIDAccessors(t *testing.T) {
	a := &Account{}
	for _, p := range []Provider{ProviderGoogle, ProviderFacebook, ProviderApple} {
		if a.ProviderID(p) != nil {
			t.Fatalf("expected nil id for %s", p)
		}
		a.SetProviderID(p, "x-"+string(p))
		got := a.ProviderID(p)
		if got == nil || *got != "x-"+string(p) {
			t.Fatalf("expected id set for %s, got %v", p, got)
		}
	}
}

func TestProviderValid(t *testing.T) {
	if !ProviderGoogle.Valid() || !ProviderFacebook.Valid() || !ProviderApple.Valid() {
		t.Fatal("expected supported providers to be valid")
	}
	if Provider("github").Valid() {
		t.Fatal("expected unknown provider to be invalid")
	}
}

func TestHasValidResetToken(t *testing.T) {
	now := time.Now()
	a := &Account{}
	if a.HasValidResetToken(now) {
		t.Fatal("no token stored")
	}
	tok := "abc"
	future := now.Add(time.Hour)
	a.ResetToken = &tok
	a.ResetTokenExpiresAt = &future
	if !a.HasValidResetToken(now) {
		t.Fatal("expected valid token")
	}
	past := now.Add(-time.Minute)
	a.ResetTokenExpiresAt = &past
	if a.HasValidResetToken(now) {
		t.Fatal("expected expired token to be invalid")
	}
}
