package token

import (
	"errors"
	"testing"
	"time"

	"github.com/lumenkit/identity-core/internal/account/entity"
)

func testAccount() *entity.Account {
	username := "ada"
	first := "Ada"
	return &entity.Account{
		ID:        42,
		Email:     "a@x.com",
		Username:  &username,
		FirstName: &first,
		Roles:     []string{"admin"},
		CreatedAt: time.Now(),
	}
}

func TestIssueAndParse(t *testing.T) {
	issuer, err := NewIssuer([]byte("test-secret"), "identity-core", time.Hour, nil)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	signed, err := issuer.Issue(testAccount())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Parse(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	id, err := claims.AccountID()
	if err != nil || id != 42 {
		t.Fatalf("expected subject 42, got %v (%v)", claims.Subject, err)
	}
	if claims.Email != "a@x.com" {
		t.Fatalf("expected email claim, got %q", claims.Email)
	}
	if claims.Username != "ada" || claims.FirstName != "Ada" {
		t.Fatalf("expected name claims, got %q %q", claims.Username, claims.FirstName)
	}
	hasBase := false
	for _, r := range claims.Roles {
		if r == entity.BaseRole {
			hasBase = true
		}
	}
	if !hasBase {
		t.Fatalf("expected base role in claims, got %v", claims.Roles)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	a, _ := NewIssuer([]byte("secret-a"), "identity-core", time.Hour, nil)
	b, _ := NewIssuer([]byte("secret-b"), "identity-core", time.Hour, nil)

	signed, err := a.Issue(testAccount())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Parse(signed); !errors.Is(err, entity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	issuer, _ := NewIssuer([]byte("test-secret"), "identity-core", time.Hour, nil)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	signed, err := issuer.Issue(testAccount())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Parse(signed); !errors.Is(err, entity.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	issuer, _ := NewIssuer([]byte("test-secret"), "identity-core", time.Hour, nil)
	if _, err := issuer.Parse("not-a-token"); !errors.Is(err, entity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(nil, "identity-core", time.Hour, nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
