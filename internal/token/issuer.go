// Package token mints and parses signed session tokens and manages
// opaque refresh tokens. The signing secret is process configuration;
// this package never generates key material.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumenkit/identity-core/internal/account/entity"
	"github.com/lumenkit/identity-core/internal/token/repo"
)

const defaultRefreshTTL = 30 * 24 * time.Hour

// Claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	Email     string   `json:"email"`
	Username  string   `json:"username,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Roles     []string `json:"roles"`
}

// Issuer signs session tokens with a process-configured HMAC secret
// and persists opaque refresh tokens.
type Issuer struct {
	secret     []byte
	issuer     string
	ttl        time.Duration
	refreshTTL time.Duration
	refresh    *repo.RefreshRepo
	now        func() time.Time
}

func NewIssuer(secret []byte, issuer string, ttl time.Duration, refresh *repo.RefreshRepo) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		secret:     secret,
		issuer:     issuer,
		ttl:        ttl,
		refreshTTL: defaultRefreshTTL,
		refresh:    refresh,
		now:        time.Now,
	}, nil
}

// Issue mints a signed session token for the account.
func (i *Issuer) Issue(a *entity.Account) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(a.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Email: a.Email,
		Roles: a.EffectiveRoles(),
	}
	if a.Username != nil {
		claims.Username = *a.Username
	}
	if a.FirstName != nil {
		claims.FirstName = *a.FirstName
	}
	if a.LastName != nil {
		claims.LastName = *a.LastName
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a presented session token and returns its claims.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, entity.ErrTokenExpired
		}
		return nil, entity.ErrInvalidToken
	}
	return &claims, nil
}

// AccountID extracts the numeric subject.
func (c *Claims) AccountID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// IssueRefresh creates and persists an opaque refresh token bound to
// a username with a validity timestamp.
func (i *Issuer) IssueRefresh(ctx context.Context, username string) (string, error) {
	if i.refresh == nil {
		return "", errors.New("refresh store not configured")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := i.refresh.Save(ctx, token, username, i.now().Add(i.refreshTTL)); err != nil {
		return "", err
	}
	return token, nil
}

// ValidateRefresh checks an opaque refresh token and returns the
// bound username when the token exists and is still valid.
func (i *Issuer) ValidateRefresh(ctx context.Context, token string) (string, bool) {
	if i.refresh == nil {
		return "", false
	}
	username, valid, err := i.refresh.Get(ctx, token)
	if err != nil {
		return "", false
	}
	if valid.Before(i.now()) {
		return "", false
	}
	return username, true
}

// RevokeRefresh removes a refresh token from the store.
func (i *Issuer) RevokeRefresh(ctx context.Context, token string) error {
	if i.refresh == nil {
		return nil
	}
	return i.refresh.Delete(ctx, token)
}
