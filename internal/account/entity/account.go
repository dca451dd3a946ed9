package entity

import "time"

// BaseRole is carried by every account whether or not the stored
// role set lists it.
const BaseRole = "user"

// Provider identifies an external identity provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
	ProviderApple    Provider = "apple"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderFacebook, ProviderApple:
		return true
	}
	return false
}

// Account represents a row in the `accounts` table. Optional columns
// are pointers so absence survives the round trip to the store.
type Account struct {
	ID                  int64      `db:"id"`
	Email               string     `db:"email"`
	Username            *string    `db:"username"`
	PasswordHash        *string    `db:"password_hash"`
	Roles               []string   `db:"-"`
	RolesRaw            string     `db:"roles"` // JSON column
	FirstName           *string    `db:"first_name"`
	LastName            *string    `db:"last_name"`
	PhoneNumber         *string    `db:"phone_number"`
	GoogleID            *string    `db:"google_id"`
	FacebookID          *string    `db:"facebook_id"`
	AppleID             *string    `db:"apple_id"`
	AvatarURL           *string    `db:"avatar_url"`
	IsSocialLogin       bool       `db:"is_social_login"`
	ResetToken          *string    `db:"reset_token"`
	ResetTokenExpiresAt *time.Time `db:"reset_token_expires_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           *time.Time `db:"updated_at"`
}

// EffectiveRoles returns the stored roles with the base role
// guaranteed present, deduplicated.
func (a *Account) EffectiveRoles() []string {
	out := make([]string, 0, len(a.Roles)+1)
	seen := map[string]bool{}
	for _, r := range append(append([]string{}, a.Roles...), BaseRole) {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// ProviderID returns the stored external id for the given provider.
func (a *Account) ProviderID(p Provider) *string {
	switch p {
	case ProviderGoogle:
		return a.GoogleID
	case ProviderFacebook:
		return a.FacebookID
	case ProviderApple:
		return a.AppleID
	}
	return nil
}

// SetProviderID links an external id onto the account.
func (a *Account) SetProviderID(p Provider, id string) {
	switch p {
	case ProviderGoogle:
		a.GoogleID = &id
	case ProviderFacebook:
		a.FacebookID = &id
	case ProviderApple:
		a.AppleID = &id
	}
}

// HasValidResetToken reports whether a pending reset token is stored
// and not yet past its expiry at the given instant.
func (a *Account) HasValidResetToken(now time.Time) bool {
	return a.ResetToken != nil && a.ResetTokenExpiresAt != nil && a.ResetTokenExpiresAt.After(now)
}

// Profile is the verified external-identity profile consumed by
// reconciliation. Email may be empty; Apple omits it on repeat
// token exchanges.
type Profile struct {
	Provider   Provider
	ProviderID string
	Email      string
	FirstName  string
	LastName   string
	AvatarURL  string
}

// NamePayload is the client-supplied fallback name data for providers
// that omit profile names from the token (Apple). Consumed only when
// creating a new account, never to override existing data.
type NamePayload struct {
	FirstName string
	LastName  string
}
