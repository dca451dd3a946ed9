package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/lumenkit/identity-core/internal/account/entity"
)

// ProfileFetcher resolves an opaque provider token into a verified
// external profile. Failures surface as *entity.ProviderError.
type ProfileFetcher interface {
	Fetch(ctx context.Context, provider entity.Provider, accessToken string) (*entity.Profile, error)
}

const (
	googleIssuer = "https://accounts.google.com"
	appleIssuer  = "https://appleid.apple.com"

	defaultGraphURL = "https://graph.facebook.com/v19.0"
)

// GatewayConfig holds per-provider verification settings.
type GatewayConfig struct {
	GoogleClientID   string
	AppleClientID    string
	FacebookGraphURL string
	HTTPTimeout      time.Duration
}

// Gateway verifies Google and Apple tokens as OIDC ID tokens against
// each provider's discovery document, and resolves Facebook tokens
// through the Graph API.
type Gateway struct {
	google *oidc.IDTokenVerifier
	apple  *oidc.IDTokenVerifier
	graph  string
	client *http.Client
}

var _ ProfileFetcher = (*Gateway)(nil)

func NewGateway(ctx context.Context, cfg GatewayConfig) (*Gateway, error) {
	g := &Gateway{graph: cfg.FacebookGraphURL}
	if g.graph == "" {
		g.graph = defaultGraphURL
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	g.client = &http.Client{Timeout: timeout}

	var err error
	if g.google, err = newVerifier(ctx, googleIssuer, cfg.GoogleClientID); err != nil {
		return nil, fmt.Errorf("google provider: %w", err)
	}
	if g.apple, err = newVerifier(ctx, appleIssuer, cfg.AppleClientID); err != nil {
		return nil, fmt.Errorf("apple provider: %w", err)
	}
	return g, nil
}

func newVerifier(ctx context.Context, issuer, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	cfg := &oidc.Config{ClientID: clientID}
	if clientID == "" {
		cfg = &oidc.Config{SkipClientIDCheck: true}
	}
	return provider.Verifier(cfg), nil
}

func (g *Gateway) Fetch(ctx context.Context, provider entity.Provider, accessToken string) (*entity.Profile, error) {
	switch provider {
	case entity.ProviderGoogle:
		return g.fetchIDToken(ctx, g.google, entity.ProviderGoogle, accessToken)
	case entity.ProviderApple:
		return g.fetchIDToken(ctx, g.apple, entity.ProviderApple, accessToken)
	case entity.ProviderFacebook:
		return g.fetchFacebook(ctx, accessToken)
	}
	return nil, &entity.ProviderError{Provider: provider, Detail: "unsupported provider"}
}

// idTokenClaims covers the profile claims Google and Apple embed in
// their ID tokens. Apple omits given_name/family_name entirely and
// email on repeat exchanges.
type idTokenClaims struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

func (g *Gateway) fetchIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, provider entity.Provider, raw string) (*entity.Profile, error) {
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, &entity.ProviderError{Provider: provider, Detail: "token verification failed", Err: err}
	}
	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, &entity.ProviderError{Provider: provider, Detail: "malformed token claims", Err: err}
	}
	return &entity.Profile{
		Provider:   provider,
		ProviderID: idToken.Subject,
		Email:      claims.Email,
		FirstName:  claims.GivenName,
		LastName:   claims.FamilyName,
		AvatarURL:  claims.Picture,
	}, nil
}

// graphMe mirrors the Graph API /me response shape.
type graphMe struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Picture   struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func (g *Gateway) fetchFacebook(ctx context.Context, accessToken string) (*entity.Profile, error) {
	q := url.Values{}
	q.Set("fields", "id,email,first_name,last_name,picture.width(200)")
	q.Set("access_token", accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.graph+"/me?"+q.Encode(), nil)
	if err != nil {
		return nil, &entity.ProviderError{Provider: entity.ProviderFacebook, Detail: "request build failed", Err: err}
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &entity.ProviderError{Provider: entity.ProviderFacebook, Detail: "graph request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &entity.ProviderError{
			Provider: entity.ProviderFacebook,
			Detail:   fmt.Sprintf("graph request returned status %d", resp.StatusCode),
		}
	}
	var me graphMe
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, &entity.ProviderError{Provider: entity.ProviderFacebook, Detail: "malformed graph response", Err: err}
	}
	if me.ID == "" {
		return nil, &entity.ProviderError{Provider: entity.ProviderFacebook, Detail: "graph response missing id"}
	}
	return &entity.Profile{
		Provider:   entity.ProviderFacebook,
		ProviderID: me.ID,
		Email:      me.Email,
		FirstName:  me.FirstName,
		LastName:   me.LastName,
		AvatarURL:  me.Picture.Data.URL,
	}, nil
}
