package social

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lumenkit/identity-core/internal/account"
	"github.com/lumenkit/identity-core/internal/account/entity"
	"github.com/lumenkit/identity-core/internal/account/memstore"
	"github.com/lumenkit/identity-core/internal/token"
)

// stubFetcher returns a canned profile or error per provider.
type stubFetcher struct {
	profile *entity.Profile
	err     error
}

func (s *stubFetcher) Fetch(ctx context.Context, provider entity.Provider, accessToken string) (*entity.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

func newTestHandler(t *testing.T, fetcher ProfileFetcher) (*Handler, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	issuer, err := token.NewIssuer([]byte("test-secret"), "identity-core", time.Hour, nil)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	logger := zap.NewNop().Sugar()
	return NewHandler(fetcher, NewReconciler(store, logger), issuer, logger), store
}

func TestAuthenticateIssuesToken(t *testing.T) {
	fetcher := &stubFetcher{profile: googleProfile()}
	h, store := newTestHandler(t, fetcher)

	body := `{"provider":"google","token":"opaque"}`
	req := httptest.NewRequest(http.MethodPost, "/identity-api/auth/social", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Authenticate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp account.TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected signed session token")
	}
	if resp.Account.Email != "a@x.com" {
		t.Fatalf("unexpected account %+v", resp.Account)
	}
	if _, err := store.FindByProviderID(context.Background(), entity.ProviderGoogle, "g1"); err != nil {
		t.Fatalf("account not persisted: %v", err)
	}
}

func TestAuthenticateMissingEmailMapsToBadRequest(t *testing.T) {
	fetcher := &stubFetcher{profile: &entity.Profile{Provider: entity.ProviderApple, ProviderID: "ap1"}}
	h, _ := newTestHandler(t, fetcher)

	body := `{"provider":"apple","token":"opaque"}`
	req := httptest.NewRequest(http.MethodPost, "/identity-api/auth/social", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Authenticate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing email from provider apple") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestAuthenticateProviderFailureMapsToBadGateway(t *testing.T) {
	fetcher := &stubFetcher{err: &entity.ProviderError{Provider: entity.ProviderGoogle, Detail: "token verification failed"}}
	h, _ := newTestHandler(t, fetcher)

	body := `{"provider":"google","token":"bad"}`
	req := httptest.NewRequest(http.MethodPost, "/identity-api/auth/social", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Authenticate(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestAuthenticateRejectsUnknownProvider(t *testing.T) {
	h, _ := newTestHandler(t, &stubFetcher{})

	body := `{"provider":"github","token":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/identity-api/auth/social", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Authenticate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
