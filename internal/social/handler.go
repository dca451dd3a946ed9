package social

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lumenkit/identity-core/internal/account"
	"github.com/lumenkit/identity-core/internal/account/entity"
	"github.com/lumenkit/identity-core/internal/token"
)

// Handler exposes the social login and connect endpoints.
type Handler struct {
	fetcher    ProfileFetcher
	reconciler *Reconciler
	issuer     *token.Issuer
	logger     *zap.SugaredLogger
}

func NewHandler(fetcher ProfileFetcher, reconciler *Reconciler, issuer *token.Issuer, logger *zap.SugaredLogger) *Handler {
	return &Handler{fetcher: fetcher, reconciler: reconciler, issuer: issuer, logger: logger}
}

// AuthRequest is the social login payload. User carries the
// client-side fallback names Apple supplies only on first login.
type AuthRequest struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
	User     *struct {
		Name struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		} `json:"name"`
	} `json:"user,omitempty"`
}

func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		account.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	provider := entity.Provider(req.Provider)
	if !provider.Valid() || req.Token == "" {
		account.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "provider and token required"})
		return
	}

	profile, err := h.fetcher.Fetch(r.Context(), provider, req.Token)
	if err != nil {
		h.writeError(w, provider, err)
		return
	}

	var fallback *entity.NamePayload
	if req.User != nil {
		fallback = &entity.NamePayload{
			FirstName: req.User.Name.FirstName,
			LastName:  req.User.Name.LastName,
		}
	}

	a, err := h.reconciler.Reconcile(r.Context(), profile, fallback)
	if err != nil {
		h.writeError(w, provider, err)
		return
	}

	signed, err := h.issuer.Issue(a)
	if err != nil {
		h.logger.Errorw("token issue failed", "err", err)
		account.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "token issue failed"})
		return
	}
	refresh, err := h.issuer.IssueRefresh(r.Context(), a.Email)
	if err != nil {
		h.logger.Warnw("refresh issue failed", "err", err)
		// session token alone is still usable
		refresh = ""
	}
	account.WriteJSON(w, http.StatusOK, account.TokenResponse{
		Token:        signed,
		RefreshToken: refresh,
		Account:      account.NewAccountResponse(a),
	})
}

// ConnectRequest links a provider onto the authenticated account.
type ConnectRequest struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		account.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": entity.ErrInvalidToken.Error()})
		return
	}
	accountID, err := claims.AccountID()
	if err != nil {
		account.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": entity.ErrInvalidToken.Error()})
		return
	}

	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		account.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	provider := entity.Provider(req.Provider)
	if !provider.Valid() || req.Token == "" {
		account.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "provider and token required"})
		return
	}

	profile, err := h.fetcher.Fetch(r.Context(), provider, req.Token)
	if err != nil {
		h.writeError(w, provider, err)
		return
	}

	a, err := h.reconciler.Connect(r.Context(), accountID, profile)
	if err != nil {
		h.writeError(w, provider, err)
		return
	}
	account.WriteJSON(w, http.StatusOK, account.NewAccountResponse(a))
}

// writeError maps the taxonomy onto transport statuses without
// leaking internal error text.
func (h *Handler) writeError(w http.ResponseWriter, provider entity.Provider, err error) {
	var missing *entity.MissingEmailError
	if errors.As(err, &missing) {
		account.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": missing.Error()})
		return
	}
	if errors.Is(err, entity.ErrDuplicateAccount) {
		account.WriteJSON(w, http.StatusConflict, map[string]string{"error": entity.ErrDuplicateAccount.Error()})
		return
	}
	var perr *entity.ProviderError
	if errors.As(err, &perr) {
		h.logger.Warnw("provider failure", "provider", perr.Provider, "detail", perr.Detail, "err", perr.Err)
		account.WriteJSON(w, http.StatusBadGateway, map[string]string{"error": perr.Error()})
		return
	}
	h.logger.Warnw("social auth failed", "provider", provider, "err", err)
	account.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "authentication failed"})
}
