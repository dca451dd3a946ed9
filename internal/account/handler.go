package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lumenkit/identity-core/internal/account/entity"
	"github.com/lumenkit/identity-core/internal/token"
)

// Handler exposes HTTP endpoints for registration, password login,
// refresh and profile lookup.
type Handler struct {
	svc    *Service
	issuer *token.Issuer
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, issuer *token.Issuer, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, issuer: issuer, logger: logger}
}

// RegisterRequest request body for the register endpoint.
type RegisterRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

// AccountResponse is the public projection of an account.
type AccountResponse struct {
	ID            int64    `json:"id"`
	Email         string   `json:"email"`
	Username      *string  `json:"username,omitempty"`
	FirstName     *string  `json:"firstName,omitempty"`
	LastName      *string  `json:"lastName,omitempty"`
	PhoneNumber   *string  `json:"phoneNumber,omitempty"`
	AvatarURL     *string  `json:"avatarUrl,omitempty"`
	Roles         []string `json:"roles"`
	IsSocialLogin bool     `json:"isSocialLogin"`
}

func NewAccountResponse(a *entity.Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID,
		Email:         a.Email,
		Username:      a.Username,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		PhoneNumber:   a.PhoneNumber,
		AvatarURL:     a.AvatarURL,
		Roles:         a.EffectiveRoles(),
		IsSocialLogin: a.IsSocialLogin,
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	a, err := h.svc.Register(r.Context(), RegisterInput{
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		if errors.Is(err, entity.ErrDuplicateAccount) {
			WriteJSON(w, http.StatusConflict, map[string]string{"error": entity.ErrDuplicateAccount.Error()})
			return
		}
		h.logger.Warnw("register failed", "err", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "registration failed"})
		return
	}
	WriteJSON(w, http.StatusCreated, NewAccountResponse(a))
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a signed session token and its refresh token.
type TokenResponse struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	Account      AccountResponse `json:"account"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	a, err := h.svc.AuthenticatePassword(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidCredentials) {
			WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": entity.ErrInvalidCredentials.Error()})
			return
		}
		h.logger.Warnw("login failed", "err", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	h.respondWithTokens(r, w, a)
}

// RefreshRequest exchange payload.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	email, ok := h.issuer.ValidateRefresh(r.Context(), req.RefreshToken)
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": entity.ErrInvalidToken.Error()})
		return
	}
	a, err := h.svc.store.FindByEmail(r.Context(), email)
	if err != nil {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": entity.ErrInvalidToken.Error()})
		return
	}
	h.respondWithTokens(r, w, a)
}

// Logout revokes a refresh token. Possession of the token is the
// credential, matching the refresh endpoint.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "refresh token required"})
		return
	}
	if err := h.issuer.RevokeRefresh(r.Context(), req.RefreshToken); err != nil {
		h.logger.Warnw("refresh revoke failed", "err", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout failed"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Profile returns the authenticated account, resolved from the
// session-token claims set by the auth middleware.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": entity.ErrInvalidToken.Error()})
		return
	}
	id, err := claims.AccountID()
	if err != nil {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": entity.ErrInvalidToken.Error()})
		return
	}
	a, err := h.svc.Profile(r.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			WriteJSON(w, http.StatusNotFound, map[string]string{"error": entity.ErrNotFound.Error()})
			return
		}
		h.logger.Warnw("profile lookup failed", "err", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "profile lookup failed"})
		return
	}
	WriteJSON(w, http.StatusOK, NewAccountResponse(a))
}

func (h *Handler) respondWithTokens(r *http.Request, w http.ResponseWriter, a *entity.Account) {
	signed, err := h.issuer.Issue(a)
	if err != nil {
		h.logger.Errorw("token issue failed", "err", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "token issue failed"})
		return
	}
	refresh, err := h.issuer.IssueRefresh(r.Context(), a.Email)
	if err != nil {
		h.logger.Warnw("refresh issue failed", "err", err)
		// session token alone is still usable
		refresh = ""
	}
	WriteJSON(w, http.StatusOK, TokenResponse{Token: signed, RefreshToken: refresh, Account: NewAccountResponse(a)})
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
