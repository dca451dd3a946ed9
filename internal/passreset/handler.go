package passreset

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lumenkit/identity-core/internal/account"
	"github.com/lumenkit/identity-core/internal/account/entity"
)

// Handler exposes the password-reset endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type requestResetBody struct {
	Email string `json:"email"`
}

// RequestReset always reports success for well-formed requests so the
// endpoint cannot be used to probe for account existence. Token
// delivery (email) is an external collaborator; the token is not
// echoed in the response.
func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		account.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if _, err := h.svc.Request(r.Context(), req.Email); err != nil {
		h.logger.Warnw("reset request failed", "err", err)
		account.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "reset request failed"})
		return
	}
	account.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "password reset instructions sent if the account exists",
	})
}

type validateTokenBody struct {
	Token string `json:"token"`
}

// ValidateToken is the side-effect-free pre-check used before showing
// a reset form.
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req validateTokenBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		account.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.svc.Validate(r.Context(), req.Token); err != nil {
		h.writeResetError(w, err)
		return
	}
	account.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type resetBody struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		account.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.svc.Consume(r.Context(), req.Token, req.Password); err != nil {
		h.writeResetError(w, err)
		return
	}
	account.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "password has been reset",
	})
}

func (h *Handler) writeResetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidToken):
		account.WriteJSON(w, http.StatusNotFound, map[string]string{"error": entity.ErrInvalidToken.Error()})
	case errors.Is(err, entity.ErrTokenExpired):
		account.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": entity.ErrTokenExpired.Error()})
	default:
		h.logger.Warnw("password reset failed", "err", err)
		account.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "password reset failed"})
	}
}
