package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wenqu/backend-api-scaffold/internal/miniprogram"
	"github.com/wenqu/backend-api-scaffold/internal/token"
)

// Handler exposes HTTP endpoints for account auth operations
// (register / login / refresh / password management / mini-program login).
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRequest request body for account registration.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	acct, pair, err := h.svc.Register(r.Context(), RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Nickname: req.Nickname,
	})
	if err != nil {
		h.logger.Debugw("register failed", "err", err)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{
		"user":   acct.Public(),
		"tokens": pair,
	})
}

// LoginRequest login payload. Identifier accepts username, email or phone.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	acct, pair, err := h.svc.Login(r.Context(), req.Identifier, req.Password, ClientIP(r))
	if err != nil {
		h.logger.Debugw("login failed", "identifier", req.Identifier, "err", err)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user":   acct.Public(),
		"tokens": pair,
	})
}

// RefreshRequest carries a refresh token to exchange for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.logger.Debugw("token refresh failed", "err", err)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	acct := AccountFrom(r.Context())
	if acct == nil {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	h.svc.Logout(r.Context(), acct.ID)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePasswordRequest requires the current password before setting a new one.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	acct := AccountFrom(r.Context())
	if acct == nil {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.svc.ChangePassword(r.Context(), acct.ID, req.OldPassword, req.NewPassword); err != nil {
		h.logger.Debugw("change password failed", "account_id", acct.ID, "err", err)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// ResetPasswordRequest resets a password for an identifier. The
// verification code is checked by the upstream delivery channel.
type ResetPasswordRequest struct {
	Identifier  string `json:"identifier"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Identifier, req.Code, req.NewPassword); err != nil {
		h.logger.Debugw("reset password failed", "identifier", req.Identifier, "err", err)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// MiniProgramLoginRequest carries the wx.login code plus optional
// profile fields captured by the client.
type MiniProgramLoginRequest struct {
	Code     string `json:"code"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Gender   int    `json:"gender"`
}

func (h *Handler) MiniProgramLogin(w http.ResponseWriter, r *http.Request) {
	var req MiniProgramLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	res, err := h.svc.MiniProgramLogin(r.Context(), req.Code, &ProfileHints{
		Nickname: req.Nickname,
		Avatar:   req.Avatar,
		Gender:   req.Gender,
	}, ClientIP(r))
	if err != nil {
		h.logger.Warnw("mini-program login failed", "err", err)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user":   res.Account.Public(),
		"tokens": res.Tokens,
	})
}

// Me returns the authenticated account's public profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	acct := AccountFrom(r.Context())
	if acct == nil {
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	WriteJSON(w, http.StatusOK, acct.Public())
}

// WriteJSON writes v as a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps service errors onto HTTP statuses.
func WriteError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	var derr *DuplicateFieldError
	var xerr *miniprogram.ExchangeError
	switch {
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
	case errors.As(err, &derr):
		WriteJSON(w, http.StatusConflict, map[string]string{"error": derr.Error(), "field": derr.Field})
	case errors.As(err, &xerr):
		WriteJSON(w, http.StatusBadGateway, map[string]string{"error": xerr.Error()})
	case errors.Is(err, ErrAccountNotFound):
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
	case errors.Is(err, ErrInvalidCredentials):
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, token.ErrTokenExpired):
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "token expired"})
	case errors.Is(err, token.ErrTokenInvalid):
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	case errors.Is(err, ErrAccountLocked):
		WriteJSON(w, http.StatusLocked, map[string]string{"error": "account locked"})
	case errors.Is(err, ErrAccountInactive):
		WriteJSON(w, http.StatusForbidden, map[string]string{"error": "account inactive"})
	case errors.Is(err, ErrInsufficientRole), errors.Is(err, ErrOwnershipDenied):
		WriteJSON(w, http.StatusForbidden, map[string]string{"error": "permission denied"})
	case errors.Is(err, miniprogram.ErrNotConfigured):
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "mini-program login not configured"})
	case errors.Is(err, miniprogram.ErrUnavailable), errors.Is(err, ErrRepositoryUnavailable):
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service temporarily unavailable"})
	default:
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// ClientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
