// Package handler exposes operator authentication over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopstream/internal/auth/models"
	"shopstream/internal/auth/tokens"
	"shopstream/internal/platform/httputil"
	"shopstream/pkg/domain"
)

// Service defines the authentication operations the handler needs.
type Service interface {
	Register(ctx context.Context, tenantID domain.TenantID, email, password string, role models.Role) (*models.User, error)
	Login(ctx context.Context, email, password string) (tokens.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (tokens.Pair, error)
}

// Handler serves the auth routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates an auth handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the unauthenticated auth routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/refresh", h.HandleRefresh)
}

// RegisterAdmin mounts the operator management routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/users", h.HandleCreateUser)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func toTokenResponse(pair tokens.Pair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}
}

// HandleLogin exchanges credentials for a token pair.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[loginRequest](w, r, h.logger)
	if !ok {
		return
	}
	pair, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTokenResponse(pair))
}

// HandleRefresh rotates a refresh token into a fresh pair.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[refreshRequest](w, r, h.logger)
	if !ok {
		return
	}
	pair, err := h.service.Refresh(ctx, req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTokenResponse(pair))
}

type createUserRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// HandleCreateUser creates an operator account. An empty tenant_id makes
// the account platform-wide.
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[createUserRequest](w, r, h.logger)
	if !ok {
		return
	}

	var tenantID domain.TenantID
	if req.TenantID != "" {
		var err error
		tenantID, err = domain.ParseTenantID(req.TenantID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	user, err := h.service.Register(ctx, tenantID, req.Email, req.Password, models.Role(req.Role))
	if err != nil {
		h.logger.ErrorContext(ctx, "operator creation failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":        user.ID.String(),
		"tenant_id": user.TenantID.String(),
		"email":     user.Email,
		"role":      string(user.Role),
	})
}
