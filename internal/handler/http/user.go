package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/SmallJobs/internal/domain"
	"github.com/utafrali/SmallJobs/internal/service"
	"github.com/utafrali/SmallJobs/pkg/httputil"
	"github.com/utafrali/SmallJobs/pkg/middleware"
	"github.com/utafrali/SmallJobs/pkg/validator"
)

// UserService is the account and profile surface the handlers need.
type UserService interface {
	Register(ctx context.Context, in domain.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
	GetPublicProfile(ctx context.Context, userID string) (*domain.PublicProfile, error)
	UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.User, error)
	Review(ctx context.Context, reviewerID, userID string, rating int, comment string) (*service.ReviewResult, error)
}

// UserHandler handles HTTP requests for auth and user endpoints.
type UserHandler struct {
	service UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register handles POST /api/v1/auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in domain.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := h.service.Register(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: res})
}

// Login handles POST /api/v1/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// GetProfile handles GET /api/v1/users/me
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetProfile(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// UpdateProfile handles PUT /api/v1/users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch domain.ProfilePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), middleware.UserIDFromContext(r.Context()), patch)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// GetPublicProfile handles GET /api/v1/users/{id}
func (h *UserHandler) GetPublicProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"), "user")
	if !ok {
		return
	}

	profile, err := h.service.GetPublicProfile(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: profile})
}

// Review handles POST /api/v1/users/{id}/reviews
func (h *UserHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"), "user")
	if !ok {
		return
	}

	req, ok := decodeReview(w, r)
	if !ok {
		return
	}

	res, err := h.service.Review(r.Context(), middleware.UserIDFromContext(r.Context()), id.String(), *req.Rating, req.Comment)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: res})
}
