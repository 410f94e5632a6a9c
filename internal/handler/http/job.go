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
	"github.com/utafrali/SmallJobs/pkg/pagination"
	"github.com/utafrali/SmallJobs/pkg/validator"
)

// JobService is the job use-case surface the handlers need.
type JobService interface {
	Create(ctx context.Context, ownerID string, in domain.JobInput) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.JobDetail, error)
	List(ctx context.Context, filter domain.JobFilter, page pagination.Params) (pagination.Result[domain.JobListItem], error)
	Update(ctx context.Context, actorID, id string, patch domain.JobPatch) (*domain.Job, error)
	Delete(ctx context.Context, actorID, id string) error
	Apply(ctx context.Context, userID, id string) (domain.Application, error)
	Decide(ctx context.Context, ownerID, id, applicantID, status string) (domain.Application, error)
	Review(ctx context.Context, reviewerID, id string, rating int, comment string) (*service.ReviewResult, error)
}

// JobHandler handles HTTP requests for job endpoints.
type JobHandler struct {
	service JobService
	logger  *slog.Logger
}

// NewJobHandler creates a new job HTTP handler.
func NewJobHandler(svc JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// DecideRequest is the JSON request body for accepting or rejecting an application.
type DecideRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected"`
}

// ReviewRequest is the JSON request body for job and user reviews. Rating is
// a pointer so that an omitted rating is told apart from a rating of 0.
type ReviewRequest struct {
	Rating  *int   `json:"rating" validate:"required,min=0,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// --- Handlers ---

// List handles GET /api/v1/jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.JobFilter{
		Query:    q.Get("query"),
		Category: q.Get("category"),
		Location: q.Get("location"),
		Sort:     q.Get("sort"),
	}

	result, err := h.service.List(r.Context(), filter, pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Get handles GET /api/v1/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"), "job")
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: detail})
}

// Create handles POST /api/v1/jobs
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.JobInput
	if !decodeJSON(w, r, &in) {
		return
	}

	job, err := h.service.Create(r.Context(), middleware.UserIDFromContext(r.Context()), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: job})
}

// Update handles PUT /api/v1/jobs/{id}
func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"), "job")
	if !ok {
		return
	}

	var patch domain.JobPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	job, err := h.service.Update(r.Context(), middleware.UserIDFromContext(r.Context()), id.String(), patch)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: job})
}

// Delete handles DELETE /api/v1/jobs/{id}
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"), "job")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), middleware.UserIDFromContext(r.Context()), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Apply handles POST /api/v1/jobs/{id}/apply
func (h *JobHandler) Apply(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"), "job")
	if !ok {
		return
	}

	app, err := h.service.Apply(r.Context(), middleware.UserIDFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: app})
}

// Decide handles PUT /api/v1/jobs/{id}/applications/{userId}
func (h *JobHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"), "job")
	if !ok {
		return
	}
	applicant, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "userId"), "application")
	if !ok {
		return
	}

	var req DecideRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	app, err := h.service.Decide(r.Context(), middleware.UserIDFromContext(r.Context()), id.String(), applicant.String(), req.Status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: app})
}

// Review handles POST /api/v1/jobs/{id}/reviews
func (h *JobHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"), "job")
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

func decodeReview(w http.ResponseWriter, r *http.Request) (ReviewRequest, bool) {
	var req ReviewRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return req, false
	}
	return req, true
}
