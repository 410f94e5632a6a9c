package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
)

var (
	jobsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smalljobs_jobs_created_total",
			Help: "Total number of jobs posted.",
		},
	)

	applicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smalljobs_applications_total",
			Help: "Application submissions and decisions by result.",
		},
		[]string{"result"},
	)

	reviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smalljobs_reviews_total",
			Help: "Review submissions by target and result.",
		},
		[]string{"target", "result"},
	)
)

// Review targets.
const (
	reviewTargetJob  = "job"
	reviewTargetUser = "user"
)

// outcome buckets an operation error into a low-cardinality label.
func outcome(err error, ok string) string {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrAlreadyExists):
		return "duplicate"
	case errors.Is(err, apperrors.ErrInvalidState):
		return "rejected_state"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
