// Package service implements the job marketplace use cases on top of a
// repository.Store. Every mutation runs inside one store transaction.
package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/SmallJobs/internal/domain"
	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
)

// Clock returns the current time.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// parseID canonicalizes a UUID. Malformed ids cannot name a stored
// resource, so they are reported as not found.
func parseID(resource, id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", apperrors.NotFound(resource, id)
	}
	return u.String(), nil
}

// ReviewResult is a stored review and the target's recomputed rating.
type ReviewResult struct {
	TargetID    string        `json:"target_id"`
	Review      domain.Review `json:"review"`
	Rating      float64       `json:"rating"`
	ReviewCount int           `json:"review_count"`
}
