package domain

import (
	"fmt"
	"time"

	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
)

// Job status constants.
const (
	JobStatusActive    = "active"
	JobStatusCompleted = "completed"
	JobStatusCancelled = "cancelled"
)

// Application status constants.
const (
	ApplicationPending  = "pending"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

// Job category constants.
const (
	CategoryCleaning  = "Cleaning"
	CategoryGardening = "Gardening"
	CategoryPetCare   = "Pet Care"
	CategoryHandyman  = "Handyman"
	CategoryTutoring  = "Tutoring"
	CategoryDelivery  = "Delivery"
	CategoryOther     = "Other"
)

// ValidCategories returns every job category in display order.
func ValidCategories() []string {
	return []string{
		CategoryCleaning,
		CategoryGardening,
		CategoryPetCare,
		CategoryHandyman,
		CategoryTutoring,
		CategoryDelivery,
		CategoryOther,
	}
}

// IsValidCategory reports whether c is one of ValidCategories.
func IsValidCategory(c string) bool {
	for _, v := range ValidCategories() {
		if v == c {
			return true
		}
	}
	return false
}

// AllowedTransitions defines the status changes an owner may make.
// Completed and cancelled jobs are terminal.
func AllowedTransitions() map[string][]string {
	return map[string][]string{
		JobStatusActive:    {JobStatusCompleted, JobStatusCancelled},
		JobStatusCompleted: {},
		JobStatusCancelled: {},
	}
}

// Application is a user's request to perform a job.
type Application struct {
	ApplicantID string     `json:"applicant_id"`
	Status      string     `json:"status"`
	AppliedAt   time.Time  `json:"applied_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

// Job is a posted task owned by one user.
type Job struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Category     string        `json:"category"`
	Description  string        `json:"description"`
	Details      string        `json:"details,omitempty"`
	Price        float64       `json:"price"`
	Location     string        `json:"location"`
	Deadline     time.Time     `json:"deadline"`
	Requirements []string      `json:"requirements"`
	Tags         []string      `json:"tags"`
	Status       string        `json:"status"`
	OwnerID      string        `json:"owner_id"`
	Applications []Application `json:"applications"`
	Reviews      []Review      `json:"reviews"`
	Rating       float64       `json:"rating"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsOwnedBy reports whether userID created the job.
func (j *Job) IsOwnedBy(userID string) bool {
	return userID != "" && j.OwnerID == userID
}

// CanTransitionTo checks if the job can move to the target status.
func (j *Job) CanTransitionTo(target string) bool {
	for _, s := range AllowedTransitions()[j.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// FindApplication returns the application userID made on this job.
func (j *Job) FindApplication(userID string) (*Application, bool) {
	for i := range j.Applications {
		if j.Applications[i].ApplicantID == userID {
			return &j.Applications[i], true
		}
	}
	return nil, false
}

// HasReviewFrom reports whether userID already reviewed this job.
func (j *Job) HasReviewFrom(userID string) bool {
	return hasReviewFrom(j.Reviews, userID)
}

// Apply records a pending application from userID.
func (j *Job) Apply(userID string, now time.Time) (Application, error) {
	if j.Status != JobStatusActive {
		return Application{}, apperrors.InvalidState(fmt.Sprintf("job is %s and no longer accepts applications", j.Status))
	}
	if _, ok := j.FindApplication(userID); ok {
		return Application{}, apperrors.Conflict("you have already applied to this job")
	}

	a := Application{ApplicantID: userID, Status: ApplicationPending, AppliedAt: now}
	j.Applications = append(j.Applications, a)
	return a, nil
}

// Decide moves a pending application to accepted or rejected. Ownership is
// checked by the caller.
func (j *Job) Decide(applicantID, status string, now time.Time) (Application, error) {
	if status != ApplicationAccepted && status != ApplicationRejected {
		return Application{}, apperrors.InvalidInput("status must be accepted or rejected")
	}

	a, ok := j.FindApplication(applicantID)
	if !ok {
		return Application{}, apperrors.NotFound("application", applicantID)
	}
	if a.Status != ApplicationPending {
		return Application{}, apperrors.InvalidState(fmt.Sprintf("application is already %s", a.Status))
	}

	a.Status = status
	a.DecidedAt = &now
	return *a, nil
}

// AddReview appends a review from reviewerID and recomputes the rating.
// Only applicants whose application was accepted may review.
func (j *Job) AddReview(reviewerID string, rating int, comment string, now time.Time) (Review, error) {
	r, err := NewReview(reviewerID, rating, comment, now)
	if err != nil {
		return Review{}, err
	}

	a, ok := j.FindApplication(reviewerID)
	if !ok || a.Status != ApplicationAccepted {
		return Review{}, apperrors.InvalidState("only users who completed the job may review")
	}
	if j.HasReviewFrom(reviewerID) {
		return Review{}, apperrors.Conflict("you have already reviewed this job")
	}

	j.Reviews = append(j.Reviews, r)
	j.Rating = AverageRating(j.Reviews)
	j.UpdatedAt = now
	return r, nil
}
