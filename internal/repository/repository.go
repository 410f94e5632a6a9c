package repository

import (
	"context"
	"time"

	"github.com/utafrali/SmallJobs/internal/domain"
	"github.com/utafrali/SmallJobs/pkg/pagination"
)

// JobRepository defines the persistence operations for jobs, their
// applications and their reviews.
type JobRepository interface {
	// Create inserts a new job. Applications and reviews are ignored.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job with its applications and reviews.
	GetByID(ctx context.Context, id string) (*domain.Job, error)

	// GetForUpdate is GetByID holding a row lock until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Job, error)

	// List returns one page of active jobs matching filter and the total match count.
	List(ctx context.Context, filter domain.JobFilter, page pagination.Params) ([]domain.JobListItem, int, error)

	// Update writes the patchable fields, status and updated_at.
	Update(ctx context.Context, job *domain.Job) error

	// Delete removes a job together with its applications and reviews.
	Delete(ctx context.Context, id string) error

	// TitleExists reports whether any job has title, compared case-insensitively.
	TitleExists(ctx context.Context, title string) (bool, error)

	// LockTitle serializes creators of the same title until the transaction ends.
	LockTitle(ctx context.Context, title string) error

	// AddApplication inserts an application. It returns false if the user
	// already applied.
	AddApplication(ctx context.Context, jobID string, a domain.Application) (bool, error)

	// UpdateApplicationStatus records a decision on an existing application.
	UpdateApplicationStatus(ctx context.Context, jobID string, a domain.Application) error

	// AddReview inserts a review. It returns false if the reviewer already
	// reviewed the job.
	AddReview(ctx context.Context, jobID string, r domain.Review) (bool, error)

	// SetRating stores a recomputed rating.
	SetRating(ctx context.Context, jobID string, rating float64, updatedAt time.Time) error

	// HaveWorkedTogether reports whether one user owns a job on which the
	// other holds an accepted application.
	HaveWorkedTogether(ctx context.Context, userA, userB string) (bool, error)
}

// UserRepository defines the persistence operations for user accounts.
type UserRepository interface {
	// Create inserts a new user. A taken email yields an AlreadyExists error.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user with their reviews.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by lower-cased email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetForUpdate is GetByID holding a row lock until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.User, error)

	// Summaries resolves ids to display-safe summaries. Unknown ids are omitted.
	Summaries(ctx context.Context, ids []string) (map[string]domain.UserSummary, error)

	// UpdateProfile writes the profile fields and updated_at.
	UpdateProfile(ctx context.Context, user *domain.User) error

	AppendPostedJob(ctx context.Context, userID, jobID string) error
	RemovePostedJob(ctx context.Context, userID, jobID string) error
	AppendAppliedJob(ctx context.Context, userID, jobID string) error

	// RemoveAppliedJobEverywhere drops jobID from every user's applied list.
	RemoveAppliedJobEverywhere(ctx context.Context, jobID string) error

	// AddReview inserts a review of userID. It returns false if the reviewer
	// already reviewed that user.
	AddReview(ctx context.Context, userID string, r domain.Review) (bool, error)

	// SetRating stores a recomputed rating.
	SetRating(ctx context.Context, userID string, rating float64, updatedAt time.Time) error
}

// Store groups the repositories and the boundary every call runs through.
type Store interface {
	Jobs() JobRepository
	Users() UserRepository

	// Read runs fn outside a transaction. Transient failures are retried once,
	// so fn must be safe to repeat.
	Read(ctx context.Context, fn func(ctx context.Context, s Store) error) error

	// WithTx runs fn inside one transaction and commits if fn returns nil.
	// The Store passed to fn is bound to the transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
