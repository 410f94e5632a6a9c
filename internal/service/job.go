package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/SmallJobs/internal/domain"
	"github.com/utafrali/SmallJobs/internal/event"
	"github.com/utafrali/SmallJobs/internal/repository"
	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
	"github.com/utafrali/SmallJobs/pkg/pagination"
)

// JobService implements the job lifecycle, applications and job reviews.
type JobService struct {
	store       repository.Store
	producer    *event.Producer
	logger      *slog.Logger
	titleUnique bool
	now         Clock
}

// NewJobService creates a new job service. With titleUnique set, Create
// rejects a title already used by any job.
func NewJobService(store repository.Store, producer *event.Producer, logger *slog.Logger, titleUnique bool) *JobService {
	return &JobService{
		store:       store,
		producer:    producer,
		logger:      logger,
		titleUnique: titleUnique,
		now:         utcNow,
	}
}

// Create validates in and stores a new active job owned by ownerID. The job
// and the owner's posted list are written in one transaction.
func (s *JobService) Create(ctx context.Context, ownerID string, in domain.JobInput) (*domain.Job, error) {
	job, err := domain.NewJob(in, ownerID, s.now())
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if s.titleUnique {
			if err := tx.Jobs().LockTitle(ctx, job.Title); err != nil {
				return err
			}
			exists, err := tx.Jobs().TitleExists(ctx, job.Title)
			if err != nil {
				return err
			}
			if exists {
				return apperrors.Conflict("a job with this title already exists")
			}
		}
		if err := tx.Jobs().Create(ctx, job); err != nil {
			return err
		}
		return tx.Users().AppendPostedJob(ctx, ownerID, job.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	jobsCreatedTotal.Inc()

	if err := s.producer.PublishJobCreated(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish job.created event",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "job created",
		slog.String("job_id", job.ID),
		slog.String("owner_id", ownerID),
		slog.String("category", job.Category),
	)

	return job, nil
}

// Get returns a job with its owner, applicants and reviewers resolved.
func (s *JobService) Get(ctx context.Context, id string) (*domain.JobDetail, error) {
	jobID, err := parseID("job", id)
	if err != nil {
		return nil, err
	}

	var detail *domain.JobDetail
	err = s.store.Read(ctx, func(ctx context.Context, st repository.Store) error {
		job, err := st.Jobs().GetByID(ctx, jobID)
		if err != nil {
			return err
		}
		users, err := st.Users().Summaries(ctx, job.UserIDs())
		if err != nil {
			return err
		}
		detail = domain.NewJobDetail(job, users)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return detail, nil
}

// List returns one page of active jobs matching filter.
func (s *JobService) List(ctx context.Context, filter domain.JobFilter, page pagination.Params) (pagination.Result[domain.JobListItem], error) {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Location = strings.TrimSpace(filter.Location)
	filter.Sort = domain.ParseSort(filter.Sort)

	if filter.Category != "" && !domain.IsValidCategory(filter.Category) {
		return pagination.Result[domain.JobListItem]{}, apperrors.InvalidInput(
			"category must be one of: " + strings.Join(domain.ValidCategories(), ", "))
	}

	var (
		items []domain.JobListItem
		total int
	)
	err := s.store.Read(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		items, total, err = st.Jobs().List(ctx, filter, page)
		return err
	})
	if err != nil {
		return pagination.Result[domain.JobListItem]{}, fmt.Errorf("list jobs: %w", err)
	}

	return pagination.NewResult(items, total, page), nil
}

// Update merges patch into the job. Only the owner may update it.
func (s *JobService) Update(ctx context.Context, actorID, id string, patch domain.JobPatch) (*domain.Job, error) {
	jobID, err := parseID("job", id)
	if err != nil {
		return nil, err
	}

	var job *domain.Job
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		j, err := s.ownedJob(ctx, tx, actorID, jobID)
		if err != nil {
			return err
		}
		if err := j.ApplyPatch(patch, s.now()); err != nil {
			return err
		}
		if err := tx.Jobs().Update(ctx, j); err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	if err := s.producer.PublishJobUpdated(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish job.updated event",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "job updated",
		slog.String("job_id", job.ID),
		slog.String("status", job.Status),
	)

	return job, nil
}

// Delete removes the job and every user's reference to it. Only the owner
// may delete it.
func (s *JobService) Delete(ctx context.Context, actorID, id string) error {
	jobID, err := parseID("job", id)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		j, err := s.ownedJob(ctx, tx, actorID, jobID)
		if err != nil {
			return err
		}
		if err := tx.Jobs().Delete(ctx, j.ID); err != nil {
			return err
		}
		if err := tx.Users().RemovePostedJob(ctx, j.OwnerID, j.ID); err != nil {
			return err
		}
		return tx.Users().RemoveAppliedJobEverywhere(ctx, j.ID)
	})
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	if err := s.producer.PublishJobDeleted(ctx, jobID, actorID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish job.deleted event",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "job deleted",
		slog.String("job_id", jobID),
		slog.String("owner_id", actorID),
	)

	return nil
}

// Apply records a pending application from userID and adds the job to the
// user's applied list.
func (s *JobService) Apply(ctx context.Context, userID, id string) (domain.Application, error) {
	jobID, err := parseID("job", id)
	if err != nil {
		return domain.Application{}, err
	}

	var app domain.Application
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		job, err := tx.Jobs().GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		a, err := job.Apply(userID, s.now())
		if err != nil {
			return err
		}
		inserted, err := tx.Jobs().AddApplication(ctx, job.ID, a)
		if err != nil {
			return err
		}
		if !inserted {
			return apperrors.Conflict("you have already applied to this job")
		}
		if err := tx.Users().AppendAppliedJob(ctx, userID, job.ID); err != nil {
			return err
		}
		app = a
		return nil
	})
	applicationsTotal.WithLabelValues(outcome(err, "submitted")).Inc()
	if err != nil {
		return domain.Application{}, fmt.Errorf("apply to job: %w", err)
	}

	if err := s.producer.PublishApplicationSubmitted(ctx, jobID, app); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish application_submitted event",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "application submitted",
		slog.String("job_id", jobID),
		slog.String("applicant_id", userID),
	)

	return app, nil
}

// Decide accepts or rejects a pending application. Only the job owner may
// decide.
func (s *JobService) Decide(ctx context.Context, ownerID, id, applicantID, status string) (domain.Application, error) {
	jobID, err := parseID("job", id)
	if err != nil {
		return domain.Application{}, err
	}
	applicant, err := parseID("application", applicantID)
	if err != nil {
		return domain.Application{}, err
	}

	var app domain.Application
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		job, err := s.ownedJob(ctx, tx, ownerID, jobID)
		if err != nil {
			return err
		}
		a, err := job.Decide(applicant, status, s.now())
		if err != nil {
			return err
		}
		if err := tx.Jobs().UpdateApplicationStatus(ctx, job.ID, a); err != nil {
			return err
		}
		app = a
		return nil
	})
	applicationsTotal.WithLabelValues(outcome(err, status)).Inc()
	if err != nil {
		return domain.Application{}, fmt.Errorf("decide application: %w", err)
	}

	if err := s.producer.PublishApplicationDecided(ctx, jobID, app); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish application_decided event",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "application decided",
		slog.String("job_id", jobID),
		slog.String("applicant_id", applicant),
		slog.String("status", app.Status),
	)

	return app, nil
}

// Review adds reviewerID's review to the job and recomputes its rating from
// every stored review.
func (s *JobService) Review(ctx context.Context, reviewerID, id string, rating int, comment string) (*ReviewResult, error) {
	jobID, err := parseID("job", id)
	if err != nil {
		return nil, err
	}

	var res *ReviewResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		job, err := tx.Jobs().GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		now := s.now()
		r, err := job.AddReview(reviewerID, rating, comment, now)
		if err != nil {
			return err
		}
		inserted, err := tx.Jobs().AddReview(ctx, job.ID, r)
		if err != nil {
			return err
		}
		if !inserted {
			return apperrors.Conflict("you have already reviewed this job")
		}
		if err := tx.Jobs().SetRating(ctx, job.ID, job.Rating, now); err != nil {
			return err
		}
		res = &ReviewResult{TargetID: job.ID, Review: r, Rating: job.Rating, ReviewCount: len(job.Reviews)}
		return nil
	})
	reviewsTotal.WithLabelValues(reviewTargetJob, outcome(err, "created")).Inc()
	if err != nil {
		return nil, fmt.Errorf("review job: %w", err)
	}

	if err := s.producer.PublishJobReviewed(ctx, jobID, res.Review, res.Rating); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish job.reviewed event",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "job reviewed",
		slog.String("job_id", jobID),
		slog.String("reviewer_id", reviewerID),
		slog.Int("score", res.Review.Rating),
		slog.Float64("rating", res.Rating),
	)

	return res, nil
}

// ownedJob locks the job and checks that actorID owns it.
func (s *JobService) ownedJob(ctx context.Context, tx repository.Store, actorID, jobID string) (*domain.Job, error) {
	job, err := tx.Jobs().GetForUpdate(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsOwnedBy(actorID) {
		return nil, apperrors.Forbidden("only the job owner may modify this job")
	}
	return job, nil
}
