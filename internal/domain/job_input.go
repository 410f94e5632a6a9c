package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
	"github.com/utafrali/SmallJobs/pkg/validator"
)

// MaxDeadlineAhead is how far in the future a deadline may be set.
const MaxDeadlineAhead = 365 * 24 * time.Hour

// JobInput holds the caller-supplied fields of a new job.
type JobInput struct {
	Title        string    `json:"title" validate:"required,notblank,min=5,max=100"`
	Category     string    `json:"category" validate:"required"`
	Description  string    `json:"description" validate:"required,notblank,min=20,max=1000"`
	Details      string    `json:"details" validate:"max=5000"`
	Price        float64   `json:"price" validate:"gt=0,lte=100000"`
	Location     string    `json:"location" validate:"required,notblank,max=200"`
	Deadline     time.Time `json:"deadline" validate:"required"`
	Requirements []string  `json:"requirements" validate:"min=2,max=10,dive,notblank,max=200"`
	Tags         []string  `json:"tags" validate:"max=5,dive,notblank,max=30"`
}

// NewJob validates in and builds an active job owned by ownerID.
func NewJob(in JobInput, ownerID string, now time.Time) (*Job, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Description = strings.TrimSpace(in.Description)
	in.Details = strings.TrimSpace(in.Details)
	in.Location = strings.TrimSpace(in.Location)
	in.Requirements = trimAll(in.Requirements)
	in.Tags = trimAll(in.Tags)

	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	if !IsValidCategory(in.Category) {
		return nil, apperrors.InvalidInput("category must be one of: " + strings.Join(ValidCategories(), ", "))
	}
	if err := checkDeadline(in.Deadline, now); err != nil {
		return nil, err
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	return &Job{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Category:     in.Category,
		Description:  in.Description,
		Details:      in.Details,
		Price:        in.Price,
		Location:     in.Location,
		Deadline:     in.Deadline.UTC(),
		Requirements: in.Requirements,
		Tags:         tags,
		Status:       JobStatusActive,
		OwnerID:      ownerID,
		Applications: []Application{},
		Reviews:      []Review{},
		Rating:       0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// JobPatch is a partial update. Nil fields are left unchanged. Owner,
// applications, reviews and rating are not patchable.
type JobPatch struct {
	Title        *string    `json:"title" validate:"omitempty,notblank,min=5,max=100"`
	Category     *string    `json:"category"`
	Description  *string    `json:"description" validate:"omitempty,notblank,min=20,max=1000"`
	Details      *string    `json:"details" validate:"omitempty,max=5000"`
	Price        *float64   `json:"price" validate:"omitempty,gt=0,lte=100000"`
	Location     *string    `json:"location" validate:"omitempty,notblank,max=200"`
	Deadline     *time.Time `json:"deadline"`
	Requirements []string   `json:"requirements" validate:"omitempty,min=2,max=10,dive,notblank,max=200"`
	Tags         []string   `json:"tags" validate:"omitempty,max=5,dive,notblank,max=30"`
	Status       *string    `json:"status"`
}

// ApplyPatch validates p and merges it into j.
func (j *Job) ApplyPatch(p JobPatch, now time.Time) error {
	trimPtr(p.Title)
	trimPtr(p.Category)
	trimPtr(p.Description)
	trimPtr(p.Details)
	trimPtr(p.Location)
	if p.Requirements != nil {
		p.Requirements = trimAll(p.Requirements)
	}
	if p.Tags != nil {
		p.Tags = trimAll(p.Tags)
	}

	if err := validator.Validate(p); err != nil {
		return err
	}
	if p.Category != nil && !IsValidCategory(*p.Category) {
		return apperrors.InvalidInput("category must be one of: " + strings.Join(ValidCategories(), ", "))
	}
	if p.Deadline != nil {
		if err := checkDeadline(*p.Deadline, now); err != nil {
			return err
		}
	}
	if p.Status != nil && *p.Status != j.Status && !j.CanTransitionTo(*p.Status) {
		return apperrors.InvalidState("cannot change job status from " + j.Status + " to " + *p.Status)
	}

	if p.Title != nil {
		j.Title = *p.Title
	}
	if p.Category != nil {
		j.Category = *p.Category
	}
	if p.Description != nil {
		j.Description = *p.Description
	}
	if p.Details != nil {
		j.Details = *p.Details
	}
	if p.Price != nil {
		j.Price = *p.Price
	}
	if p.Location != nil {
		j.Location = *p.Location
	}
	if p.Deadline != nil {
		j.Deadline = p.Deadline.UTC()
	}
	if p.Requirements != nil {
		j.Requirements = p.Requirements
	}
	if p.Tags != nil {
		j.Tags = p.Tags
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
	j.UpdatedAt = now
	return nil
}

func checkDeadline(deadline, now time.Time) error {
	if !deadline.After(now) {
		return apperrors.InvalidInput("deadline must be in the future")
	}
	if deadline.Sub(now) > MaxDeadlineAhead {
		return apperrors.InvalidInput("deadline cannot be more than 1 year in the future")
	}
	return nil
}

func trimAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
