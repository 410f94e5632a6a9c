package domain

import (
	"strings"
	"time"

	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
	"github.com/utafrali/SmallJobs/pkg/validator"
)

// User roles.
const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
)

// MaxSkills caps the number of skills on a profile.
const MaxSkills = 10

var commonPasswordPatterns = []string{"password", "123456", "qwerty", "admin"}

// User is an account. PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	Role         string    `json:"role"`
	Bio          string    `json:"bio,omitempty"`
	Avatar       string    `json:"avatar"`
	Skills       []string  `json:"skills"`
	Rating       float64   `json:"rating"`
	Reviews      []Review  `json:"reviews"`
	JobsPosted   []string  `json:"jobs_posted"`
	JobsApplied  []string  `json:"jobs_applied"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary returns the display-safe projection of u.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Avatar: u.Avatar, Rating: u.Rating}
}

// HasReviewFrom reports whether reviewerID already reviewed u.
func (u *User) HasReviewFrom(reviewerID string) bool {
	return hasReviewFrom(u.Reviews, reviewerID)
}

// AddReview appends a review from reviewerID and recomputes the rating.
// Eligibility (a shared, accepted job) is checked by the caller.
func (u *User) AddReview(reviewerID string, rating int, comment string, now time.Time) (Review, error) {
	if reviewerID == u.ID {
		return Review{}, apperrors.InvalidInput("you cannot review yourself")
	}
	r, err := NewReview(reviewerID, rating, comment, now)
	if err != nil {
		return Review{}, err
	}
	if u.HasReviewFrom(reviewerID) {
		return Review{}, apperrors.Conflict("you have already reviewed this user")
	}

	u.Reviews = append(u.Reviews, r)
	u.Rating = AverageRating(u.Reviews)
	u.UpdatedAt = now
	return r, nil
}

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Name     string   `json:"name" validate:"required,notblank,min=2,max=100"`
	Email    string   `json:"email" validate:"required,email,max=255"`
	Password string   `json:"password" validate:"required,min=8,max=100,password"`
	Phone    string   `json:"phone" validate:"required,notblank,max=30"`
	Address  string   `json:"address" validate:"required,notblank,max=255"`
	Role     string   `json:"role" validate:"omitempty,oneof=customer provider"`
	Bio      string   `json:"bio" validate:"max=1000"`
	Skills   []string `json:"skills" validate:"max=10,dive,notblank,max=50"`
}

// Normalize trims fields, lower-cases the email and defaults the role.
func (in *RegisterInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.Bio = strings.TrimSpace(in.Bio)
	in.Skills = trimAll(in.Skills)
	if in.Role == "" {
		in.Role = RoleCustomer
	}
}

// Validate checks field bounds and rejects passwords built on common patterns.
func (in *RegisterInput) Validate() error {
	if err := validator.Validate(in); err != nil {
		return err
	}
	lower := strings.ToLower(in.Password)
	for _, p := range commonPasswordPatterns {
		if strings.Contains(lower, p) {
			return apperrors.InvalidInput("password is too common and insecure")
		}
	}
	return nil
}

// ProfilePatch is a partial profile update. Email, role, rating and reviews
// are not patchable.
type ProfilePatch struct {
	Name    *string  `json:"name" validate:"omitempty,notblank,min=2,max=100"`
	Phone   *string  `json:"phone" validate:"omitempty,notblank,max=30"`
	Address *string  `json:"address" validate:"omitempty,notblank,max=255"`
	Bio     *string  `json:"bio" validate:"omitempty,max=1000"`
	Avatar  *string  `json:"avatar" validate:"omitempty,url,max=500"`
	Skills  []string `json:"skills" validate:"omitempty,max=10,dive,notblank,max=50"`
}

// ApplyPatch validates p and merges it into u.
func (u *User) ApplyPatch(p ProfilePatch, now time.Time) error {
	trimPtr(p.Name)
	trimPtr(p.Phone)
	trimPtr(p.Address)
	trimPtr(p.Bio)
	trimPtr(p.Avatar)
	if p.Skills != nil {
		p.Skills = trimAll(p.Skills)
	}
	if err := validator.Validate(p); err != nil {
		return err
	}

	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Address != nil {
		u.Address = *p.Address
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Skills != nil {
		u.Skills = p.Skills
	}
	u.UpdatedAt = now
	return nil
}
