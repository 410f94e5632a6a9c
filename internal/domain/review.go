package domain

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
)

// Review bounds.
const (
	MinRating        = 0
	MaxRating        = 5
	MaxCommentLength = 1000
)

// Review is a rating left by one user about a job or another user.
type Review struct {
	ReviewerID string    `json:"reviewer_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewReview validates rating and comment.
func NewReview(reviewerID string, rating int, comment string, now time.Time) (Review, error) {
	if rating < MinRating || rating > MaxRating {
		return Review{}, apperrors.InvalidInput("rating must be between 0 and 5")
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return Review{}, apperrors.InvalidInput("comment must be at most 1000 characters")
	}
	return Review{ReviewerID: reviewerID, Rating: rating, Comment: comment, CreatedAt: now}, nil
}

// AverageRating is the mean of all ratings rounded to one decimal, or 0 for
// no reviews. It is always computed from the full list.
func AverageRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	avg := float64(sum) / float64(len(reviews))
	return math.Round(avg*10) / 10
}

func hasReviewFrom(reviews []Review, userID string) bool {
	for _, r := range reviews {
		if r.ReviewerID == userID {
			return true
		}
	}
	return false
}
