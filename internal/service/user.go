package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/utafrali/SmallJobs/internal/auth"
	"github.com/utafrali/SmallJobs/internal/domain"
	"github.com/utafrali/SmallJobs/internal/event"
	"github.com/utafrali/SmallJobs/internal/repository"
	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
}

// UserService implements accounts, profiles and user reviews.
type UserService struct {
	store    repository.Store
	hasher   *auth.Hasher
	tokens   *auth.JWTManager
	producer *event.Producer
	logger   *slog.Logger
	now      Clock
}

// NewUserService creates a new user service.
func NewUserService(
	store repository.Store,
	hasher *auth.Hasher,
	tokens *auth.JWTManager,
	producer *event.Producer,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		producer: producer,
		logger:   logger,
		now:      utcNow,
	}
}

// Register creates an account and returns it with an access token.
func (s *UserService) Register(ctx context.Context, in domain.RegisterInput) (*AuthResult, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	skills := in.Skills
	if skills == nil {
		skills = []string{}
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Phone:        in.Phone,
		Address:      in.Address,
		Role:         in.Role,
		Bio:          in.Bio,
		Skills:       skills,
		Reviews:      []domain.Review{},
		JobsPosted:   []string{},
		JobsApplied:  []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return tx.Users().Create(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	res, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)

	return res, nil
}

// Login checks the credentials and returns a fresh access token. Unknown
// emails and wrong passwords fail the same way.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperrors.InvalidInput("email and password are required")
	}

	var user *domain.User
	err := s.store.Read(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		user, err = st.Users().GetByEmail(ctx, email)
		return err
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !ok {
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	res, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
	)

	return res, nil
}

func (s *UserService) issue(user *domain.User) (*AuthResult, error) {
	token, err := s.tokens.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResult{User: user, AccessToken: token, TokenType: "Bearer"}, nil
}

// GetProfile returns the caller's own account.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	id, err := parseID("user", userID)
	if err != nil {
		return nil, err
	}

	var user *domain.User
	err = s.store.Read(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		user, err = st.Users().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return user, nil
}

// GetPublicProfile returns the display-safe view of a user with reviewers
// resolved.
func (s *UserService) GetPublicProfile(ctx context.Context, userID string) (*domain.PublicProfile, error) {
	id, err := parseID("user", userID)
	if err != nil {
		return nil, err
	}

	var profile *domain.PublicProfile
	err = s.store.Read(ctx, func(ctx context.Context, st repository.Store) error {
		user, err := st.Users().GetByID(ctx, id)
		if err != nil {
			return err
		}
		reviewers, err := st.Users().Summaries(ctx, user.ReviewerIDs())
		if err != nil {
			return err
		}
		profile = domain.NewPublicProfile(user, reviewers)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get public profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile merges patch into the caller's own profile.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.User, error) {
	id, err := parseID("user", userID)
	if err != nil {
		return nil, err
	}

	var user *domain.User
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		u, err := tx.Users().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := u.ApplyPatch(patch, s.now()); err != nil {
			return err
		}
		if err := tx.Users().UpdateProfile(ctx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.logger.InfoContext(ctx, "profile updated",
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// Review adds reviewerID's review to another user. The two must have worked
// together: one owns a job on which the other was accepted.
func (s *UserService) Review(ctx context.Context, reviewerID, userID string, rating int, comment string) (*ReviewResult, error) {
	id, err := parseID("user", userID)
	if err != nil {
		return nil, err
	}

	var res *ReviewResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		user, err := tx.Users().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if user.ID == reviewerID {
			return apperrors.InvalidInput("you cannot review yourself")
		}
		worked, err := tx.Jobs().HaveWorkedTogether(ctx, reviewerID, user.ID)
		if err != nil {
			return err
		}
		if !worked {
			return apperrors.InvalidState("you can only review users you have worked with")
		}

		now := s.now()
		r, err := user.AddReview(reviewerID, rating, comment, now)
		if err != nil {
			return err
		}
		inserted, err := tx.Users().AddReview(ctx, user.ID, r)
		if err != nil {
			return err
		}
		if !inserted {
			return apperrors.Conflict("you have already reviewed this user")
		}
		if err := tx.Users().SetRating(ctx, user.ID, user.Rating, now); err != nil {
			return err
		}
		res = &ReviewResult{TargetID: user.ID, Review: r, Rating: user.Rating, ReviewCount: len(user.Reviews)}
		return nil
	})
	reviewsTotal.WithLabelValues(reviewTargetUser, outcome(err, "created")).Inc()
	if err != nil {
		return nil, fmt.Errorf("review user: %w", err)
	}

	if err := s.producer.PublishUserReviewed(ctx, id, res.Review, res.Rating); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.reviewed event",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user reviewed",
		slog.String("user_id", id),
		slog.String("reviewer_id", reviewerID),
		slog.Float64("rating", res.Rating),
	)

	return res, nil
}
