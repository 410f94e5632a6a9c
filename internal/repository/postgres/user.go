package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/SmallJobs/internal/domain"
	"github.com/utafrali/SmallJobs/pkg/database"
	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (id, name, email, password_hash, phone, address, role, bio, avatar, skills, rating, jobs_posted, jobs_applied, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	ctx, end := database.TraceQuery(ctx, "users.create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Name,
		u.Email,
		u.PasswordHash,
		u.Phone,
		u.Address,
		u.Role,
		u.Bio,
		u.Avatar,
		u.Skills,
		u.Rating,
		u.JobsPosted,
		u.JobsApplied,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userSelect = `
		SELECT
			u.id, u.name, u.email, u.password_hash, u.phone, u.address, u.role, u.bio,
			u.avatar, u.skills, u.rating, u.jobs_posted::text[], u.jobs_applied::text[],
			u.created_at, u.updated_at,
			COALESCE((
				SELECT JSONB_AGG(JSONB_BUILD_OBJECT(
					'reviewer_id', rv.reviewer_id,
					'rating', rv.rating,
					'comment', rv.comment,
					'created_at', rv.created_at
				) ORDER BY rv.created_at, rv.reviewer_id)
				FROM user_reviews rv WHERE rv.user_id = u.id
			), '[]'::jsonb) AS reviews
		FROM users u`

// GetByID retrieves a user with their reviews.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.get(ctx, "users.get", userSelect+"\n\t\tWHERE u.id = $1", id, id)
}

// GetByEmail retrieves a user by email. The email must already be lower-cased.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.get(ctx, "users.get_by_email", userSelect+"\n\t\tWHERE lower(u.email) = $1", email, email)
}

// GetForUpdate retrieves a user and locks their row.
func (r *UserRepository) GetForUpdate(ctx context.Context, id string) (*domain.User, error) {
	return r.get(ctx, "users.get_for_update", userSelect+"\n\t\tWHERE u.id = $1\n\t\tFOR UPDATE OF u", id, id)
}

func (r *UserRepository) get(ctx context.Context, op, query, key, id string) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	var (
		u       domain.User
		revJSON []byte
	)
	err = r.db.QueryRow(ctx, query, key).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Phone,
		&u.Address,
		&u.Role,
		&u.Bio,
		&u.Avatar,
		&u.Skills,
		&u.Rating,
		&u.JobsPosted,
		&u.JobsApplied,
		&u.CreatedAt,
		&u.UpdatedAt,
		&revJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.Reviews = []domain.Review{}
	if err = unmarshalList(revJSON, &u.Reviews); err != nil {
		return nil, fmt.Errorf("unmarshal user reviews: %w", err)
	}
	for _, s := range []*[]string{&u.Skills, &u.JobsPosted, &u.JobsApplied} {
		if *s == nil {
			*s = []string{}
		}
	}
	return &u, nil
}

// Summaries resolves user ids to display-safe summaries in one query.
func (r *UserRepository) Summaries(ctx context.Context, ids []string) (_ map[string]domain.UserSummary, err error) {
	out := make(map[string]domain.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT id, name, avatar, rating FROM users WHERE id::text = ANY($1)`

	ctx, end := database.TraceQuery(ctx, "users.summaries", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("load user summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.UserSummary
		if err = rows.Scan(&s.ID, &s.Name, &s.Avatar, &s.Rating); err != nil {
			return nil, fmt.Errorf("scan user summary: %w", err)
		}
		out[s.ID] = s
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user summaries: %w", err)
	}
	return out, nil
}

// UpdateProfile writes the editable profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, u *domain.User) (err error) {
	query := `
		UPDATE users
		SET name = $1, phone = $2, address = $3, bio = $4, avatar = $5, skills = $6, updated_at = $7
		WHERE id = $8`

	ctx, end := database.TraceQuery(ctx, "users.update_profile", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, u.Name, u.Phone, u.Address, u.Bio, u.Avatar, u.Skills, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}
	return nil
}

// AppendPostedJob adds jobID to the user's posted jobs.
func (r *UserRepository) AppendPostedJob(ctx context.Context, userID, jobID string) error {
	return r.mustUpdate(ctx, "users.append_posted_job",
		`UPDATE users SET jobs_posted = array_append(jobs_posted, $1::uuid), updated_at = NOW() WHERE id = $2`,
		userID, jobID, userID)
}

// RemovePostedJob drops jobID from the user's posted jobs.
func (r *UserRepository) RemovePostedJob(ctx context.Context, userID, jobID string) error {
	return r.mustUpdate(ctx, "users.remove_posted_job",
		`UPDATE users SET jobs_posted = array_remove(jobs_posted, $1::uuid), updated_at = NOW() WHERE id = $2`,
		userID, jobID, userID)
}

// AppendAppliedJob adds jobID to the user's applied jobs.
func (r *UserRepository) AppendAppliedJob(ctx context.Context, userID, jobID string) error {
	return r.mustUpdate(ctx, "users.append_applied_job",
		`UPDATE users SET jobs_applied = array_append(jobs_applied, $1::uuid), updated_at = NOW() WHERE id = $2`,
		userID, jobID, userID)
}

func (r *UserRepository) mustUpdate(ctx context.Context, op, query, userID string, args ...any) (err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", userID)
	}
	return nil
}

// RemoveAppliedJobEverywhere drops jobID from every user's applied jobs.
func (r *UserRepository) RemoveAppliedJobEverywhere(ctx context.Context, jobID string) (err error) {
	query := `
		UPDATE users
		SET jobs_applied = array_remove(jobs_applied, $1::uuid)
		WHERE $1::uuid = ANY(jobs_applied)`

	ctx, end := database.TraceQuery(ctx, "users.remove_applied_job", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, jobID); err != nil {
		return fmt.Errorf("remove applied job: %w", err)
	}
	return nil
}

// AddReview inserts a review of userID unless the reviewer already left one.
func (r *UserRepository) AddReview(ctx context.Context, userID string, rv domain.Review) (inserted bool, err error) {
	query := `
		INSERT INTO user_reviews (user_id, reviewer_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, reviewer_id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "users.add_review", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, userID, rv.ReviewerID, rv.Rating, rv.Comment, rv.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert user review: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetRating stores a recomputed user rating.
func (r *UserRepository) SetRating(ctx context.Context, userID string, rating float64, updatedAt time.Time) (err error) {
	query := `UPDATE users SET rating = $1, updated_at = $2 WHERE id = $3`

	ctx, end := database.TraceQuery(ctx, "users.set_rating", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, rating, updatedAt, userID); err != nil {
		return fmt.Errorf("update user rating: %w", err)
	}
	return nil
}
