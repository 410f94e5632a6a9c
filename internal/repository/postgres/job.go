package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/SmallJobs/internal/domain"
	"github.com/utafrali/SmallJobs/pkg/database"
	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
	"github.com/utafrali/SmallJobs/pkg/pagination"
)

// JobRepository implements repository.JobRepository using PostgreSQL.
type JobRepository struct {
	db database.DBTX
}

// NewJobRepository creates a new PostgreSQL-backed job repository.
func NewJobRepository(db database.DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job row.
func (r *JobRepository) Create(ctx context.Context, j *domain.Job) (err error) {
	query := `
		INSERT INTO jobs (id, title, category, description, details, price, location, deadline, requirements, tags, status, owner_id, rating, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	ctx, end := database.TraceQuery(ctx, "jobs.create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		j.ID,
		j.Title,
		j.Category,
		j.Description,
		j.Details,
		j.Price,
		j.Location,
		j.Deadline,
		j.Requirements,
		j.Tags,
		j.Status,
		j.OwnerID,
		j.Rating,
		j.CreatedAt,
		j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// jobSelect loads a job with its applications and reviews aggregated as JSON,
// one row per job.
const jobSelect = `
		SELECT
			j.id, j.title, j.category, j.description, j.details, j.price, j.location,
			j.deadline, j.requirements, j.tags, j.status, j.owner_id, j.rating,
			j.created_at, j.updated_at,
			COALESCE((
				SELECT JSONB_AGG(JSONB_BUILD_OBJECT(
					'applicant_id', a.applicant_id,
					'status', a.status,
					'applied_at', a.applied_at,
					'decided_at', a.decided_at
				) ORDER BY a.applied_at, a.applicant_id)
				FROM job_applications a WHERE a.job_id = j.id
			), '[]'::jsonb) AS applications,
			COALESCE((
				SELECT JSONB_AGG(JSONB_BUILD_OBJECT(
					'reviewer_id', rv.reviewer_id,
					'rating', rv.rating,
					'comment', rv.comment,
					'created_at', rv.created_at
				) ORDER BY rv.created_at, rv.reviewer_id)
				FROM job_reviews rv WHERE rv.job_id = j.id
			), '[]'::jsonb) AS reviews
		FROM jobs j
		WHERE j.id = $1`

// GetByID retrieves a job with its applications and reviews.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	return r.get(ctx, "jobs.get", jobSelect, id)
}

// GetForUpdate retrieves a job and locks its row.
func (r *JobRepository) GetForUpdate(ctx context.Context, id string) (*domain.Job, error) {
	return r.get(ctx, "jobs.get_for_update", jobSelect+"\n\t\tFOR UPDATE OF j", id)
}

func (r *JobRepository) get(ctx context.Context, op, query, id string) (_ *domain.Job, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	var (
		j        domain.Job
		appsJSON []byte
		revJSON  []byte
	)
	err = r.db.QueryRow(ctx, query, id).Scan(
		&j.ID,
		&j.Title,
		&j.Category,
		&j.Description,
		&j.Details,
		&j.Price,
		&j.Location,
		&j.Deadline,
		&j.Requirements,
		&j.Tags,
		&j.Status,
		&j.OwnerID,
		&j.Rating,
		&j.CreatedAt,
		&j.UpdatedAt,
		&appsJSON,
		&revJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("job", id)
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	j.Applications = []domain.Application{}
	if err = unmarshalList(appsJSON, &j.Applications); err != nil {
		return nil, fmt.Errorf("unmarshal job applications: %w", err)
	}
	j.Reviews = []domain.Review{}
	if err = unmarshalList(revJSON, &j.Reviews); err != nil {
		return nil, fmt.Errorf("unmarshal job reviews: %w", err)
	}
	if j.Requirements == nil {
		j.Requirements = []string{}
	}
	if j.Tags == nil {
		j.Tags = []string{}
	}
	return &j, nil
}

func unmarshalList(data []byte, dst any) error {
	if len(data) == 0 || string(data) == "null" || string(data) == "[]" {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// List returns one page of active jobs matching filter with the total count.
func (r *JobRepository) List(ctx context.Context, filter domain.JobFilter, page pagination.Params) (_ []domain.JobListItem, _ int, err error) {
	var (
		conditions = []string{"j.status = $1"}
		args       = []any{domain.JobStatusActive}
		argIndex   = 2
	)

	if q := strings.TrimSpace(filter.Query); q != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(j.title ILIKE $%d OR j.description ILIKE $%d OR EXISTS (SELECT 1 FROM unnest(j.tags) AS t(tag) WHERE t.tag ILIKE $%d))",
			argIndex, argIndex, argIndex))
		args = append(args, "%"+escapeLike(q)+"%")
		argIndex++
	}

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("j.category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if loc := strings.TrimSpace(filter.Location); loc != "" {
		conditions = append(conditions, fmt.Sprintf("j.location ILIKE $%d", argIndex))
		args = append(args, "%"+escapeLike(loc)+"%")
		argIndex++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	query := fmt.Sprintf(`
		SELECT
			j.id, j.title, j.category, j.description, j.price, j.location, j.deadline,
			j.tags, j.status, j.rating, j.created_at,
			u.id, u.name, u.avatar, u.rating,
			(SELECT count(*) FROM job_applications a WHERE a.job_id = j.id) AS application_count,
			(SELECT count(*) FROM job_reviews rv WHERE rv.job_id = j.id) AS review_count,
			count(*) OVER() AS total_count
		FROM jobs j
		JOIN users u ON u.id = j.owner_id
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		whereClause, orderBy(filter.Sort), argIndex, argIndex+1,
	)

	ctx, end := database.TraceQuery(ctx, "jobs.list", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, append(args, page.PageSize, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var total int
	items := make([]domain.JobListItem, 0)
	for rows.Next() {
		var it domain.JobListItem
		if err = rows.Scan(
			&it.ID,
			&it.Title,
			&it.Category,
			&it.Description,
			&it.Price,
			&it.Location,
			&it.Deadline,
			&it.Tags,
			&it.Status,
			&it.Rating,
			&it.CreatedAt,
			&it.Owner.ID,
			&it.Owner.Name,
			&it.Owner.Avatar,
			&it.Owner.Rating,
			&it.ApplicationCount,
			&it.ReviewCount,
			&total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan job row: %w", err)
		}
		if it.Tags == nil {
			it.Tags = []string{}
		}
		items = append(items, it)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate job rows: %w", err)
	}

	// Past the last page the window count is unavailable.
	if len(items) == 0 && page.Offset > 0 {
		countQuery := "SELECT count(*) FROM jobs j " + whereClause
		if err = r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count jobs: %w", err)
		}
	}

	return items, total, nil
}

func orderBy(sort string) string {
	switch domain.ParseSort(sort) {
	case domain.SortPriceLow:
		return "j.price ASC, j.created_at DESC, j.id"
	case domain.SortPriceHigh:
		return "j.price DESC, j.created_at DESC, j.id"
	case domain.SortRating:
		return "j.rating DESC, j.created_at DESC, j.id"
	default:
		return "j.created_at DESC, j.id"
	}
}

// Update writes the mutable job fields.
func (r *JobRepository) Update(ctx context.Context, j *domain.Job) (err error) {
	query := `
		UPDATE jobs
		SET title = $1, category = $2, description = $3, details = $4, price = $5, location = $6,
			deadline = $7, requirements = $8, tags = $9, status = $10, updated_at = $11
		WHERE id = $12`

	ctx, end := database.TraceQuery(ctx, "jobs.update", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query,
		j.Title,
		j.Category,
		j.Description,
		j.Details,
		j.Price,
		j.Location,
		j.Deadline,
		j.Requirements,
		j.Tags,
		j.Status,
		j.UpdatedAt,
		j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("job", j.ID)
	}
	return nil
}

// Delete removes a job. Applications and reviews cascade.
func (r *JobRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM jobs WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "jobs.delete", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("job", id)
	}
	return nil
}

// TitleExists reports whether a job with this title exists, ignoring case.
func (r *JobRepository) TitleExists(ctx context.Context, title string) (exists bool, err error) {
	query := `SELECT EXISTS (SELECT 1 FROM jobs WHERE lower(title) = lower($1))`

	ctx, end := database.TraceQuery(ctx, "jobs.title_exists", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, title).Scan(&exists); err != nil {
		return false, fmt.Errorf("check job title: %w", err)
	}
	return exists, nil
}

// LockTitle takes a transaction-scoped advisory lock keyed on the lower-cased
// title. It must run inside a transaction.
func (r *JobRepository) LockTitle(ctx context.Context, title string) (err error) {
	query := `SELECT pg_advisory_xact_lock(hashtext(lower($1)))`

	ctx, end := database.TraceQuery(ctx, "jobs.lock_title", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, title); err != nil {
		return fmt.Errorf("lock job title: %w", err)
	}
	return nil
}

// AddApplication inserts an application unless the user already applied.
func (r *JobRepository) AddApplication(ctx context.Context, jobID string, a domain.Application) (inserted bool, err error) {
	query := `
		INSERT INTO job_applications (job_id, applicant_id, status, applied_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, applicant_id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "jobs.add_application", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, jobID, a.ApplicantID, a.Status, a.AppliedAt)
	if err != nil {
		return false, fmt.Errorf("insert job application: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateApplicationStatus stores the decision on a pending application.
func (r *JobRepository) UpdateApplicationStatus(ctx context.Context, jobID string, a domain.Application) (err error) {
	query := `
		UPDATE job_applications
		SET status = $1, decided_at = $2
		WHERE job_id = $3 AND applicant_id = $4 AND status = 'pending'`

	ctx, end := database.TraceQuery(ctx, "jobs.update_application", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, a.Status, a.DecidedAt, jobID, a.ApplicantID)
	if err != nil {
		return fmt.Errorf("update job application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("application", a.ApplicantID)
	}
	return nil
}

// AddReview inserts a review unless the reviewer already reviewed the job.
func (r *JobRepository) AddReview(ctx context.Context, jobID string, rv domain.Review) (inserted bool, err error) {
	query := `
		INSERT INTO job_reviews (job_id, reviewer_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, reviewer_id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "jobs.add_review", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, jobID, rv.ReviewerID, rv.Rating, rv.Comment, rv.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert job review: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetRating stores a recomputed job rating.
func (r *JobRepository) SetRating(ctx context.Context, jobID string, rating float64, updatedAt time.Time) (err error) {
	query := `UPDATE jobs SET rating = $1, updated_at = $2 WHERE id = $3`

	ctx, end := database.TraceQuery(ctx, "jobs.set_rating", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, rating, updatedAt, jobID); err != nil {
		return fmt.Errorf("update job rating: %w", err)
	}
	return nil
}

// HaveWorkedTogether reports whether either user owns a job the other was
// accepted on.
func (r *JobRepository) HaveWorkedTogether(ctx context.Context, userA, userB string) (ok bool, err error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM jobs j
			JOIN job_applications a ON a.job_id = j.id
			WHERE a.status = 'accepted'
			  AND ((j.owner_id = $1 AND a.applicant_id = $2) OR (j.owner_id = $2 AND a.applicant_id = $1))
		)`

	ctx, end := database.TraceQuery(ctx, "jobs.worked_together", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, userA, userB).Scan(&ok); err != nil {
		return false, fmt.Errorf("check shared job: %w", err)
	}
	return ok, nil
}
