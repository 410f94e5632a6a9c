package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/SmallJobs/internal/domain"
	pkgkafka "github.com/utafrali/SmallJobs/pkg/kafka"
)

// Kafka topics for marketplace events.
var (
	TopicJobCreated           = pkgkafka.Topic("job", "created")
	TopicJobUpdated           = pkgkafka.Topic("job", "updated")
	TopicJobDeleted           = pkgkafka.Topic("job", "deleted")
	TopicApplicationSubmitted = pkgkafka.Topic("job", "application_submitted")
	TopicApplicationDecided   = pkgkafka.Topic("job", "application_decided")
	TopicJobReviewed          = pkgkafka.Topic("job", "reviewed")
	TopicUserReviewed         = pkgkafka.Topic("user", "reviewed")
	TopicUserRegistered       = pkgkafka.Topic("user", "registered")
)

// Aggregate types.
const (
	AggregateTypeJob  = "job"
	AggregateTypeUser = "user"
)

// SourceService identifies events originating from this service.
const SourceService = "smalljobs-api"

// JobData is the payload for job.created and job.updated.
type JobData struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Price    float64   `json:"price"`
	Location string    `json:"location"`
	Deadline time.Time `json:"deadline"`
	Tags     []string  `json:"tags"`
	Status   string    `json:"status"`
	OwnerID  string    `json:"owner_id"`
}

// JobDeletedData is the payload for job.deleted.
type JobDeletedData struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
}

// ApplicationData is the payload for application_submitted and application_decided.
type ApplicationData struct {
	JobID       string     `json:"job_id"`
	ApplicantID string     `json:"applicant_id"`
	Status      string     `json:"status"`
	AppliedAt   time.Time  `json:"applied_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

// ReviewData is the payload for job.reviewed and user.reviewed. Rating is
// the target's recomputed rating.
type ReviewData struct {
	TargetID   string  `json:"target_id"`
	ReviewerID string  `json:"reviewer_id"`
	Score      int     `json:"score"`
	Rating     float64 `json:"rating"`
}

// UserRegisteredData is the payload for user.registered.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Publisher writes an envelope to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes marketplace events. With a nil Publisher every method
// is a no-op, which is how the service runs without Kafka configured.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// Enabled reports whether events are actually sent anywhere.
func (p *Producer) Enabled() bool {
	return p != nil && p.kafka != nil
}

func (p *Producer) publish(ctx context.Context, topic, aggregateType, aggregateID string, data any) error {
	if !p.Enabled() {
		return nil
	}

	event, err := pkgkafka.NewEvent(ctx, topic, aggregateType, aggregateID, SourceService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

func jobData(j *domain.Job) JobData {
	return JobData{
		ID:       j.ID,
		Title:    j.Title,
		Category: j.Category,
		Price:    j.Price,
		Location: j.Location,
		Deadline: j.Deadline,
		Tags:     j.Tags,
		Status:   j.Status,
		OwnerID:  j.OwnerID,
	}
}

// PublishJobCreated publishes a job.created event.
func (p *Producer) PublishJobCreated(ctx context.Context, j *domain.Job) error {
	return p.publish(ctx, TopicJobCreated, AggregateTypeJob, j.ID, jobData(j))
}

// PublishJobUpdated publishes a job.updated event.
func (p *Producer) PublishJobUpdated(ctx context.Context, j *domain.Job) error {
	return p.publish(ctx, TopicJobUpdated, AggregateTypeJob, j.ID, jobData(j))
}

// PublishJobDeleted publishes a job.deleted event.
func (p *Producer) PublishJobDeleted(ctx context.Context, jobID, ownerID string) error {
	return p.publish(ctx, TopicJobDeleted, AggregateTypeJob, jobID, JobDeletedData{ID: jobID, OwnerID: ownerID})
}

// PublishApplicationSubmitted publishes a job.application_submitted event.
func (p *Producer) PublishApplicationSubmitted(ctx context.Context, jobID string, a domain.Application) error {
	return p.publish(ctx, TopicApplicationSubmitted, AggregateTypeJob, jobID, applicationData(jobID, a))
}

// PublishApplicationDecided publishes a job.application_decided event.
func (p *Producer) PublishApplicationDecided(ctx context.Context, jobID string, a domain.Application) error {
	return p.publish(ctx, TopicApplicationDecided, AggregateTypeJob, jobID, applicationData(jobID, a))
}

func applicationData(jobID string, a domain.Application) ApplicationData {
	return ApplicationData{
		JobID:       jobID,
		ApplicantID: a.ApplicantID,
		Status:      a.Status,
		AppliedAt:   a.AppliedAt,
		DecidedAt:   a.DecidedAt,
	}
}

// PublishJobReviewed publishes a job.reviewed event.
func (p *Producer) PublishJobReviewed(ctx context.Context, jobID string, r domain.Review, rating float64) error {
	return p.publish(ctx, TopicJobReviewed, AggregateTypeJob, jobID, ReviewData{
		TargetID: jobID, ReviewerID: r.ReviewerID, Score: r.Rating, Rating: rating,
	})
}

// PublishUserReviewed publishes a user.reviewed event.
func (p *Producer) PublishUserReviewed(ctx context.Context, userID string, r domain.Review, rating float64) error {
	return p.publish(ctx, TopicUserReviewed, AggregateTypeUser, userID, ReviewData{
		TargetID: userID, ReviewerID: r.ReviewerID, Score: r.Rating, Rating: rating,
	})
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, u *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, AggregateTypeUser, u.ID, UserRegisteredData{
		ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role,
	})
}
