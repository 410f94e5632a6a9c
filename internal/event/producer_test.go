package event

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/SmallJobs/internal/domain"
	pkgkafka "github.com/utafrali/SmallJobs/pkg/kafka"
	"github.com/utafrali/SmallJobs/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.events = append(r.events, e)
	return nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "smalljobs.job.created", TopicJobCreated)
	assert.Equal(t, "smalljobs.job.application_submitted", TopicApplicationSubmitted)
	assert.Equal(t, "smalljobs.user.reviewed", TopicUserReviewed)
}

func TestProducer_NilPublisherIsNoop(t *testing.T) {
	p := NewProducer(nil, newTestLogger())

	assert.False(t, p.Enabled())
	assert.NoError(t, p.PublishJobDeleted(context.Background(), "job-1", "owner-1"))

	var nilProducer *Producer
	assert.False(t, nilProducer.Enabled())
	assert.NoError(t, nilProducer.PublishJobDeleted(context.Background(), "job-1", "owner-1"))
}

func TestProducer_PublishJobCreated(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewProducer(rec, newTestLogger())

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	ctx = logger.WithUserID(ctx, "owner-1")
	j := &domain.Job{ID: "job-1", Title: "Clean the flat", OwnerID: "owner-1", Status: domain.JobStatusActive, Price: 40}

	require.NoError(t, p.PublishJobCreated(ctx, j))

	require.Len(t, rec.events, 1)
	assert.Equal(t, TopicJobCreated, rec.topics[0])
	e := rec.events[0]
	assert.Equal(t, AggregateTypeJob, e.AggregateType)
	assert.Equal(t, "job-1", e.AggregateID)
	assert.Equal(t, SourceService, e.Source)
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.Equal(t, "owner-1", e.Metadata["actor_id"])

	var data JobData
	require.NoError(t, e.UnmarshalData(&data))
	assert.Equal(t, "Clean the flat", data.Title)
	assert.Equal(t, 40.0, data.Price)
}

func TestProducer_PublishReviewAndApplication(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewProducer(rec, newTestLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, p.PublishApplicationDecided(ctx, "job-1", domain.Application{
		ApplicantID: "user-1", Status: domain.ApplicationAccepted, AppliedAt: now, DecidedAt: &now,
	}))
	require.NoError(t, p.PublishUserReviewed(ctx, "user-2", domain.Review{ReviewerID: "user-1", Rating: 5}, 4.5))

	require.Len(t, rec.events, 2)

	var app ApplicationData
	require.NoError(t, rec.events[0].UnmarshalData(&app))
	assert.Equal(t, "job-1", app.JobID)
	assert.Equal(t, domain.ApplicationAccepted, app.Status)
	require.NotNil(t, app.DecidedAt)

	var rv ReviewData
	require.NoError(t, rec.events[1].UnmarshalData(&rv))
	assert.Equal(t, TopicUserReviewed, rec.topics[1])
	assert.Equal(t, AggregateTypeUser, rec.events[1].AggregateType)
	assert.Equal(t, 5, rv.Score)
	assert.Equal(t, 4.5, rv.Rating)
}

func TestProducer_PublishErrorIsWrapped(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("broker down")}
	p := NewProducer(rec, newTestLogger())

	err := p.PublishUserRegistered(context.Background(), &domain.User{ID: "user-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), TopicUserRegistered)
	assert.Contains(t, err.Error(), "broker down")
}
