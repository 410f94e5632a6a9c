package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/SmallJobs/internal/domain"
	"github.com/utafrali/SmallJobs/internal/event"
	"github.com/utafrali/SmallJobs/internal/repository"
	pkgkafka "github.com/utafrali/SmallJobs/pkg/kafka"
	"github.com/utafrali/SmallJobs/pkg/pagination"
)

// --- Mock Job Repository ---

type mockJobRepository struct {
	mock.Mock
}

func (m *mockJobRepository) Create(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockJobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *mockJobRepository) GetForUpdate(ctx context.Context, id string) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *mockJobRepository) List(ctx context.Context, filter domain.JobFilter, page pagination.Params) ([]domain.JobListItem, int, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.JobListItem), args.Int(1), args.Error(2)
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockJobRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockJobRepository) TitleExists(ctx context.Context, title string) (bool, error) {
	args := m.Called(ctx, title)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRepository) LockTitle(ctx context.Context, title string) error {
	args := m.Called(ctx, title)
	return args.Error(0)
}

func (m *mockJobRepository) AddApplication(ctx context.Context, jobID string, a domain.Application) (bool, error) {
	args := m.Called(ctx, jobID, a)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRepository) UpdateApplicationStatus(ctx context.Context, jobID string, a domain.Application) error {
	args := m.Called(ctx, jobID, a)
	return args.Error(0)
}

func (m *mockJobRepository) AddReview(ctx context.Context, jobID string, r domain.Review) (bool, error) {
	args := m.Called(ctx, jobID, r)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRepository) SetRating(ctx context.Context, jobID string, rating float64, updatedAt time.Time) error {
	args := m.Called(ctx, jobID, rating, updatedAt)
	return args.Error(0)
}

func (m *mockJobRepository) HaveWorkedTogether(ctx context.Context, userA, userB string) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetForUpdate(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Summaries(ctx context.Context, ids []string) (map[string]domain.UserSummary, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.UserSummary), args.Error(1)
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) AppendPostedJob(ctx context.Context, userID, jobID string) error {
	args := m.Called(ctx, userID, jobID)
	return args.Error(0)
}

func (m *mockUserRepository) RemovePostedJob(ctx context.Context, userID, jobID string) error {
	args := m.Called(ctx, userID, jobID)
	return args.Error(0)
}

func (m *mockUserRepository) AppendAppliedJob(ctx context.Context, userID, jobID string) error {
	args := m.Called(ctx, userID, jobID)
	return args.Error(0)
}

func (m *mockUserRepository) RemoveAppliedJobEverywhere(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *mockUserRepository) AddReview(ctx context.Context, userID string, r domain.Review) (bool, error) {
	args := m.Called(ctx, userID, r)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepository) SetRating(ctx context.Context, userID string, rating float64, updatedAt time.Time) error {
	args := m.Called(ctx, userID, rating, updatedAt)
	return args.Error(0)
}

// --- Fake Store ---

// fakeStore runs callbacks directly against the mock repositories and counts
// how often each boundary was entered.
type fakeStore struct {
	jobs  *mockJobRepository
	users *mockUserRepository

	reads int
	txs   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: new(mockJobRepository), users: new(mockUserRepository)}
}

func (s *fakeStore) Jobs() repository.JobRepository   { return s.jobs }
func (s *fakeStore) Users() repository.UserRepository { return s.users }

func (s *fakeStore) Read(ctx context.Context, fn func(ctx context.Context, st repository.Store) error) error {
	s.reads++
	return fn(ctx, s)
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, st repository.Store) error) error {
	s.txs++
	return fn(ctx, s)
}

func (s *fakeStore) assertExpectations(t mock.TestingT) {
	s.jobs.AssertExpectations(t)
	s.users.AssertExpectations(t)
}

// --- Recording Publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, *pkgkafka.Event) error {
	return errors.New("broker unavailable")
}

// --- Test Helpers ---

const (
	ownerID     = "11111111-1111-1111-1111-111111111111"
	applicantID = "22222222-2222-2222-2222-222222222222"
	otherID     = "33333333-3333-3333-3333-333333333333"
	jobID       = "44444444-4444-4444-4444-444444444444"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fixedClock() time.Time { return testNow }

func newTestJobService(store *fakeStore) (*JobService, *recordingPublisher) {
	rec := &recordingPublisher{}
	svc := NewJobService(store, event.NewProducer(rec, newTestLogger()), newTestLogger(), true)
	svc.now = fixedClock
	return svc, rec
}

func validJobInput() domain.JobInput {
	return domain.JobInput{
		Title:        "Mow the back lawn",
		Category:     domain.CategoryGardening,
		Description:  "Medium sized lawn, mower and bags provided on site.",
		Price:        50,
		Location:     "Kadikoy, Istanbul",
		Deadline:     testNow.Add(30 * 24 * time.Hour),
		Requirements: []string{"Own transport", "Weekend availability"},
		Tags:         []string{"garden"},
	}
}

// activeJob returns a fresh job owned by ownerID. Callers add applications
// and reviews as needed; every mock return gets its own copy because the
// service mutates what it loads.
func activeJob(apps ...domain.Application) *domain.Job {
	applications := append([]domain.Application{}, apps...)
	return &domain.Job{
		ID:           jobID,
		Title:        "Mow the back lawn",
		Category:     domain.CategoryGardening,
		Description:  "Medium sized lawn, mower and bags provided on site.",
		Price:        50,
		Location:     "Kadikoy, Istanbul",
		Deadline:     testNow.Add(30 * 24 * time.Hour),
		Requirements: []string{"Own transport", "Weekend availability"},
		Tags:         []string{"garden"},
		Status:       domain.JobStatusActive,
		OwnerID:      ownerID,
		Applications: applications,
		Reviews:      []domain.Review{},
		CreatedAt:    testNow.Add(-time.Hour),
		UpdatedAt:    testNow.Add(-time.Hour),
	}
}

func application(userID, status string) domain.Application {
	return domain.Application{ApplicantID: userID, Status: status, AppliedAt: testNow.Add(-time.Hour)}
}
