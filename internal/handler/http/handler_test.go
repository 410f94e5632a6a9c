package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/SmallJobs/internal/domain"
	"github.com/utafrali/SmallJobs/internal/service"
	"github.com/utafrali/SmallJobs/pkg/health"
	"github.com/utafrali/SmallJobs/pkg/httputil"
	"github.com/utafrali/SmallJobs/pkg/middleware"
	"github.com/utafrali/SmallJobs/pkg/pagination"
)

// ============================================================================
// Mock Services
// ============================================================================

type mockJobService struct {
	mock.Mock
}

func (m *mockJobService) Create(ctx context.Context, ownerID string, in domain.JobInput) (*domain.Job, error) {
	args := m.Called(ctx, ownerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *mockJobService) Get(ctx context.Context, id string) (*domain.JobDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.JobDetail), args.Error(1)
}

func (m *mockJobService) List(ctx context.Context, filter domain.JobFilter, page pagination.Params) (pagination.Result[domain.JobListItem], error) {
	args := m.Called(ctx, filter, page)
	return args.Get(0).(pagination.Result[domain.JobListItem]), args.Error(1)
}

func (m *mockJobService) Update(ctx context.Context, actorID, id string, patch domain.JobPatch) (*domain.Job, error) {
	args := m.Called(ctx, actorID, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *mockJobService) Delete(ctx context.Context, actorID, id string) error {
	args := m.Called(ctx, actorID, id)
	return args.Error(0)
}

func (m *mockJobService) Apply(ctx context.Context, userID, id string) (domain.Application, error) {
	args := m.Called(ctx, userID, id)
	return args.Get(0).(domain.Application), args.Error(1)
}

func (m *mockJobService) Decide(ctx context.Context, ownerID, id, applicantID, status string) (domain.Application, error) {
	args := m.Called(ctx, ownerID, id, applicantID, status)
	return args.Get(0).(domain.Application), args.Error(1)
}

func (m *mockJobService) Review(ctx context.Context, reviewerID, id string, rating int, comment string) (*service.ReviewResult, error) {
	args := m.Called(ctx, reviewerID, id, rating, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReviewResult), args.Error(1)
}

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) Register(ctx context.Context, in domain.RegisterInput) (*service.AuthResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuthResult), args.Error(1)
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*service.AuthResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuthResult), args.Error(1)
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserService) GetPublicProfile(ctx context.Context, userID string) (*domain.PublicProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PublicProfile), args.Error(1)
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.User, error) {
	args := m.Called(ctx, userID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserService) Review(ctx context.Context, reviewerID, userID string, rating int, comment string) (*service.ReviewResult, error) {
	args := m.Called(ctx, reviewerID, userID, rating, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReviewResult), args.Error(1)
}

// ============================================================================
// Test Helpers
// ============================================================================

const (
	ownerID     = "11111111-1111-1111-1111-111111111111"
	applicantID = "22222222-2222-2222-2222-222222222222"
	jobID       = "44444444-4444-4444-4444-444444444444"

	ownerToken     = "owner-token"
	applicantToken = "applicant-token"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testTokens(token string) (*middleware.Claims, error) {
	switch token {
	case ownerToken:
		return &middleware.Claims{UserID: ownerID, Role: domain.RoleCustomer}, nil
	case applicantToken:
		return &middleware.Claims{UserID: applicantID, Role: domain.RoleProvider}, nil
	default:
		return nil, errors.New("unknown token")
	}
}

func policy(name string, limit int) middleware.Policy {
	return middleware.Policy{Name: name, Limit: limit, Window: time.Minute}
}

type testServer struct {
	handler http.Handler
	jobs    *mockJobService
	users   *mockUserService
}

func newTestServer(t *testing.T, limits ...middleware.Policy) *testServer {
	t.Helper()
	rl := RateLimits{
		Limiter: middleware.NewMemoryLimiter(time.Minute),
		Global:  policy("global", 1000),
		Auth:    policy("auth", 1000),
		JobPost: policy("job_post", 1000),
	}
	for _, p := range limits {
		switch p.Name {
		case "auth":
			rl.Auth = p
		case "job_post":
			rl.JobPost = p
		}
	}

	jobs := new(mockJobService)
	users := new(mockUserService)
	h := NewRouter(RouterConfig{
		ServiceName: "smalljobs-test",
		Jobs:        jobs,
		Users:       users,
		Tokens:      testTokens,
		Health:      health.NewHandler(),
		RateLimits:  rl,
		PprofCIDRs:  []string{"127.0.0.1/32"},
		Logger:      newTestLogger(),
	})
	return &testServer{handler: h, jobs: jobs, users: users}
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	return s.doRaw(method, path, token, body, "application/json")
}

func (s *testServer) doRaw(method, path, token, body, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "203.0.113.7:51234"

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NoError(t, json.Unmarshal(resp.Data, dst))
}

const createBody = `{
	"title": "Mow the back lawn",
	"category": "Gardening",
	"description": "Medium sized lawn, mower and bags provided on site.",
	"price": 50,
	"location": "Kadikoy, Istanbul",
	"deadline": "2030-01-01T00:00:00Z",
	"requirements": ["Own transport", "Weekend availability"],
	"tags": ["garden"]
}`
