package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{Name: "test", Limit: 3, Window: time.Minute}

// ---------------------------------------------------------------------------
// MemoryLimiter
// ---------------------------------------------------------------------------

func TestMemoryLimiter_AllowsUpToLimit(t *testing.T) {
	m := NewMemoryLimiter(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		d, err := m.Allow(context.Background(), testPolicy, "k")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := m.Allow(context.Background(), testPolicy, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.InDelta(t, 20*time.Second, d.RetryAfter, float64(time.Millisecond))
}

func TestMemoryLimiter_Refills(t *testing.T) {
	m := NewMemoryLimiter(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, _ = m.Allow(context.Background(), testPolicy, "k")
	}
	now = now.Add(20 * time.Second)

	d, err := m.Allow(context.Background(), testPolicy, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	m := NewMemoryLimiter(time.Minute)
	for i := 0; i < 3; i++ {
		_, _ = m.Allow(context.Background(), testPolicy, "a")
	}

	d, err := m.Allow(context.Background(), testPolicy, "b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_CleanupEvictsIdleKeys(t *testing.T) {
	m := NewMemoryLimiter(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, _ = m.Allow(context.Background(), testPolicy, "old")
	now = now.Add(2 * time.Minute)
	_, _ = m.Allow(context.Background(), testPolicy, "fresh")

	m.Cleanup()
	assert.Equal(t, 1, m.size())
}

// ---------------------------------------------------------------------------
// RateLimit middleware
// ---------------------------------------------------------------------------

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, Policy, string) (Decision, error) {
	return Decision{}, errors.New("redis: connection refused")
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	h := RateLimit(NewMemoryLimiter(time.Minute), testPolicy, ByIP, "test", discardLogger())(okHandler())

	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
		if i < 3 {
			assert.Equal(t, http.StatusOK, last.Code)
		}
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Contains(t, last.Body.String(), "RATE_LIMITED")
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Equal(t, "3", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_ByUserSeparatesUsers(t *testing.T) {
	h := RateLimit(NewMemoryLimiter(time.Minute), Policy{Name: "post", Limit: 1, Window: time.Hour}, ByUser, "test", discardLogger())(okHandler())

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req = req.WithContext(WithClaims(req.Context(), &Claims{UserID: user}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	assert.Equal(t, http.StatusOK, send("bob"))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(failingLimiter{}, testPolicy, ByIP, "test", discardLogger())(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ---------------------------------------------------------------------------
// ClientIP / keys
// ---------------------------------------------------------------------------

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "bogus, 203.0.113.9, 10.0.0.1"}, "10.0.0.1:1", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.1:1", "198.51.100.7"},
		{"no port", nil, "192.0.2.1", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestByUser_FallsBackToIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1"
	assert.Equal(t, "ip:192.0.2.1", ByUser(req))
}

// ---------------------------------------------------------------------------
// RedisLimiter result parsing
// ---------------------------------------------------------------------------

func TestParseBucketResult(t *testing.T) {
	d, err := parseBucketResult([]any{int64(0), int64(0), int64(1500)})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1500*time.Millisecond, d.RetryAfter)

	d, err = parseBucketResult([]any{int64(1), int64(4), int64(0)})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)

	_, err = parseBucketResult("OK")
	assert.Error(t, err)

	_, err = parseBucketResult([]any{int64(1), 2.5, int64(0)})
	assert.Error(t, err)
}
