package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
	"github.com/utafrali/SmallJobs/pkg/httputil"
)

// Policy is a request budget: Limit requests per Window for each key.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter tracks request budgets per key. Implementations hold the counters,
// so the middleware itself is stateless and the backing store can be shared
// between instances.
type Limiter interface {
	Allow(ctx context.Context, policy Policy, key string) (Decision, error)
}

// KeyFunc derives the rate-limit key for a request.
type KeyFunc func(r *http.Request) string

// ByIP keys requests by client address.
func ByIP(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

// ByUser keys requests by authenticated user, falling back to client address
// for anonymous requests. Mount it behind Auth.
func ByUser(r *http.Request) string {
	if id := UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	return ByIP(r)
}

// RateLimit rejects requests over policy with 429 and a Retry-After header.
// Limiter failures are logged and the request is let through.
func RateLimit(limiter Limiter, policy Policy, key KeyFunc, serviceName string, logger *slog.Logger) func(http.Handler) http.Handler {
	limit := strconv.Itoa(policy.Limit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := policy.Name + ":" + key(r)

			d, err := limiter.Allow(r.Context(), policy, k)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					slog.String("policy", policy.Name),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))

			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				rateLimitedTotal.WithLabelValues(serviceName, policy.Name).Inc()
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("policy", policy.Name),
					slog.String("key", k),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteError(w, r, apperrors.RateLimited("too many requests, please try again later"), logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first valid address from X-Forwarded-For, then
// X-Real-IP, then RemoteAddr without its port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
