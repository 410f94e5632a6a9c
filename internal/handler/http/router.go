package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/SmallJobs/pkg/health"
	"github.com/utafrali/SmallJobs/pkg/middleware"
)

// RateLimits holds the request budgets applied by the router.
type RateLimits struct {
	Limiter middleware.Limiter
	Global  middleware.Policy
	Auth    middleware.Policy
	JobPost middleware.Policy
}

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	ServiceName string
	Jobs        JobService
	Users       UserService
	Tokens      middleware.TokenValidator
	Health      *health.Handler
	RateLimits  RateLimits
	PprofCIDRs  []string
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	rl := cfg.RateLimits
	limit := func(p middleware.Policy, key middleware.KeyFunc) func(http.Handler) http.Handler {
		return middleware.RateLimit(rl.Limiter, p, key, cfg.ServiceName, logger)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	jobs := NewJobHandler(cfg.Jobs, logger)
	users := NewUserHandler(cfg.Users, logger)
	auth := middleware.Auth(cfg.Tokens)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limit(rl.Global, middleware.ByIP))
		r.Use(ContentTypeJSON)

		r.Route("/auth", func(r chi.Router) {
			r.Use(limit(rl.Auth, middleware.ByIP))

			r.Post("/register", users.Register)
			r.Post("/login", users.Login)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobs.List)
			r.Get("/{id}", jobs.Get)

			r.Group(func(r chi.Router) {
				r.Use(auth)

				r.With(limit(rl.JobPost, middleware.ByUser)).Post("/", jobs.Create)
				r.Put("/{id}", jobs.Update)
				r.Delete("/{id}", jobs.Delete)
				r.Post("/{id}/apply", jobs.Apply)
				r.Put("/{id}/applications/{userId}", jobs.Decide)
				r.Post("/{id}/reviews", jobs.Review)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth)

				r.Get("/me", users.GetProfile)
				r.Put("/me", users.UpdateProfile)
				r.Post("/{id}/reviews", users.Review)
			})

			r.Get("/{id}", users.GetPublicProfile)
		})
	})

	return r
}
