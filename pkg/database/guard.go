package database

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
)

// GuardConfig controls how store calls are bounded and retried.
type GuardConfig struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// RetryWait is the base delay before the single retry of a transient failure.
	RetryWait time.Duration

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration

	// FailureRatio of transient failures over MinRequests that trips the breaker.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultGuardConfig returns the defaults used when nothing is configured.
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:         name,
		Timeout:      5 * time.Second,
		RetryWait:    100 * time.Millisecond,
		OpenTimeout:  30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  10,
	}
}

var breakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_circuit_breaker_state",
		Help: "State of the database circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

func init() {
	prometheus.MustRegister(breakerState)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Guard runs store calls with a per-attempt timeout behind a circuit breaker.
// Only transient failures count against the breaker; domain outcomes such as
// "not found" or a constraint violation are passed through untouched.
// A nil *Guard runs calls directly.
type Guard struct {
	cfg     GuardConfig
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewGuard creates a Guard. logger receives breaker state changes.
func NewGuard(cfg GuardConfig, logger *slog.Logger) *Guard {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("database circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &Guard{
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Do runs fn and retries it once if the first attempt failed transiently
// and was not marked with NoRetry. fn must be safe to repeat.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}

	err := g.attempt(ctx, fn)
	if err != nil && IsTransient(err) && !isNoRetry(err) && ctx.Err() == nil {
		if sleepCtx(ctx, retryBackoff(g.cfg.RetryWait, 0)) == nil {
			err = g.attempt(ctx, fn)
		}
	}
	return g.classify(err)
}

type noRetryError struct {
	err error
}

func (e *noRetryError) Error() string { return e.err.Error() }
func (e *noRetryError) Unwrap() error { return e.err }

// NoRetry marks err so that Do surfaces it without a second attempt, even
// when it is transient. A failed commit is the typical case: it may already
// have been applied.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &noRetryError{err: err}
}

func isNoRetry(err error) bool {
	var nr *noRetryError
	return errors.As(err, &nr)
}

// State reports the breaker state.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

func (g *Guard) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := g.breaker.Execute(func() (struct{}, error) {
		if g.cfg.Timeout <= 0 {
			return struct{}{}, fn(ctx)
		}
		actx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
		return struct{}{}, fn(actx)
	})
	return err
}

func (g *Guard) classify(err error) error {
	if err == nil || errors.Is(err, apperrors.ErrServiceUnavail) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || IsTransient(err) {
		return apperrors.ServiceUnavailable(err)
	}
	return err
}

// IsTransient reports whether err is a timeout, a dropped connection or a
// serialization failure, i.e. something a later attempt could succeed at.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrServiceUnavail) {
		return true
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "57P01", "57P03":
			// serialization_failure, deadlock_detected, admin_shutdown, cannot_connect_now
			return true
		}
		return false
	}

	return isConnectionError(err)
}

// isConnectionError matches driver messages for dropped or refused connections.
func isConnectionError(err error) bool {
	msg := err.Error()
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"dial tcp",
		"unexpected EOF",
		"connection timed out",
		"server closed the connection unexpectedly",
		"could not connect",
		"conn closed",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
