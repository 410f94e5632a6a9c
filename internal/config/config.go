package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/SmallJobs/pkg/config"
	"github.com/utafrali/SmallJobs/pkg/database"
	"github.com/utafrali/SmallJobs/pkg/middleware"
	"github.com/utafrali/SmallJobs/pkg/tracing"
)

// ServiceName is reported in logs, metrics, traces and events.
const ServiceName = "smalljobs-api"

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Rate limiter backends.
const (
	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

// Config holds all configuration for the API server.
type Config struct {
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost      string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort      int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser      string        `env:"POSTGRES_USER" envDefault:"smalljobs"`
	PostgresPass      string        `env:"POSTGRES_PASSWORD" envDefault:"smalljobs_secret"`
	PostgresDB        string        `env:"POSTGRES_DB" envDefault:"smalljobs"`
	PostgresSSL       string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	RunMigrations     bool          `env:"RUN_MIGRATIONS" envDefault:"true"`

	// Store boundary
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	BreakerOpenTimeout time.Duration `env:"DB_BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	SlowQueryThreshold time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis; an empty host disables it.
	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka; no brokers disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Auth
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"24h"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`

	// Rate limiting
	RateLimitBackend  string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	GlobalRateLimit   int           `env:"RATE_LIMIT_GLOBAL" envDefault:"100"`
	GlobalRateWindow  time.Duration `env:"RATE_LIMIT_GLOBAL_WINDOW" envDefault:"15m"`
	AuthRateLimit     int           `env:"RATE_LIMIT_AUTH" envDefault:"5"`
	AuthRateWindow    time.Duration `env:"RATE_LIMIT_AUTH_WINDOW" envDefault:"15m"`
	JobPostRateLimit  int           `env:"RATE_LIMIT_JOB_POST" envDefault:"10"`
	JobPostRateWindow time.Duration `env:"RATE_LIMIT_JOB_POST_WINDOW" envDefault:"24h"`

	// Jobs
	JobTitleUnique bool `env:"JOB_TITLE_UNIQUE" envDefault:"true"`

	// Debug endpoints
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`

	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Tracing.ServiceName = ServiceName
	cfg.Tracing.ServiceVersion = cfg.ServiceVersion
	cfg.Tracing.Environment = cfg.Environment
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("invalid POSTGRES_PORT: %d", c.PostgresPort)
	}

	// Outside development, require an explicitly set, strong JWT secret.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}
	if c.JWTAccessExpiry <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRY must be positive")
	}

	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive, got %s", c.StoreTimeout)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %g", c.Tracing.SampleRate)
	}

	switch c.RateLimitBackend {
	case LimiterMemory:
	case LimiterRedis:
		if !c.RedisEnabled() {
			return fmt.Errorf("RATE_LIMIT_BACKEND=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q, got %q", LimiterMemory, LimiterRedis, c.RateLimitBackend)
	}
	for _, p := range c.RatePolicies() {
		if p.Limit <= 0 || p.Window <= 0 {
			return fmt.Errorf("rate limit %q needs a positive limit and window", p.Name)
		}
	}
	return nil
}

// PostgresConfig returns the connection and pool settings.
func (c *Config) PostgresConfig() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
	}
}

// GuardConfig returns the store boundary settings.
func (c *Config) GuardConfig() database.GuardConfig {
	g := database.DefaultGuardConfig("postgres")
	g.Timeout = c.StoreTimeout
	g.OpenTimeout = c.BreakerOpenTimeout
	return g
}

// RedisEnabled reports whether a Redis host is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// RedisConfig returns the Redis connection settings.
func (c *Config) RedisConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// KafkaEnabled reports whether any broker is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Rate-limit policy names.
const (
	PolicyGlobal  = "global"
	PolicyAuth    = "auth"
	PolicyJobPost = "job_post"
)

// RatePolicies returns the global, auth and job-post budgets in that order.
func (c *Config) RatePolicies() []middleware.Policy {
	return []middleware.Policy{
		{Name: PolicyGlobal, Limit: c.GlobalRateLimit, Window: c.GlobalRateWindow},
		{Name: PolicyAuth, Limit: c.AuthRateLimit, Window: c.AuthRateWindow},
		{Name: PolicyJobPost, Limit: c.JobPostRateLimit, Window: c.JobPostRateWindow},
	}
}
