package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.True(t, cfg.JobTitleUnique)
	assert.Equal(t, LimiterMemory, cfg.RateLimitBackend)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, ServiceName, cfg.Tracing.ServiceName)
	assert.Equal(t, []string{"127.0.0.1/32", "::1/128"}, cfg.PprofAllowedCIDRs)

	policies := cfg.RatePolicies()
	require.Len(t, policies, 3)
	assert.Equal(t, 100, policies[0].Limit)
	assert.Equal(t, 15*time.Minute, policies[0].Window)
	assert.Equal(t, 5, policies[1].Limit)
	assert.Equal(t, 10, policies[2].Limit)
	assert.Equal(t, 24*time.Hour, policies[2].Window)
}

func TestLoad_Overrides(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":        "development",
		"KAFKA_BROKERS":      "k1:9092,k2:9092",
		"REDIS_HOST":         "cache",
		"RATE_LIMIT_BACKEND": "redis",
		"STORE_TIMEOUT":      "750ms",
		"JOB_TITLE_UNIQUE":   "false",
		"OTEL_ENABLED":       "true",
		"OTEL_SAMPLE_RATE":   "0.25",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "cache:6379", cfg.RedisConfig().Addr())
	assert.Equal(t, 750*time.Millisecond, cfg.GuardConfig().Timeout)
	assert.False(t, cfg.JobTitleUnique)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRate)
}

func TestLoad_PostgresConfig(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":   "development",
		"POSTGRES_HOST": "db",
		"POSTGRES_DB":   "jobs",
		"DB_MAX_CONNS":  "40",
	})

	cfg, err := Load()
	require.NoError(t, err)

	pg := cfg.PostgresConfig()
	assert.Equal(t, "db", pg.Host)
	assert.Equal(t, int32(40), pg.MaxConns)
	assert.Contains(t, pg.DSN(), "@db:5432/jobs?sslmode=disable")
}

func TestLoad_Production_RejectsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "change-this-to-a-secure-secret",
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be explicitly set")
}

func TestLoad_Production_RejectsShortSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "too-short",
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoad_Production_AcceptsStrongSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "a-very-long-and-random-production-secret-value",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Tracing.Environment)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"port zero", map[string]string{"HTTP_PORT": "0"}, "invalid HTTP port"},
		{"port too high", map[string]string{"HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"unknown limiter", map[string]string{"RATE_LIMIT_BACKEND": "memcached"}, "RATE_LIMIT_BACKEND must be"},
		{"redis limiter without redis", map[string]string{"RATE_LIMIT_BACKEND": "redis"}, "requires REDIS_HOST"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "1.5"}, "OTEL_SAMPLE_RATE"},
		{"store timeout", map[string]string{"STORE_TIMEOUT": "0s"}, "STORE_TIMEOUT"},
		{"zero auth limit", map[string]string{"RATE_LIMIT_AUTH": "0"}, `"auth"`},
		{"unparseable duration", map[string]string{"STORE_TIMEOUT": "soon"}, "load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENVIRONMENT", "development")
			setEnvs(t, tt.env)

			cfg, err := Load()
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
