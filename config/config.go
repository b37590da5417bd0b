// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the API and worker binaries.
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	HTTP       HTTPConfig
	Enrollment EnrollmentConfig
	Scheduler  SchedulerConfig
	Logging    LoggingConfig
}

// AppConfig contains application-level settings.
type AppConfig struct {
	// Name is the service name used in logs.
	Name string

	// Environment is one of development, staging, production.
	Environment string

	// SchoolTimezone is the IANA timezone runs are scheduled in.
	SchoolTimezone string

	// LaunchBaseURL is the root of the project runtime that serves
	// start-project URLs.
	LaunchBaseURL string
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	// URL is the full connection string. Takes precedence over the parts.
	URL string

	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxConns int
	MinConns int
}

// RedisConfig contains Redis settings.
type RedisConfig struct {
	// Enabled toggles the run cache. When false, lookups always hit PostgreSQL.
	Enabled bool

	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig contains HTTP server settings.
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// EnrollmentConfig contains enrollment write-path settings.
type EnrollmentConfig struct {
	// MaxAttempts is the conflict-retry ceiling for contended enrollments.
	MaxAttempts int
}

// SchedulerConfig contains worker scheduler settings.
type SchedulerConfig struct {
	// StatsRefreshInterval is how often the reconciliation sweep runs.
	StatsRefreshInterval time.Duration

	// JobTimeout bounds a single job execution.
	JobTimeout time.Duration
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string

	// AddCaller includes file:line in log entries.
	AddCaller bool
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:           getEnv("APP_NAME", "score"),
			Environment:    getEnv("APP_ENV", "development"),
			SchoolTimezone: getEnv("APP_SCHOOL_TIMEZONE", "UTC"),
			LaunchBaseURL:  getEnv("APP_LAUNCH_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "score"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
			MinConns: getEnvInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", time.Minute),
		},
		Enrollment: EnrollmentConfig{
			MaxAttempts: getEnvInt("ENROLLMENT_MAX_ATTEMPTS", 100),
		},
		Scheduler: SchedulerConfig{
			StatsRefreshInterval: getEnvDuration("SCHEDULER_STATS_REFRESH_INTERVAL", 10*time.Minute),
			JobTimeout:           getEnvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:     getEnv("LOG_LEVEL", "INFO"),
			AddCaller: getEnvBool("LOG_ADD_CALLER", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.Host == "" {
		return errors.New("config: DATABASE_URL or DB_HOST is required")
	}
	if c.Enrollment.MaxAttempts <= 0 {
		return fmt.Errorf("config: ENROLLMENT_MAX_ATTEMPTS must be positive, got %d", c.Enrollment.MaxAttempts)
	}
	if c.App.LaunchBaseURL == "" {
		return errors.New("config: APP_LAUNCH_BASE_URL is required")
	}
	if c.Scheduler.StatsRefreshInterval < time.Second {
		return errors.New("config: SCHEDULER_STATS_REFRESH_INTERVAL must be at least 1s")
	}
	return nil
}

// IsProduction returns true in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

// ─────────────────────────────────────────────────────────────────────────────
// Env helpers
// ─────────────────────────────────────────────────────────────────────────────

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
