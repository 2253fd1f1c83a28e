// Package config loads the worker configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/satriyop/enteraksi/internal/domain/prerequisite"
	"github.com/satriyop/enteraksi/internal/domain/progress"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Event bus transports.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Progress      ProgressConfig
	LearningPath  LearningPathConfig
	EventBus      EventBusConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name            string
	Environment     Environment
	Version         string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	// Storage is "postgres" or "memory".
	Storage string

	// URL is a postgres:// connection string. When empty the individual
	// fields are used.
	URL      string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// AutoMigrate applies pending migrations at startup.
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Enabled turns on the path progress cache. The redis event bus
	// requires it too.
	Enabled bool

	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PathProgressTTL time.Duration
}

// ProgressConfig selects the course progress calculator.
type ProgressConfig struct {
	Calculator string

	// Completion thresholds in percent.
	MediaThreshold float64
	PageThreshold  float64
}

// LearningPathConfig holds prerequisite evaluation settings.
type LearningPathConfig struct {
	// DefaultEvaluator is used when a path names an unknown mode.
	DefaultEvaluator string

	// DeploymentMode is "internal" or "commercial"; commercial enables the
	// payment check of the pricing aware evaluator.
	DeploymentMode string
}

// EventBusConfig holds event delivery settings.
type EventBusConfig struct {
	// Transport is "memory" or "redis".
	Transport      string
	Async          bool
	Workers        int
	DeadLetterSize int
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled bool

	// Schedules accept "@every <duration>" or a cron expression.
	ReconcileSchedule  string
	RedeliverSchedule  string
	ReconcileBatchSize int
	JobTimeout         time.Duration
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, console

	TracingEnabled   bool
	OTLPEndpoint     string // empty exports spans to stdout
	OTLPInsecure     bool
	TraceSampleRatio float64
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	l := &loader{}

	cfg := &Config{
		App: AppConfig{
			Name:            l.envString("APP_NAME", "enteraksi-worker"),
			Environment:     Environment(l.envString("APP_ENV", string(EnvDevelopment))),
			Version:         l.envString("APP_VERSION", "0.1.0"),
			ShutdownTimeout: l.envDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Storage:         l.envString("DB_STORAGE", StoragePostgres),
			URL:             l.envString("DATABASE_URL", ""),
			Host:            l.envString("DB_HOST", "localhost"),
			Port:            l.envInt("DB_PORT", 5432),
			Name:            l.envString("DB_NAME", "enteraksi"),
			User:            l.envString("DB_USER", "postgres"),
			Password:        l.envString("DB_PASSWORD", ""),
			SSLMode:         l.envString("DB_SSLMODE", "disable"),
			MaxConns:        l.envInt("DB_MAX_CONNS", 10),
			MinConns:        l.envInt("DB_MIN_CONNS", 2),
			ConnMaxLifetime: l.envDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: l.envDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
			AutoMigrate:     l.envBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:         l.envBool("REDIS_ENABLED", false),
			Host:            l.envString("REDIS_HOST", "localhost"),
			Port:            l.envInt("REDIS_PORT", 6379),
			Password:        l.envString("REDIS_PASSWORD", ""),
			DB:              l.envInt("REDIS_DB", 0),
			PoolSize:        l.envInt("REDIS_POOL_SIZE", 10),
			DialTimeout:     l.envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     l.envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:    l.envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PathProgressTTL: l.envDuration("REDIS_PATH_PROGRESS_TTL", 5*time.Minute),
		},
		Progress: ProgressConfig{
			Calculator:     l.envString("PROGRESS_CALCULATOR", progress.LessonBasedName),
			MediaThreshold: l.envFloat("PROGRESS_MEDIA_THRESHOLD", 90),
			PageThreshold:  l.envFloat("PROGRESS_PAGE_THRESHOLD", 100),
		},
		LearningPath: LearningPathConfig{
			DefaultEvaluator: l.envString("LEARNING_PATH_DEFAULT_EVALUATOR", prerequisite.SequentialName),
			DeploymentMode:   l.envString("DEPLOYMENT_MODE", string(prerequisite.ModeInternal)),
		},
		EventBus: EventBusConfig{
			Transport:      l.envString("EVENT_BUS_TRANSPORT", BusMemory),
			Async:          l.envBool("EVENT_BUS_ASYNC", true),
			Workers:        l.envInt("EVENT_BUS_WORKERS", 10),
			DeadLetterSize: l.envInt("EVENT_BUS_DEAD_LETTER_SIZE", 1000),
		},
		Scheduler: SchedulerConfig{
			Enabled:            l.envBool("SCHEDULER_ENABLED", true),
			ReconcileSchedule:  l.envString("SCHEDULER_RECONCILE", "0 3 * * *"),
			RedeliverSchedule:  l.envString("SCHEDULER_REDELIVER", "@every 1m"),
			ReconcileBatchSize: l.envInt("SCHEDULER_RECONCILE_BATCH", 200),
			JobTimeout:         l.envDuration("SCHEDULER_JOB_TIMEOUT", 10*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:  l.envString("LOG_LEVEL", "info"),
			LogFormat: l.envString("LOG_FORMAT", "json"),

			TracingEnabled:   l.envBool("OTEL_ENABLED", false),
			OTLPEndpoint:     l.envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure:     l.envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			TraceSampleRatio: l.envFloat("OTEL_SAMPLER_RATIO", 0.1),
		},
	}

	errs := append(l.errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if errs := c.validate(); len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validate() []string {
	var errs []string

	switch c.Database.Storage {
	case StoragePostgres, StorageMemory:
	default:
		errs = append(errs, fmt.Sprintf("DB_STORAGE must be %q or %q", StoragePostgres, StorageMemory))
	}
	if c.IsProduction() && c.Database.Storage == StorageMemory {
		errs = append(errs, "DB_STORAGE=memory is not allowed in production")
	}
	if c.Database.MaxConns < 1 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, "DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, DB_MAX_CONNS at least 1")
	}

	if !contains(progress.DefaultRegistry().Names(), c.Progress.Calculator) {
		errs = append(errs, fmt.Sprintf("PROGRESS_CALCULATOR %q is unknown", c.Progress.Calculator))
	}
	if !validPercent(c.Progress.MediaThreshold) {
		errs = append(errs, "PROGRESS_MEDIA_THRESHOLD must be in (0, 100]")
	}
	if !validPercent(c.Progress.PageThreshold) {
		errs = append(errs, "PROGRESS_PAGE_THRESHOLD must be in (0, 100]")
	}

	mode := prerequisite.DeploymentMode(c.LearningPath.DeploymentMode)
	if mode != prerequisite.ModeInternal && mode != prerequisite.ModeCommercial {
		errs = append(errs, fmt.Sprintf("DEPLOYMENT_MODE must be %q or %q", prerequisite.ModeInternal, prerequisite.ModeCommercial))
	}
	evaluators := []string{
		prerequisite.NoneName,
		prerequisite.ImmediatePreviousName,
		prerequisite.SequentialName,
		prerequisite.PricingAwareName,
	}
	if !contains(evaluators, c.LearningPath.DefaultEvaluator) {
		errs = append(errs, fmt.Sprintf("LEARNING_PATH_DEFAULT_EVALUATOR %q is unknown", c.LearningPath.DefaultEvaluator))
	}

	switch c.EventBus.Transport {
	case BusMemory:
	case BusRedis:
		if !c.Redis.Enabled {
			errs = append(errs, "EVENT_BUS_TRANSPORT=redis requires REDIS_ENABLED=true")
		}
	default:
		errs = append(errs, fmt.Sprintf("EVENT_BUS_TRANSPORT must be %q or %q", BusMemory, BusRedis))
	}
	if c.EventBus.Workers < 1 {
		errs = append(errs, "EVENT_BUS_WORKERS must be at least 1")
	}

	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errs = append(errs, "REDIS_DB must be 0-15")
	}
	if c.Scheduler.ReconcileBatchSize < 1 {
		errs = append(errs, "SCHEDULER_RECONCILE_BATCH must be at least 1")
	}

	switch strings.ToLower(c.Observability.LogFormat) {
	case "json", "console":
	default:
		errs = append(errs, "LOG_FORMAT must be json or console")
	}
	if r := c.Observability.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, "OTEL_SAMPLER_RATIO must be in [0, 1]")
	}

	return errs
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

func validPercent(v float64) bool { return v > 0 && v <= 100 }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// --- Environment parsing ---

// loader reads typed values and collects malformed ones instead of
// silently falling back to defaults.
type loader struct {
	errs []string
}

func (l *loader) envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (l *loader) envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (l *loader) envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return def
	}
	return i
}

func (l *loader) envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func (l *loader) envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
