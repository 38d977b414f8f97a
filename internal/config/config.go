package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	LogLevel     slog.Level
	Server       ServerConfig
	Store        string
	Postgres     PostgresConfig
	Redis        RedisConfig
	RabbitMQ     RabbitMQConfig
	Auth         AuthConfig
	Booking      BookingConfig
	Availability AvailabilityConfig
	Lifecycle    LifecycleConfig
	Telemetry    TelemetryConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int
	Migrate  bool
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// RedisConfig is optional: an empty Addr disables caching, rate limiting,
// idempotency and show change notifications.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// RabbitMQConfig is optional: an empty URL disables booking events.
type RabbitMQConfig struct {
	URL string
	// Consume starts a consumer that logs booking events.
	Consume     bool
	DialTimeout time.Duration
}

func (c RabbitMQConfig) Enabled() bool { return c.URL != "" }

type AuthConfig struct {
	JWTSecret string
}

type BookingConfig struct {
	MaxSeats        int
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
}

type AvailabilityConfig struct {
	CountTTL time.Duration
}

type LifecycleConfig struct {
	Interval  time.Duration
	BatchSize int
}

type TelemetryConfig struct {
	CollectorAddr string
	SampleRatio   float64
	Environment   string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	if cfg.LogLevel, err = logLevel(getenv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Server.Host = getenv("SERVER_HOST", "localhost")
	if cfg.Server.Port, err = envInt("SERVER_PORT", 8080); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.Server.CORSOrigins = envList("CORS_ORIGINS")

	cfg.Store = strings.ToLower(getenv("STORE_BACKEND", StorePostgres))
	switch cfg.Store {
	case StorePostgres:
		if cfg.Postgres, err = postgresConfig(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("%s: invalid STORE_BACKEND %q", op, cfg.Store)
	}

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Redis.IdempotencyTTL, err = envDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.RabbitMQ.URL = os.Getenv("RABBITMQ_URL")
	if cfg.RabbitMQ.Consume, err = envBool("RABBITMQ_CONSUME", false); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.RabbitMQ.DialTimeout, err = envDuration("RABBITMQ_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")

	if cfg.Booking, err = bookingConfig(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Availability.CountTTL, err = envDuration("AVAILABILITY_CACHE_TTL", 5*time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Lifecycle.Interval, err = envDuration("LIFECYCLE_INTERVAL", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Lifecycle.BatchSize, err = envInt("LIFECYCLE_BATCH_SIZE", 500); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Telemetry.CollectorAddr = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.Telemetry.Environment = getenv("APP_ENV", "development")
	if cfg.Telemetry.SampleRatio, err = envFloat("OTEL_SAMPLE_RATIO", 1); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cfg, nil
}

func postgresConfig() (PostgresConfig, error) {
	var (
		c   PostgresConfig
		err error
	)

	c.Host = getenv("POSTGRES_HOST", "localhost")
	if c.Port, err = envInt("POSTGRES_PORT", 5432); err != nil {
		return c, err
	}

	c.User = os.Getenv("POSTGRES_USER")
	if c.User == "" {
		return c, fmt.Errorf("missing POSTGRES_USER")
	}

	c.Password = os.Getenv("POSTGRES_PASSWORD")
	if c.Password == "" {
		return c, fmt.Errorf("missing POSTGRES_PASSWORD")
	}

	c.Name = os.Getenv("POSTGRES_DB")
	if c.Name == "" {
		return c, fmt.Errorf("missing POSTGRES_DB")
	}

	c.SSLMode = getenv("POSTGRES_SSLMODE", "disable")
	if c.MaxConns, err = envInt("POSTGRES_MAX_CONNS", 20); err != nil {
		return c, err
	}
	if c.Migrate, err = envBool("POSTGRES_MIGRATE", true); err != nil {
		return c, err
	}

	return c, nil
}

func bookingConfig() (BookingConfig, error) {
	var (
		c   BookingConfig
		err error
	)

	if c.MaxSeats, err = envInt("BOOKING_MAX_SEATS", 10); err != nil {
		return c, err
	}
	if c.MaxAttempts, err = envInt("BOOKING_MAX_ATTEMPTS", 3); err != nil {
		return c, err
	}
	if c.InitialBackoff, err = envDuration("BOOKING_INITIAL_BACKOFF", 10*time.Millisecond); err != nil {
		return c, err
	}
	if c.MaxBackoff, err = envDuration("BOOKING_MAX_BACKOFF", 200*time.Millisecond); err != nil {
		return c, err
	}
	if c.RateLimit, err = envInt("BOOKING_RATE_LIMIT", 10); err != nil {
		return c, err
	}
	if c.RateLimitWindow, err = envDuration("BOOKING_RATE_WINDOW", time.Minute); err != nil {
		return c, err
	}

	if c.MaxSeats <= 0 {
		return c, fmt.Errorf("BOOKING_MAX_SEATS must be positive")
	}
	if c.MaxAttempts <= 0 {
		return c, fmt.Errorf("BOOKING_MAX_ATTEMPTS must be positive")
	}

	return c, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func logLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return l, nil
}
