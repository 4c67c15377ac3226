package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	ChangeFeed ChangeFeedConfig
}

type ServerConfig struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string
}

type DatabaseConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// RedisConfig is optional; an empty Addr disables the cache, idempotency and change stream.
type RedisConfig struct {
	Addr           string
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type ChangeFeedConfig struct {
	Workers   int
	QueueSize int
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) (*Config, error) {
	// Missing .env files are fine; the environment alone may be enough.
	_ = godotenv.Load(files...)

	var errs []error
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:    getEnv("GRPC_ADDR", ":50051"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "sqlite3"),
			DSN:          getEnv("DB_DSN", "documents.db"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25, &errs),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			CacheTTL:       getEnvAsDuration("CACHE_TTL", 10*time.Minute, &errs),
			IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour, &errs),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", false, &errs),
		},
		ChangeFeed: ChangeFeedConfig{
			Workers:   getEnvAsInt("CHANGE_FEED_WORKERS", 4, &errs),
			QueueSize: getEnvAsInt("CHANGE_FEED_QUEUE", 10000, &errs),
		},
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "pgx", "sqlite3":
	default:
		return fmt.Errorf("DB_DRIVER %q is not one of mysql, postgres, pgx, sqlite3", c.Database.Driver)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return fmt.Errorf("at least one of HTTP_ADDR or GRPC_ADDR is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}
	if c.ChangeFeed.Workers < 0 || c.ChangeFeed.QueueSize < 0 {
		return fmt.Errorf("CHANGE_FEED_WORKERS and CHANGE_FEED_QUEUE must not be negative")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]error) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid integer for %s: %q", key, valueStr))
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool, errs *[]error) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid boolean for %s: %q", key, valueStr))
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid duration for %s: %q", key, valueStr))
		return defaultValue
	}

	return value
}
