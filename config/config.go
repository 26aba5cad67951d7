// Package config loads RouteMQ's configuration surface (spec §6
// "Configuration surface") from the environment, optionally seeded by a
// .env file. All options are consumed once at startup; runtime
// reconfiguration is not supported.
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

// Config is the full configuration surface spec §6 describes.
type Config struct {
	Broker      BrokerConfig
	RateLimiter RateLimiterConfig
	Queue       QueueConfig
	Worker      WorkerConfig
}

// BrokerConfig configures the MQTT connection.
type BrokerConfig struct {
	Brokers               []string
	ClientID              string
	Username              string
	Password              string
	Group                 string
	ConnectTimeoutSeconds int
	KeepAliveSeconds      int
	CleanSession          bool
}

// RateLimiterConfig configures the optional shared counter store.
type RateLimiterConfig struct {
	Enabled   bool
	KeyPrefix string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// QueueConfig selects and configures the queue driver.
type QueueConfig struct {
	// Driver is "fast" or "durable" (spec §6).
	Driver string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SQLDriverName/SQLDSN configure the durable driver's database/sql
	// connection, e.g. driver "sqlite", dsn
	// "file::memory:?_pragma=journal_mode(WAL)".
	SQLDriverName string
	SQLDSN        string
	SQLConnection string
}

// WorkerConfig holds worker defaults applied when CLI flags are omitted
// (spec §6 "worker default sleep, max-tries, timeout").
type WorkerConfig struct {
	Queue             string
	Connection        string
	SleepSeconds      int
	MaxTries          int
	TimeoutSeconds    int
	RetryAfterSeconds int
}

// Load reads configuration from the process environment. A .env file in
// the working directory is loaded first if present; its absence is not
// an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment only")
	}

	cfg := &Config{
		Broker: BrokerConfig{
			Brokers:               getEnvAsStringSlice("ROUTEMQ_BROKER_URLS", "tcp://localhost:1883"),
			ClientID:              getEnv("ROUTEMQ_CLIENT_ID", ""),
			Username:              getEnv("ROUTEMQ_BROKER_USERNAME", ""),
			Password:              getEnv("ROUTEMQ_BROKER_PASSWORD", ""),
			Group:                 getEnv("ROUTEMQ_SHARED_GROUP", "routemq"),
			ConnectTimeoutSeconds: getEnvAsInt("ROUTEMQ_CONNECT_TIMEOUT_SECONDS", 10),
			KeepAliveSeconds:      getEnvAsInt("ROUTEMQ_KEEPALIVE_SECONDS", 60),
			CleanSession:          getEnvAsBool("ROUTEMQ_CLEAN_SESSION", true),
		},
		RateLimiter: RateLimiterConfig{
			Enabled:       getEnvAsBool("ROUTEMQ_RATELIMIT_ENABLED", false),
			KeyPrefix:     getEnv("ROUTEMQ_RATELIMIT_KEY_PREFIX", "routemq:ratelimit"),
			RedisAddr:     getEnv("ROUTEMQ_RATELIMIT_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("ROUTEMQ_RATELIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("ROUTEMQ_RATELIMIT_REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Driver:        getEnv("ROUTEMQ_QUEUE_DRIVER", "fast"),
			RedisAddr:     getEnv("ROUTEMQ_QUEUE_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("ROUTEMQ_QUEUE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("ROUTEMQ_QUEUE_REDIS_DB", 0),
			SQLDriverName: getEnv("ROUTEMQ_QUEUE_SQL_DRIVER", "sqlite"),
			SQLDSN:        getEnv("ROUTEMQ_QUEUE_SQL_DSN", "file:routemq.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),
			SQLConnection: getEnv("ROUTEMQ_QUEUE_SQL_CONNECTION", "default"),
		},
		Worker: WorkerConfig{
			Queue:             getEnv("ROUTEMQ_WORKER_QUEUE", "default"),
			Connection:        getEnv("ROUTEMQ_WORKER_CONNECTION", "default"),
			SleepSeconds:      getEnvAsInt("ROUTEMQ_WORKER_SLEEP_SECONDS", 3),
			MaxTries:          getEnvAsInt("ROUTEMQ_WORKER_MAX_TRIES", 3),
			TimeoutSeconds:    getEnvAsInt("ROUTEMQ_WORKER_TIMEOUT_SECONDS", 60),
			RetryAfterSeconds: getEnvAsInt("ROUTEMQ_WORKER_RETRY_AFTER_SECONDS", 10),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Broker.Brokers) == 0 {
		return fmt.Errorf("config: ROUTEMQ_BROKER_URLS must name at least one broker")
	}
	switch c.Queue.Driver {
	case "fast", "durable":
	default:
		return fmt.Errorf("config: ROUTEMQ_QUEUE_DRIVER must be \"fast\" or \"durable\", got %q", c.Queue.Driver)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Seconds converts a raw config integer into a time.Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
