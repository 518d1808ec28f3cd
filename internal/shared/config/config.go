package config

import (
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

// StorageConfig controls the embedded key-value store.
type StorageConfig struct {
	// Dir is the on-disk location of the store
	Dir string
	// InMemory skips the disk entirely (tests, demos)
	InMemory bool
}

// SchedulerConfig controls the background jobs.
type SchedulerConfig struct {
	// Enabled turns the cron runner on
	Enabled bool
	// DetectionSchedule is a cron expression for periodic pattern detection
	DetectionSchedule string
}

type LoggingConfig struct {
	// Level: debug, info, warn, error
	Level string
}

type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Storage: StorageConfig{
			Dir:      getEnv("STORAGE_DIR", defaultStorageDir()),
			InMemory: getEnvBool("STORAGE_IN_MEMORY", false),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getEnvBool("SCHEDULER_ENABLED", true),
			DetectionSchedule: getEnv("DETECTION_SCHEDULE", "@hourly"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvInt("RATE_LIMIT_RPS", 50),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 100),
		},
	}, nil
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "healthdesk-data"
	}
	return filepath.Join(home, ".healthdesk")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
