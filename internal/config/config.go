package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/kursadbilgin/birthday-reminder/internal/infra/database"
)

type Config struct {
	DatabaseDriver       string `env:"DATABASE_DRIVER,default=postgres"`
	DatabaseDSN          string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL          string `env:"RABBITMQ_URL,required=true"`
	RedisURL             string `env:"REDIS_URL,required=true"`
	EmailServiceURL      string `env:"EMAIL_SERVICE_URL,default=https://email-service.digitalenvision.com.au/send-email"`
	EmailTimeoutSeconds  int    `env:"EMAIL_TIMEOUT_SECONDS,default=10"`
	EmailRateLimitPerSec int    `env:"EMAIL_RATE_LIMIT_PER_SEC,default=100"`
	WorkerConcurrency    int    `env:"WORKER_CONCURRENCY,default=4"`
	PromoterIntervalMs   int    `env:"PROMOTER_INTERVAL_MS,default=1000"`
	PromoterBatchSize    int    `env:"PROMOTER_BATCH_SIZE,default=100"`
	JobMaxAttempts       int    `env:"JOB_MAX_ATTEMPTS,default=5"`
	JobBackoffBaseMs     int    `env:"JOB_BACKOFF_BASE_MS,default=1000"`
	RecoveryWindowHours  int    `env:"RECOVERY_WINDOW_HOURS,default=24"`
	RecoverySchedule     string `env:"RECOVERY_SCHEDULE,default=@every 15m"`
	APIPort              int    `env:"API_PORT,default=8080"`
	LogLevel             string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if cfg.DatabaseDriver != database.DriverPostgres && cfg.DatabaseDriver != database.DriverSQLite {
		return nil, fmt.Errorf("failed to load config: unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	return &cfg, nil
}

// LoadDotEnv reads variables from the given files into the process
// environment without overriding values already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func (c *Config) EmailTimeout() time.Duration {
	return time.Duration(c.EmailTimeoutSeconds) * time.Second
}

func (c *Config) PromoterInterval() time.Duration {
	return time.Duration(c.PromoterIntervalMs) * time.Millisecond
}

func (c *Config) JobBackoffBase() time.Duration {
	return time.Duration(c.JobBackoffBaseMs) * time.Millisecond
}

func (c *Config) RecoveryWindow() time.Duration {
	return time.Duration(c.RecoveryWindowHours) * time.Hour
}
