package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Config holds all runtime settings. The storage, queue, and cache
// backends are optional; leaving their URLs empty runs the engine
// in-memory only.
type Config struct {
	DatabaseDSN  string `env:"DATABASE_DSN,default="`
	RabbitMQURL  string `env:"RABBITMQ_URL,default="`
	RedisURL     string `env:"REDIS_URL,default="`
	LookupAPIURL string `env:"LOOKUP_API_URL,default="`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	MaxConcurrentChecks   int `env:"MAX_CONCURRENT_CHECKS,default=50"`
	ChunkSize             int `env:"CHUNK_SIZE,default=500"`
	MaxConcurrentSessions int `env:"MAX_CONCURRENT_SESSIONS,default=5"`
	ItemTimeoutSec        int `env:"ITEM_TIMEOUT_SEC,default=10"`
	RetryCount            int `env:"RETRY_COUNT,default=0"`
	RejectedSampleCap     int `env:"REJECTED_SAMPLE_CAP,default=1000"`
	AcceptedCap           int `env:"ACCEPTED_CAP,default=0"`

	LookupRatePerSec int `env:"LOOKUP_RATE_PER_SEC,default=10"`
	RetentionHours   int `env:"RETENTION_HOURS,default=24"`
	SweepIntervalMin int `env:"SWEEP_INTERVAL_MIN,default=60"`

	SMTPPort   int    `env:"SMTP_PORT,default=25"`
	HeloDomain string `env:"HELO_DOMAIN,default="`
	MailFrom   string `env:"MAIL_FROM,default=verify@example.com"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("invalid API_PORT: %d", c.APIPort)
	}
	if c.MaxConcurrentChecks < 1 {
		return fmt.Errorf("MAX_CONCURRENT_CHECKS must be positive, got %d", c.MaxConcurrentChecks)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.MaxConcurrentSessions < 1 {
		return fmt.Errorf("MAX_CONCURRENT_SESSIONS must be positive, got %d", c.MaxConcurrentSessions)
	}
	if c.ItemTimeoutSec < 1 {
		return fmt.Errorf("ITEM_TIMEOUT_SEC must be positive, got %d", c.ItemTimeoutSec)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("RETRY_COUNT must not be negative, got %d", c.RetryCount)
	}
	if c.LookupRatePerSec < 1 {
		return fmt.Errorf("LOOKUP_RATE_PER_SEC must be positive, got %d", c.LookupRatePerSec)
	}
	if c.RetentionHours < 1 {
		return fmt.Errorf("RETENTION_HOURS must be positive, got %d", c.RetentionHours)
	}
	if c.SweepIntervalMin < 1 {
		return fmt.Errorf("SWEEP_INTERVAL_MIN must be positive, got %d", c.SweepIntervalMin)
	}
	return nil
}

// ItemTimeout converts the second-granularity env setting to a duration.
func (c *Config) ItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutSec) * time.Second
}

// Retention is how long terminal jobs stay queryable.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// SweepInterval is how often the retention sweeper runs.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMin) * time.Minute
}
