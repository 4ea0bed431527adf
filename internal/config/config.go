// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	// HTTP server
	Port               string
	RateLimitPerMinute int
	CORSAllowedOrigins string

	// Storage
	DataBackend  string
	SQLiteDBPath string
	DatabaseURL  string

	// AMQP event publishing; empty URL disables it
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	ReferenceCacheTTL time.Duration

	// Overdue digest worker
	OverdueCron      string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string
	DigestRecipients []string

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		DataBackend:  getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ledger.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "payledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		ReferenceCacheTTL: getEnvDuration("REFERENCE_CACHE_TTL", 5*time.Minute),

		OverdueCron:      getEnv("OVERDUE_CRON", "0 7 * * *"),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnvInt("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:         getEnv("SMTP_FROM", ""),
		DigestRecipients: getEnvList("DIGEST_RECIPIENTS"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// SMTPEnabled reports whether digests should be e-mailed.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if strings.TrimSpace(c.SQLiteDBPath) == "" {
			problems = append(problems, "SQLITE_DB_PATH cannot be empty when using the sqlite backend")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			problems = append(problems, "DATABASE_URL is required when using the postgres backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s]", c.DataBackend, BackendSQLite, BackendPostgres))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RateLimitPerMinute < 1 {
		problems = append(problems, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}
	if c.ReferenceCacheTTL < time.Second {
		problems = append(problems, fmt.Sprintf("invalid reference cache TTL %v: must be at least 1 second", c.ReferenceCacheTTL))
	}

	if _, err := cron.ParseStandard(c.OverdueCron); err != nil {
		problems = append(problems, fmt.Sprintf("invalid OVERDUE_CRON '%s': %v", c.OverdueCron, err))
	}

	if c.SMTPEnabled() {
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			problems = append(problems, fmt.Sprintf("invalid SMTP port %d", c.SMTPPort))
		}
		if _, err := mail.ParseAddress(c.SMTPFrom); err != nil {
			problems = append(problems, fmt.Sprintf("invalid SMTP_FROM '%s': %v", c.SMTPFrom, err))
		}
		if len(c.DigestRecipients) == 0 {
			problems = append(problems, "DIGEST_RECIPIENTS is required when SMTP_HOST is set")
		}
		for _, r := range c.DigestRecipients {
			if _, err := mail.ParseAddress(r); err != nil {
				problems = append(problems, fmt.Sprintf("invalid digest recipient '%s'", r))
			}
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
