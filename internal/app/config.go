package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store backends selectable through LEDGER_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	LedgerStore string `envconfig:"LEDGER_STORE" default:"memory"`
	PGDSN       string `envconfig:"PG_DSN"`

	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"5m"`

	AMQPURL        string `envconfig:"AMQP_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"ledger_events"`

	JWTSecret string `envconfig:"JWT_SECRET"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
}

// LoadConfig reads an optional .env file and then environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks combinations envconfig cannot express.
func (c *Config) Validate() error {
	c.LedgerStore = strings.ToLower(strings.TrimSpace(c.LedgerStore))
	switch c.LedgerStore {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.PGDSN) == "" {
			return errors.New("PG_DSN must be provided when LEDGER_STORE=postgres")
		}
	default:
		return fmt.Errorf("unsupported LEDGER_STORE %q", c.LedgerStore)
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
