// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	defaultPort            = "3000"
	defaultMaxMessageSize  = 1_000_000
	defaultRateLimitMax    = 10
	defaultRateLimitWindow = time.Second
	defaultPingInterval    = 25 * time.Second
	defaultPingTimeout     = 60 * time.Second
	defaultSendBufferSize  = 256
	defaultShutdownGrace   = time.Second
	defaultShutdownTimeout = 10 * time.Second
)

var defaultOrigins = []string{
	"http://localhost:8080",
	"http://127.0.0.1:8080",
	"*.netlify.app",
	"*.onrender.com",
	"*.up.railway.app",
}

var validate = validator.New()

// Config holds the server settings. Environment variables are read through
// the env tags; AllowedOrigins is parsed from Origins.
type Config struct {
	Port            string        `env:"PORT,default=3000" validate:"required"`
	Environment     string        `env:"ENVIRONMENT,default=development"`
	Origins         string        `env:"ALLOWED_ORIGINS"`
	AllowedOrigins  []string      `validate:"dive,required"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=1000000" validate:"gt=0"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX,default=10" validate:"gt=0"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW,default=1s" validate:"gt=0"`
	PingInterval    time.Duration `env:"PING_INTERVAL,default=25s" validate:"gt=0"`
	PingTimeout     time.Duration `env:"PING_TIMEOUT,default=60s" validate:"gt=0"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,default=256" validate:"gt=0"`
	ShutdownGrace   time.Duration `env:"SHUTDOWN_GRACE,default=1s" validate:"gte=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	LogLevel        string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// NewConfig returns a Config populated with default values for all settings.
func NewConfig() Config {
	return Config{
		Port:            defaultPort,
		Environment:     "development",
		AllowedOrigins:  append([]string(nil), defaultOrigins...),
		MaxMessageSize:  defaultMaxMessageSize,
		RateLimitMax:    defaultRateLimitMax,
		RateLimitWindow: defaultRateLimitWindow,
		PingInterval:    defaultPingInterval,
		PingTimeout:     defaultPingTimeout,
		SendBufferSize:  defaultSendBufferSize,
		ShutdownGrace:   defaultShutdownGrace,
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        "info",
	}
}

// LoadConfig reads an optional .env file, then the process environment,
// and validates the result.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := NewConfig()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if cfg.Origins != "" {
		cfg.AllowedOrigins = parseOrigins(cfg.Origins)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr returns the listen address for the configured port.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func parseOrigins(origins string) []string {
	parts := lo.Map(strings.Split(origins, ","), func(part string, _ int) string {
		return strings.TrimSpace(part)
	})
	return lo.Compact(parts)
}
