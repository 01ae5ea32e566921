// Package server provides configuration helpers that define runtime defaults,
// validation, and admission-control parameters for the popchat service.
package server

import (
	"os"
	"strings"
	"sync"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds the server configuration, loaded from the environment and
// sanitized before use. Limits mirror the structural caps enforced by the
// session layer and the two admission-control gates.
type Config struct {
	Port string `env:"SERVER_PORT,default=:3002"`
	// Read from ALLOWED_ORIGINS as a comma-separated list. Populated by
	// NewConfigFromEnv rather than a struct tag: go-env splits slice values
	// on "|", which is not the separator this service documents.
	AllowedOrigins []string
	StaticDir      string `env:"STATIC_DIR,default=./public"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`

	MaxGroups        int `env:"MAX_GROUPS,default=1000"`
	MaxUsersPerGroup int `env:"MAX_USERS_PER_GROUP,default=50"`
	MaxNameLength    int `env:"MAX_NAME_LENGTH,default=20"`
	MaxMessageLength int `env:"MAX_MESSAGE_LENGTH,default=500"`

	// Connection-level admission control: at most MessageLimit sends per
	// MessageWindowSec, with MessageMinIntervalMS between consecutive sends.
	MessageLimit         int `env:"MESSAGE_LIMIT,default=20"`
	MessageWindowSec     int `env:"MESSAGE_WINDOW_SECONDS,default=60"`
	MessageMinIntervalMS int `env:"MESSAGE_MIN_INTERVAL_MS,default=500"`

	// Transport-level admission control: requests per minute per address.
	HTTPRateLimit int `env:"HTTP_RATE_LIMIT,default=60"`

	ShutdownTimeoutSec int `env:"SHUTDOWN_TIMEOUT_SECONDS,default=10"`
}

// MessageWindow returns the connection-level rate window as a duration.
func (c Config) MessageWindow() time.Duration {
	return time.Duration(c.MessageWindowSec) * time.Second
}

// MessageMinInterval returns the minimum spacing between sends as a duration.
func (c Config) MessageMinInterval() time.Duration {
	return time.Duration(c.MessageMinIntervalMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful-shutdown budget as a duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":3002",
		AllowedOrigins: []string{
			"http://localhost:5500",
			"http://127.0.0.1:5500",
		},
		StaticDir:            "./public",
		LogLevel:             "info",
		MaxGroups:            1000,
		MaxUsersPerGroup:     50,
		MaxNameLength:        20,
		MaxMessageLength:     500,
		MessageLimit:         20,
		MessageWindowSec:     60,
		MessageMinIntervalMS: 500,
		HTTPRateLimit:        60,
		ShutdownTimeoutSec:   10,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	cfg.Port = strings.TrimSpace(cfg.Port)
	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = defaults.StaticDir
	}
	if cfg.MaxGroups <= 0 {
		cfg.MaxGroups = defaults.MaxGroups
	}
	if cfg.MaxUsersPerGroup <= 0 {
		cfg.MaxUsersPerGroup = defaults.MaxUsersPerGroup
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = defaults.MaxNameLength
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaults.MaxMessageLength
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = defaults.MessageLimit
	}
	if cfg.MessageWindowSec <= 0 {
		cfg.MessageWindowSec = defaults.MessageWindowSec
	}
	if cfg.MessageMinIntervalMS < 0 {
		cfg.MessageMinIntervalMS = 0
	}
	if cfg.HTTPRateLimit <= 0 {
		cfg.HTTPRateLimit = defaults.HTTPRateLimit
	}
	if cfg.ShutdownTimeoutSec <= 0 {
		cfg.ShutdownTimeoutSec = defaults.ShutdownTimeoutSec
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = append([]string(nil), defaults.AllowedOrigins...)
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration and returns the sanitized
// snapshot that is now active. Passing nil resets to defaults.
func SetConfig(cfg *Config) Config {
	if cfg == nil {
		return sanitizeConfig(defaultConfig())
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables,
// falling back to defaults for anything unset.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, err
	}
	cfg.AllowedOrigins = splitOrigins(os.Getenv("ALLOWED_ORIGINS"))
	return &cfg, nil
}

// splitOrigins parses the comma-separated ALLOWED_ORIGINS value, dropping
// empty entries so trailing commas are harmless.
func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
