// Package config holds the server settings: defaults, then an optional JSON
// file, then DOORMAN_* environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmcleod/doorman/internal/util"
)

const (
	StorageMemory   = "memory"
	StorageBbolt    = "bbolt"
	StoragePostgres = "postgres"

	SessionsMemory     = "memory"
	SessionsPersistent = "persistent"
	SessionsRedis      = "redis"

	minSecretBytes = 32
)

// Config holds runtime settings for the doorman server.
type Config struct {
	Addr               string
	DataDir            string
	Storage            string
	PostgresDSN        string
	SessionStore       string
	RedisAddr          string
	SessionTTL         time.Duration
	SessionIdleTimeout time.Duration
	ResetTokenTTL      time.Duration
	// SecretKey is the hex-encoded master secret. Token, user record and
	// session keys are all derived from it.
	SecretKey           string
	BaseURL             string
	MailFrom            string
	SMTPAddr            string
	SMTPUsername        string
	SMTPPassword        string
	MailWebhookURL      string
	MailWebhookAuth     string
	MailQueueSize       int
	TLSCert             string
	TLSKey              string
	LogLevel            string
	ShutdownGracePeriod time.Duration
}

// Default returns development defaults. Memory storage and an ephemeral
// secret mean nothing survives a restart.
func Default() *Config {
	return &Config{
		Addr:                ":8080",
		DataDir:             "./data",
		Storage:             StorageMemory,
		SessionStore:        SessionsMemory,
		RedisAddr:           "localhost:6379",
		SessionTTL:          24 * time.Hour,
		SessionIdleTimeout:  30 * time.Minute,
		ResetTokenTTL:       15 * time.Minute,
		BaseURL:             "http://localhost:8080",
		MailFrom:            "no-reply@localhost",
		MailQueueSize:       256,
		LogLevel:            "info",
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Persistent reports whether any data outlives the process, which requires
// a stable secret.
func (c *Config) Persistent() bool {
	return c.Storage != StorageMemory || c.SessionStore != SessionsMemory
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StorageMemory, StorageBbolt:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required when storage is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	switch c.SessionStore {
	case SessionsMemory, SessionsPersistent:
	case SessionsRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required when session_store is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session_store %q", c.SessionStore))
	}
	if c.SecretKey != "" {
		if _, err := c.Secret(); err != nil {
			errs = append(errs, err)
		}
	} else if c.Persistent() {
		errs = append(errs, errors.New("secret_key is required with persistent storage or sessions"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if c.SessionIdleTimeout < 0 {
		errs = append(errs, errors.New("session_idle_timeout must not be negative"))
	}
	if c.ResetTokenTTL <= 0 {
		errs = append(errs, errors.New("reset_token_ttl must be positive"))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("tls_cert and tls_key must be set together"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Secret decodes SecretKey.
func (c *Config) Secret() ([]byte, error) {
	b, err := util.HexDecode(strings.TrimSpace(c.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("secret_key must be hex: %w", err)
	}
	if len(b) < minSecretBytes {
		return nil, fmt.Errorf("secret_key must be at least %d bytes, got %d", minSecretBytes, len(b))
	}
	return b, nil
}

// GenerateSecret returns a new random hex secret suitable for SecretKey.
func GenerateSecret() (string, error) {
	b, err := util.RandomBytes(minSecretBytes)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(b)
	return util.HexEncode(b), nil
}

// ParseLevel maps a log_level string to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", s)
	}
	return l, nil
}
