package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const envPrefix = "DOORMAN_"

// ApplyEnv overlays DOORMAN_<KEY> environment variables, e.g.
// DOORMAN_SECRET_KEY or DOORMAN_RESET_TOKEN_TTL=30m.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":              &c.Addr,
		"DATA_DIR":          &c.DataDir,
		"STORAGE":           &c.Storage,
		"POSTGRES_DSN":      &c.PostgresDSN,
		"SESSION_STORE":     &c.SessionStore,
		"REDIS_ADDR":        &c.RedisAddr,
		"SECRET_KEY":        &c.SecretKey,
		"BASE_URL":          &c.BaseURL,
		"MAIL_FROM":         &c.MailFrom,
		"SMTP_ADDR":         &c.SMTPAddr,
		"SMTP_USERNAME":     &c.SMTPUsername,
		"SMTP_PASSWORD":     &c.SMTPPassword,
		"MAIL_WEBHOOK_URL":  &c.MailWebhookURL,
		"MAIL_WEBHOOK_AUTH": &c.MailWebhookAuth,
		"TLS_CERT":          &c.TLSCert,
		"TLS_KEY":           &c.TLSKey,
		"LOG_LEVEL":         &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}

	var errs []error
	durations := map[string]*time.Duration{
		"SESSION_TTL":           &c.SessionTTL,
		"SESSION_IDLE_TIMEOUT":  &c.SessionIdleTimeout,
		"RESET_TOKEN_TTL":       &c.ResetTokenTTL,
		"SHUTDOWN_GRACE_PERIOD": &c.ShutdownGracePeriod,
	}
	for key, dst := range durations {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				continue
			}
			*dst = d
		}
	}
	if v, ok := lookup(envPrefix + "MAIL_QUEUE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAIL_QUEUE_SIZE: %w", envPrefix, err))
		} else {
			c.MailQueueSize = n
		}
	}
	return errors.Join(errs...)
}
