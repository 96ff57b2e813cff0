package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration accepts either a Go duration string ("15m") or integer
// nanoseconds in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// fileConfig mirrors Config for JSON decoding. Pointer fields distinguish
// absent keys from zero values so the file only overrides what it sets.
type fileConfig struct {
	Addr                *string   `json:"addr"`
	DataDir             *string   `json:"data_dir"`
	Storage             *string   `json:"storage"`
	PostgresDSN         *string   `json:"postgres_dsn"`
	SessionStore        *string   `json:"session_store"`
	RedisAddr           *string   `json:"redis_addr"`
	SessionTTL          *Duration `json:"session_ttl"`
	SessionIdleTimeout  *Duration `json:"session_idle_timeout"`
	ResetTokenTTL       *Duration `json:"reset_token_ttl"`
	SecretKey           *string   `json:"secret_key"`
	BaseURL             *string   `json:"base_url"`
	MailFrom            *string   `json:"mail_from"`
	SMTPAddr            *string   `json:"smtp_addr"`
	SMTPUsername        *string   `json:"smtp_username"`
	SMTPPassword        *string   `json:"smtp_password"`
	MailWebhookURL      *string   `json:"mail_webhook_url"`
	MailWebhookAuth     *string   `json:"mail_webhook_auth"`
	MailQueueSize       *int      `json:"mail_queue_size"`
	TLSCert             *string   `json:"tls_cert"`
	TLSKey              *string   `json:"tls_key"`
	LogLevel            *string   `json:"log_level"`
	ShutdownGracePeriod *Duration `json:"shutdown_grace_period"`
}

// LoadFile overlays the JSON file at path onto c. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	setString(&c.Addr, fc.Addr)
	setString(&c.DataDir, fc.DataDir)
	setString(&c.Storage, fc.Storage)
	setString(&c.PostgresDSN, fc.PostgresDSN)
	setString(&c.SessionStore, fc.SessionStore)
	setString(&c.RedisAddr, fc.RedisAddr)
	setDuration(&c.SessionTTL, fc.SessionTTL)
	setDuration(&c.SessionIdleTimeout, fc.SessionIdleTimeout)
	setDuration(&c.ResetTokenTTL, fc.ResetTokenTTL)
	setString(&c.SecretKey, fc.SecretKey)
	setString(&c.BaseURL, fc.BaseURL)
	setString(&c.MailFrom, fc.MailFrom)
	setString(&c.SMTPAddr, fc.SMTPAddr)
	setString(&c.SMTPUsername, fc.SMTPUsername)
	setString(&c.SMTPPassword, fc.SMTPPassword)
	setString(&c.MailWebhookURL, fc.MailWebhookURL)
	setString(&c.MailWebhookAuth, fc.MailWebhookAuth)
	if fc.MailQueueSize != nil {
		c.MailQueueSize = *fc.MailQueueSize
	}
	setString(&c.TLSCert, fc.TLSCert)
	setString(&c.TLSKey, fc.TLSKey)
	setString(&c.LogLevel, fc.LogLevel)
	setDuration(&c.ShutdownGracePeriod, fc.ShutdownGracePeriod)
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *Duration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}
