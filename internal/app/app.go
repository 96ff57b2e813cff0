// Package app wires configuration into a running doorman: storage, users,
// tokens, sessions, mail and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/jmcleod/doorman/api"
	"github.com/jmcleod/doorman/auth"
	"github.com/jmcleod/doorman/internal/config"
	"github.com/jmcleod/doorman/internal/util"
	"github.com/jmcleod/doorman/mail"
	"github.com/jmcleod/doorman/password"
	"github.com/jmcleod/doorman/session"
	"github.com/jmcleod/doorman/storage"
	bboltstorage "github.com/jmcleod/doorman/storage/bbolt"
	"github.com/jmcleod/doorman/storage/memory"
	"github.com/jmcleod/doorman/storage/postgres"
	"github.com/jmcleod/doorman/token"
	"github.com/jmcleod/doorman/users"
	"github.com/jmcleod/doorman/web"
)

// Subkey purposes derived from the master secret.
const (
	purposeTokens   = "tokens"
	purposeUsers    = "users"
	purposeSessions = "sessions"
)

// App is a fully wired service. Close releases everything it opened, in
// reverse order, after draining the mail queue.
type App struct {
	Users   *users.Store
	Handler http.Handler

	logger  *slog.Logger
	closers []func() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// OpenRepository opens the record store selected by cfg.Storage.
func OpenRepository(ctx context.Context, cfg *config.Config) (storage.Repository, func() error, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.NewRepository(), func() error { return nil }, nil
	case config.StorageBbolt:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, "doorman.db"), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("opening bbolt storage: %w", err)
		}
		return repo, repo.Close, nil
	case config.StoragePostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// MasterSecret returns the configured secret, or a random one for purely
// in-memory deployments.
func MasterSecret(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.SecretKey != "" {
		return cfg.Secret()
	}
	if cfg.Persistent() {
		return nil, errors.New("secret_key is required with persistent storage or sessions")
	}
	logger.Warn("no secret_key configured; using an ephemeral secret, reset links will not survive a restart")
	return util.RandomBytes(32)
}

// NewUserStore builds the user store over repo with keys derived from secret.
func NewUserStore(repo storage.Repository, secret []byte, logger *slog.Logger) (*users.Store, error) {
	key, err := util.DeriveSubkey(secret, purposeUsers)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(key)
	hasher, err := password.NewHasher(password.DefaultParams())
	if err != nil {
		return nil, err
	}
	return users.NewStore(repo, hasher, key, users.WithLogger(logger))
}

// New wires the whole service from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	repo, closeRepo, err := OpenRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)

	secret, err := MasterSecret(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(secret)

	a.Users, err = NewUserStore(repo, secret, logger)
	if err != nil {
		return nil, err
	}

	tokenKey, err := util.DeriveSubkey(secret, purposeTokens)
	if err != nil {
		return nil, err
	}
	signer, err := token.NewSigner(tokenKey)
	util.WipeBytes(tokenKey)
	if err != nil {
		return nil, err
	}
	tokens := token.NewService(signer, a.Users, cfg.ResetTokenTTL)

	sessions, health, err := a.openSessions(ctx, cfg, repo, secret)
	if err != nil {
		return nil, err
	}

	queue := mail.NewQueue(newSender(cfg, logger), cfg.MailQueueSize, logger)
	a.closers = append(a.closers, func() error { queue.Close(); return nil })
	mailer := mail.NewResetMailer(queue, cfg.MailFrom, cfg.BaseURL, tokens.TTL())

	manager := auth.NewSessionManager(a.Users, sessions,
		auth.WithLogger(logger),
		auth.WithSessionTTL(cfg.SessionTTL),
	)
	reset := auth.NewPasswordReset(a.Users, tokens, mailer, logger)

	pages, err := web.NewRenderer(web.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if p, ok := repo.(pinger); ok {
		health = append(health, p.Ping)
	}
	h := api.New(manager, reset, pages,
		api.WithLogger(logger),
		api.WithHealthCheck(func(ctx context.Context) error {
			for _, ping := range health {
				if err := ping(ctx); err != nil {
					return err
				}
			}
			return nil
		}),
		api.WithAlertFunc(func(e api.AlertEvent) {
			logger.Warn("security alert", "type", e.Type, "message", e.Message, "count", e.Count, "threshold", e.Threshold)
		}),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", h.Router())
	a.Handler = r
	return a, nil
}

func (a *App) openSessions(ctx context.Context, cfg *config.Config, repo storage.Repository, secret []byte) (session.Store, []func(context.Context) error, error) {
	switch cfg.SessionStore {
	case config.SessionsPersistent:
		key, err := util.DeriveSubkey(secret, purposeSessions)
		if err != nil {
			return nil, nil, err
		}
		defer util.WipeBytes(key)
		s, err := session.NewPersistentStore(ctx, repo, cfg.SessionIdleTimeout, key, a.logger)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		return s, nil, nil
	case config.SessionsRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return session.NewRedisStore(client, "", cfg.SessionIdleTimeout), []func(context.Context) error{ping}, nil
	default:
		return session.NewMemoryStore(cfg.SessionIdleTimeout), nil, nil
	}
}

func newSender(cfg *config.Config, logger *slog.Logger) mail.Sender {
	switch {
	case cfg.MailWebhookURL != "":
		return mail.NewWebhookSender(cfg.MailWebhookURL, cfg.MailWebhookAuth)
	case cfg.SMTPAddr != "":
		return mail.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword)
	default:
		return mail.LogSender{Logger: logger}
	}
}

// Close drains the mail queue and releases stores and connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewLogger returns the JSON logger used by the service.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
