package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmcleod/doorman/session"
)

// DefaultSessionTTL is the absolute session lifetime used without WithSessionTTL.
const DefaultSessionTTL = 24 * time.Hour

// SessionManager authenticates credentials and binds sessions to requests.
type SessionManager struct {
	users    UserStore
	sessions session.Store
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithLogger sets the logger for session store failures.
func WithLogger(l *slog.Logger) SessionOption {
	return func(m *SessionManager) { m.logger = l }
}

// WithSessionTTL sets the absolute lifetime of new sessions.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// NewSessionManager returns a manager over users and sessions.
func NewSessionManager(users UserStore, sessions session.Store, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		users:    users,
		sessions: sessions,
		ttl:      DefaultSessionTTL,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login verifies email and password and binds a fresh session to rc. Any
// session already bound to rc is discarded first so a login never reuses
// a prior token. Unknown email and wrong password both return
// ErrInvalidCredentials after the same password verification work.
func (m *SessionManager) Login(ctx context.Context, rc *RequestContext, email, password string) (*session.Session, error) {
	u, err := m.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if _, err := m.users.VerifyCredential(ctx, nil, password); err != nil {
				m.logger.Warn("dummy credential check failed", "error", err)
			}
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	ok, err := m.users.VerifyCredential(ctx, u, password)
	if err != nil {
		return nil, fmt.Errorf("verifying credential: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	m.Logout(ctx, rc)

	now := m.now()
	sess := session.Session{
		UserID:         u.ID,
		Email:          u.Email,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
		LastAccessedAt: now,
	}
	token := session.NewToken()
	if err := m.sessions.Put(ctx, token, sess); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	rc.SessionToken = token
	rc.Session = &sess
	return &sess, nil
}

// Logout deletes the session bound to rc, if any, and unbinds it. It is
// idempotent and never fails; store errors are logged.
func (m *SessionManager) Logout(ctx context.Context, rc *RequestContext) {
	if rc.SessionToken != "" {
		if err := m.sessions.Delete(ctx, rc.SessionToken); err != nil {
			m.logger.Warn("deleting session failed", "error", err)
		}
	}
	rc.SessionToken = ""
	rc.Session = nil
}

// Resume binds the session stored under token to rc and refreshes its last
// access time. It returns false if the token names no live session.
func (m *SessionManager) Resume(ctx context.Context, rc *RequestContext, token string) bool {
	if token == "" {
		return false
	}
	sess, ok := m.sessions.Get(ctx, token)
	if !ok {
		return false
	}
	sess.LastAccessedAt = m.now()
	if err := m.sessions.Put(ctx, token, sess); err != nil {
		m.logger.Warn("refreshing session failed", "error", err)
	}
	rc.SessionToken = token
	rc.Session = &sess
	return true
}

// CurrentUser returns the user behind the session bound to rc.
func (m *SessionManager) CurrentUser(ctx context.Context, rc *RequestContext) (*User, error) {
	if !rc.LoggedIn() {
		return nil, ErrUserNotFound
	}
	return m.users.FindByID(ctx, rc.Session.UserID)
}
