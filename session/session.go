// Package session holds server-side login sessions keyed by an opaque
// cookie token, with in-memory, repository-backed and Redis stores.
package session

import (
	"context"
	"time"

	"github.com/jmcleod/doorman/internal/uuid"
)

// Store abstracts session CRUD so the login flow does not care where
// sessions live.
type Store interface {
	// Get retrieves a session by token. Returns false if the session
	// does not exist, has expired, or has exceeded the idle timeout.
	Get(ctx context.Context, token string) (Session, bool)
	// Put creates or replaces the session for token.
	Put(ctx context.Context, token string, s Session) error
	// Delete removes a session. Deleting a missing token is not an error.
	Delete(ctx context.Context, token string) error
}

// Session is the server-side state of a logged-in browser.
type Session struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Live reports whether s is usable at now given the store's idle timeout.
// An idleTimeout of 0 disables the idle check.
func (s Session) Live(now time.Time, idleTimeout time.Duration) bool {
	if now.After(s.ExpiresAt) {
		return false
	}
	if idleTimeout > 0 && now.Sub(s.LastAccessedAt) > idleTimeout {
		return false
	}
	return true
}

// NewToken returns a fresh random session token.
func NewToken() string {
	return uuid.New()
}
