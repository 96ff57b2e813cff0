// Package auth implements session login/logout and the password reset
// flow. It owns no storage: users, tokens, sessions and mail delivery are
// reached through the interfaces declared here.
package auth

import (
	"context"
	"time"

	"github.com/jmcleod/doorman/session"
)

// PurposePasswordReset scopes tokens issued by the reset flow.
const PurposePasswordReset = "password_reset"

// User-facing messages.
const (
	NoticeLoggedIn          = "Logged in successfully"
	AlertInvalidCredentials = "Invalid email or password"
	NoticeLoggedOut         = "Logged out successfully"
	NoticeResetRequested    = "If your email is in our system, you will receive a password reset link shortly."
	AlertInvalidResetToken  = "Invalid or expired token. Please try again!"
	NoticePasswordUpdated   = "Password updated successfully. Please log in."
)

// User is an account that can log in.
type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	PasswordDigest    string    `json:"password_digest"`
	CredentialVersion uint64    `json:"credential_version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// UserStore looks users up and manages their credentials.
type UserStore interface {
	// FindByEmail returns ErrUserNotFound when no user has exactly this email.
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	// VerifyCredential reports whether password matches the user's digest.
	// A nil u does the same amount of work and reports false.
	VerifyCredential(ctx context.Context, u *User, password string) (bool, error)
	// UpdateCredential replaces the user's password. Constraint failures are
	// returned as ValidationErrors and leave the stored credential unchanged.
	// ErrStaleCredential means the stored credential version no longer
	// matches u's. On success u reflects the stored record.
	UpdateCredential(ctx context.Context, u *User, password, confirmation string) error
}

// TokenService issues and resolves signed, expiring, purpose-scoped tokens.
type TokenService interface {
	Issue(purpose string, u *User) (string, error)
	// Resolve returns ErrInvalidOrExpiredToken for any token that is
	// malformed, forged, expired, for another purpose or for a missing user.
	Resolve(ctx context.Context, purpose, token string) (*User, error)
}

// Mailer delivers reset links. EnqueueReset must not block on delivery.
type Mailer interface {
	EnqueueReset(ctx context.Context, u *User, token string)
}

// RequestContext is the per-request state the flows read and mutate: the
// bound session, if any, and the user resolved from a reset token, if any.
type RequestContext struct {
	SessionToken string
	Session      *session.Session
	ResetUser    *User
}

// LoggedIn reports whether a live session is bound to the request.
func (rc *RequestContext) LoggedIn() bool {
	return rc != nil && rc.Session != nil
}
