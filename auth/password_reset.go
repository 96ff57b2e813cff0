package auth

import (
	"context"
	"errors"
	"log/slog"
)

// PasswordReset runs the request, token gate and update steps of the
// password reset flow.
type PasswordReset struct {
	users  UserStore
	tokens TokenService
	mailer Mailer
	logger *slog.Logger
}

// NewPasswordReset wires the reset flow. A nil logger uses slog.Default.
func NewPasswordReset(users UserStore, tokens TokenService, mailer Mailer, logger *slog.Logger) *PasswordReset {
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordReset{users: users, tokens: tokens, mailer: mailer, logger: logger}
}

// RequestReset issues a reset token for email and hands it to the mailer
// when the user exists. It returns the same acknowledgement either way and
// never fails; lookup and issuance errors are only logged.
func (p *PasswordReset) RequestReset(ctx context.Context, email string) string {
	u, err := p.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			p.logger.Error("password reset lookup failed", "error", err)
		}
		return NoticeResetRequested
	}
	token, err := p.tokens.Issue(PurposePasswordReset, u)
	if err != nil {
		p.logger.Error("issuing password reset token failed", "user_id", u.ID, "error", err)
		return NoticeResetRequested
	}
	p.mailer.EnqueueReset(ctx, u, token)
	return NoticeResetRequested
}

// ResolveTokenGate resolves token to its user and binds it to rc. Any
// failure yields ErrInvalidOrExpiredToken and leaves rc.ResetUser nil.
func (p *PasswordReset) ResolveTokenGate(ctx context.Context, rc *RequestContext, token string) (*User, error) {
	rc.ResetUser = nil
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	u, err := p.tokens.Resolve(ctx, PurposePasswordReset, token)
	if err != nil {
		if !errors.Is(err, ErrInvalidOrExpiredToken) {
			p.logger.Warn("resolving reset token failed", "error", err)
		}
		return nil, ErrInvalidOrExpiredToken
	}
	rc.ResetUser = u
	return u, nil
}

// SubmitUpdate sets the password of the user bound by ResolveTokenGate.
// Constraint failures come back as ValidationErrors. If the credential
// changed after the gate resolved the token, the token counts as spent and
// ErrInvalidOrExpiredToken is returned. It does not log the user in.
func (p *PasswordReset) SubmitUpdate(ctx context.Context, rc *RequestContext, password, confirmation string) error {
	if rc.ResetUser == nil {
		return ErrNoResetUser
	}
	err := p.users.UpdateCredential(ctx, rc.ResetUser, password, confirmation)
	if errors.Is(err, ErrStaleCredential) {
		rc.ResetUser = nil
		return ErrInvalidOrExpiredToken
	}
	return err
}
