package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmcleod/doorman/auth"
)

// DefaultTTL is the token lifetime used when NewService gets a non-positive ttl.
const DefaultTTL = 15 * time.Minute

// UserFinder is the lookup the service needs to resolve a token's subject.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*auth.User, error)
}

// Service implements auth.TokenService. A token stays valid only while the
// user's credential version matches the one it was issued against, so
// changing the password revokes every outstanding token.
type Service struct {
	signer *Signer
	users  UserFinder
	ttl    time.Duration
}

var _ auth.TokenService = (*Service)(nil)

// NewService returns a token service signing with signer and resolving
// subjects through users.
func NewService(signer *Signer, users UserFinder, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{signer: signer, users: users, ttl: ttl}
}

// TTL returns how long issued tokens stay valid.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for u scoped to purpose and u's current credential version.
func (s *Service) Issue(purpose string, u *auth.User) (string, error) {
	if u == nil || u.ID == "" {
		return "", errors.New("issue token: user required")
	}
	return s.signer.Sign(purpose, u.ID, u.CredentialVersion, s.ttl)
}

// Resolve verifies raw and returns its user. Any token that fails
// verification, names a missing user or predates a credential change
// yields auth.ErrInvalidOrExpiredToken.
func (s *Service) Resolve(ctx context.Context, purpose, raw string) (*auth.User, error) {
	claims, err := s.signer.Verify(purpose, raw)
	if err != nil {
		return nil, auth.ErrInvalidOrExpiredToken
	}
	u, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, auth.ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("resolving token subject: %w", err)
	}
	if u.CredentialVersion != claims.CredentialVersion {
		return nil, auth.ErrInvalidOrExpiredToken
	}
	return u, nil
}
