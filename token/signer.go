// Package token issues and verifies purpose-scoped HS256 tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/doorman/internal/util"
)

const (
	issuer       = "doorman"
	minSecretLen = 32
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload. Sub holds the user ID and Cv the user's
// credential version at issuance.
type Claims struct {
	Purpose           string `json:"pur"`
	CredentialVersion uint64 `json:"cv"`
	jwt.RegisteredClaims
}

// Signer signs and verifies tokens with an HMAC key held in a memguard
// enclave, so the key is only decrypted into locked memory while in use.
type Signer struct {
	key *memguard.Enclave
	now func() time.Time
}

// NewSigner copies secret into an enclave. The caller's slice is left intact.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", minSecretLen, len(secret))
	}
	// NewEnclave wipes its argument.
	return &Signer{key: memguard.NewEnclave(util.CopyBytes(secret)), now: time.Now}, nil
}

func (s *Signer) withKey(fn func(key []byte) error) error {
	buf, err := s.key.Open()
	if err != nil {
		return fmt.Errorf("opening signing key: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Sign returns a token for subject scoped to purpose, valid for ttl.
func (s *Signer) Sign(purpose, subject string, credentialVersion uint64, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Purpose:           purpose,
		CredentialVersion: credentialVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	var signed string
	err := s.withKey(func(key []byte) error {
		var err error
		signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer, expiry and purpose and returns
// the claims.
func (s *Signer) Verify(purpose, raw string) (*Claims, error) {
	claims := &Claims{}
	err := s.withKey(func(key []byte) error {
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return key, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(s.now),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: purpose %q", ErrInvalidToken, claims.Purpose)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
