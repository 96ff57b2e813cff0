package token

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/doorman/auth"
)

var testSecret = bytes.Repeat([]byte{0x42}, 32)

type fakeUsers map[string]*auth.User

func (f fakeUsers) FindByID(_ context.Context, id string) (*auth.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func newSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testSecret)
	require.NoError(t, err)
	return s
}

func TestNewSignerRejectsShortSecret(t *testing.T) {
	_, err := NewSigner([]byte("short"))
	assert.Error(t, err)
}

func TestNewSignerLeavesCallerSecret(t *testing.T) {
	secret := bytes.Repeat([]byte{0x07}, 32)
	_, err := NewSigner(secret)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x07}, 32), secret)
}

func TestSignVerify(t *testing.T) {
	s := newSigner(t)

	raw, err := s.Sign(auth.PurposePasswordReset, "user-1", 3, time.Minute)
	require.NoError(t, err)

	claims, err := s.Verify(auth.PurposePasswordReset, raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, uint64(3), claims.CredentialVersion)
	assert.Equal(t, auth.PurposePasswordReset, claims.Purpose)
}

func TestVerifyRejects(t *testing.T) {
	s := newSigner(t)
	good, err := s.Sign(auth.PurposePasswordReset, "user-1", 0, time.Minute)
	require.NoError(t, err)

	t.Run("WrongPurpose", func(t *testing.T) {
		raw, err := s.Sign("email_confirmation", "user-1", 0, time.Minute)
		require.NoError(t, err)
		_, err = s.Verify(auth.PurposePasswordReset, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		raw, err := s.Sign(auth.PurposePasswordReset, "user-1", 0, time.Minute)
		require.NoError(t, err)
		s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		defer func() { s.now = time.Now }()
		_, err = s.Verify(auth.PurposePasswordReset, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := s.Verify(auth.PurposePasswordReset, "garbage-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("OtherKey", func(t *testing.T) {
		other, err := NewSigner(bytes.Repeat([]byte{0x43}, 32))
		require.NoError(t, err)
		_, err = other.Verify(auth.PurposePasswordReset, good)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Tampered", func(t *testing.T) {
		tampered := good[:len(good)-2] + "xx"
		if tampered == good {
			tampered = good[:len(good)-2] + "yy"
		}
		_, err := s.Verify(auth.PurposePasswordReset, tampered)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		claims := Claims{
			Purpose: auth.PurposePasswordReset,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				Subject:   "user-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.Verify(auth.PurposePasswordReset, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestServiceResolve(t *testing.T) {
	users := fakeUsers{"user-1": {ID: "user-1", Email: "a@x.com", CredentialVersion: 1}}
	svc := NewService(newSigner(t), users, 0)
	assert.Equal(t, DefaultTTL, svc.TTL())
	ctx := context.Background()

	raw, err := svc.Issue(auth.PurposePasswordReset, users["user-1"])
	require.NoError(t, err)

	u, err := svc.Resolve(ctx, auth.PurposePasswordReset, raw)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)

	_, err = svc.Resolve(ctx, "other", raw)
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)

	users["user-1"].CredentialVersion = 2
	_, err = svc.Resolve(ctx, auth.PurposePasswordReset, raw)
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken, "credential change revokes token")

	delete(users, "user-1")
	_, err = svc.Resolve(ctx, auth.PurposePasswordReset, raw)
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
}

func TestServiceIssueRequiresUser(t *testing.T) {
	svc := NewService(newSigner(t), fakeUsers{}, time.Minute)
	_, err := svc.Issue(auth.PurposePasswordReset, nil)
	assert.Error(t, err)
}
