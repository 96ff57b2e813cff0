package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/doorman/internal/util"
)

func newKey(t *testing.T) []byte {
	t.Helper()
	key, err := util.RandomBytes(util.AESKeySize)
	require.NoError(t, err)
	return key
}

func TestEnvelope(t *testing.T) {
	key := newKey(t)
	plain := []byte(`{"email":"a@x.com"}`)
	aad := []byte("user:42")

	env, err := SealRecord(key, plain, aad, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Ver)
	assert.Equal(t, uint64(7), env.Version)

	got, err := OpenRecord(key, env, aad)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	t.Run("WrongAAD", func(t *testing.T) {
		_, err := OpenRecord(key, env, []byte("user:43"))
		assert.Error(t, err)
	})

	t.Run("WrongKey", func(t *testing.T) {
		_, err := OpenRecord(newKey(t), env, aad)
		assert.Error(t, err)
	})

	t.Run("UnsupportedVersion", func(t *testing.T) {
		bad := *env
		bad.Ver = 99
		_, err := OpenRecord(key, &bad, aad)
		assert.ErrorContains(t, err, "unsupported envelope version")
	})

	t.Run("UnsupportedScheme", func(t *testing.T) {
		bad := *env
		bad.Scheme = "unknown"
		_, err := OpenRecord(key, &bad, aad)
		assert.ErrorContains(t, err, "unsupported envelope scheme")
	})

	t.Run("NilEnvelope", func(t *testing.T) {
		_, err := OpenRecord(key, nil, aad)
		assert.Error(t, err)
	})
}
