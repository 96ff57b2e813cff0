package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/doorman/internal/config"
	"github.com/jmcleod/doorman/mail"
)

const testSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func quietLogger() *slog.Logger { return NewLogger(io.Discard, slog.LevelError) }

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func TestNewInMemory(t *testing.T) {
	a := newApp(t, config.Default())
	_, err := a.Users.Create(context.Background(), "a@x.com", "OldPass1!", "OldPass1!")
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = noRedirect().PostForm(srv.URL+"/session", url.Values{
		"email":    {"a@x.com"},
		"password": {"OldPass1!"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	var names []string
	for _, c := range resp.Cookies() {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "doorman_session")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageBbolt
	_, err := New(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_key")
}

func TestBboltUsersSurviveRestart(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageBbolt
	cfg.SessionStore = config.SessionsPersistent
	cfg.DataDir = t.TempDir()
	cfg.SecretKey = testSecret

	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	_, err = a.Users.Create(context.Background(), "a@x.com", "OldPass1!", "OldPass1!")
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b := newApp(t, cfg)
	u, err := b.Users.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	ok, err := b.Users.VerifyCredential(context.Background(), u, "OldPass1!")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.SessionStore = config.SessionsRedis
	cfg.RedisAddr = mr.Addr()
	cfg.SecretKey = testSecret

	a := newApp(t, cfg)
	_, err := a.Users.Create(context.Background(), "a@x.com", "OldPass1!", "OldPass1!")
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler)
	defer srv.Close()
	resp, err := noRedirect().PostForm(srv.URL+"/session", url.Values{
		"email":    {"a@x.com"},
		"password": {"OldPass1!"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	var sessionKeys int
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "doorman:session:") {
			sessionKeys++
		}
	}
	assert.Equal(t, 1, sessionKeys)
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.SessionStore = config.SessionsRedis
	cfg.RedisAddr = addr
	cfg.SecretKey = testSecret
	_, err := New(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestMasterSecret(t *testing.T) {
	cfg := config.Default()
	s1, err := MasterSecret(cfg, quietLogger())
	require.NoError(t, err)
	s2, err := MasterSecret(cfg, quietLogger())
	require.NoError(t, err)
	assert.Len(t, s1, 32)
	assert.NotEqual(t, s1, s2)

	cfg.SecretKey = testSecret
	s, err := MasterSecret(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, byte(0x1f), s[31])
}

func TestNewSender(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, mail.LogSender{}, newSender(cfg, quietLogger()))

	cfg.SMTPAddr = "localhost:25"
	assert.IsType(t, &mail.SMTPSender{}, newSender(cfg, quietLogger()))

	cfg.MailWebhookURL = "https://mail.example.com/send"
	assert.IsType(t, &mail.WebhookSender{}, newSender(cfg, quietLogger()))
}

func TestMethodOverrideThroughMountedRouter(t *testing.T) {
	a := newApp(t, config.Default())
	srv := httptest.NewServer(a.Handler)
	defer srv.Close()

	resp, err := noRedirect().PostForm(srv.URL+"/session", url.Values{"_method": {"delete"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}
