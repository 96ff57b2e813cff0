package web

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEveryPage(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	for _, page := range pages {
		rec := httptest.NewRecorder()
		r.Render(rec, http.StatusOK, page, PageData{CSRFToken: "csrf-123"})
		assert.Equal(t, http.StatusOK, rec.Code, page)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "<!DOCTYPE html>", page)
	}
}

func TestRenderFlashAndFieldErrors(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.Render(rec, http.StatusUnprocessableEntity, PageResetEdit, PageData{
		Alert:       "<b>bad</b>",
		Token:       "abc",
		FieldErrors: map[string][]string{"password_confirmation": {"doesn't match Password"}},
	})
	body := rec.Body.String()
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body, `action="/passwords/abc"`)
	assert.Contains(t, body, "Password confirmation doesn&#39;t match Password")
	assert.Contains(t, body, "&lt;b&gt;bad&lt;/b&gt;")
	assert.NotContains(t, body, "<b>bad</b>")
}

func TestRenderLoggedInHeader(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.Render(rec, http.StatusOK, PageHome, PageData{CurrentEmail: "a@x.com", Notice: "Logged in successfully"})
	assert.Contains(t, rec.Body.String(), "a@x.com")
	assert.Contains(t, rec.Body.String(), "Logged in successfully")
	assert.Contains(t, rec.Body.String(), `action="/session/logout"`)
}

func TestRenderUnknownPage(t *testing.T) {
	var logs bytes.Buffer
	r, err := NewRenderer(WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.Render(rec, http.StatusOK, "nope", PageData{})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), `"msg":"unknown page"`)
	assert.Contains(t, logs.String(), `"page":"nope"`)
}

func TestStaticHandler(t *testing.T) {
	h, err := StaticHandler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	http.StripPrefix("/static/", h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".flash")
}
