package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/doorman/auth"
)

type contextKey int

const requestContextKey contextKey = iota

const (
	sessionCookieName = "doorman_session"
	maxFormBodySize   = 64 << 10
)

// LoadSession builds the auth.RequestContext for the request, resuming the
// session named by the session cookie if it is still live. A stale cookie is
// cleared.
func (a *API) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := &auth.RequestContext{}
		if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
			if !a.sessions.Resume(r.Context(), rc, cookie.Value) {
				clearSessionCookie(w, r)
			}
		}
		ctx := context.WithValue(r.Context(), requestContextKey, rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestContextFrom returns the RequestContext installed by LoadSession,
// or an empty one.
func requestContextFrom(r *http.Request) *auth.RequestContext {
	if rc, ok := r.Context().Value(requestContextKey).(*auth.RequestContext); ok {
		return rc
	}
	return &auth.RequestContext{}
}

// MethodOverride lets HTML forms, which can only POST, reach PUT, PATCH and
// DELETE routes through a hidden _method field.
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
			switch m := strings.ToUpper(r.PostFormValue("_method")); m {
			case http.MethodPut, http.MethodPatch, http.MethodDelete:
				r.Method = m
				// A parent router has already fixed the routing method.
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					rctx.RouteMethod = m
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
