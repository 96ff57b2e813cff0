package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/doorman/auth"
	"github.com/jmcleod/doorman/web"
)

// pageData seeds the view model with the flash, CSRF token and logged-in
// email shared by every page.
func (a *API) pageData(w http.ResponseWriter, r *http.Request) web.PageData {
	f := takeFlash(w, r)
	d := web.PageData{
		Notice:    f.Notice,
		Alert:     f.Alert,
		CSRFToken: csrfToken(w, r),
	}
	if rc := requestContextFrom(r); rc.LoggedIn() {
		d.CurrentEmail = rc.Session.Email
	}
	return d
}

// Home handles GET /.
func (a *API) Home(w http.ResponseWriter, r *http.Request) {
	d := a.pageData(w, r)
	d.Title = "Home"
	a.pages.Render(w, http.StatusOK, web.PageHome, d)
}

// NewSession handles GET /session/new.
func (a *API) NewSession(w http.ResponseWriter, r *http.Request) {
	d := a.pageData(w, r)
	d.Title = "Log in"
	a.pages.Render(w, http.StatusOK, web.PageLogin, d)
}

// CreateSession handles POST /session.
func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	rc := requestContextFrom(r)

	sess, err := a.sessions.Login(r.Context(), rc, email, password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			a.renderInternalError(w, r, "login failed", err)
			return
		}
		a.audit.logFailure(AuditLoginFailure, r, "invalid credentials")
		d := a.pageData(w, r)
		d.Title = "Log in"
		d.Alert = auth.AlertInvalidCredentials
		d.Email = email
		a.pages.Render(w, http.StatusUnprocessableEntity, web.PageLogin, d)
		return
	}

	writeSessionCookie(w, r, rc.SessionToken, sess.ExpiresAt)
	a.audit.logUser(AuditLoginSuccess, r, sess.UserID)
	redirectWithFlash(w, r, "/", flash{Notice: auth.NoticeLoggedIn})
}

// DestroySession handles DELETE /session and POST /session/logout.
func (a *API) DestroySession(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r)
	var attrs []slog.Attr
	if rc.LoggedIn() {
		attrs = append(attrs, slog.String("user_id", rc.Session.UserID))
	}
	a.sessions.Logout(r.Context(), rc)
	clearSessionCookie(w, r)
	a.audit.log(AuditLogout, r, attrs...)
	redirectWithFlash(w, r, "/", flash{Notice: auth.NoticeLoggedOut})
}
