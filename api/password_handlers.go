package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/doorman/auth"
	"github.com/jmcleod/doorman/web"
)

// ResetTokenGate resolves the {token} path parameter before the edit and
// update handlers run. An invalid or expired token redirects to the request
// form and the guarded handler never runs.
func (a *API) ResetTokenGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := requestContextFrom(r)
		if _, err := a.reset.ResolveTokenGate(r.Context(), rc, chi.URLParam(r, "token")); err != nil {
			a.audit.logFailure(AuditPasswordResetInvalidToken, r, err.Error())
			redirectWithFlash(w, r, "/passwords/new", flash{Alert: auth.AlertInvalidResetToken})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewPassword handles GET /passwords/new.
func (a *API) NewPassword(w http.ResponseWriter, r *http.Request) {
	d := a.pageData(w, r)
	d.Title = "Forgot password"
	a.pages.Render(w, http.StatusOK, web.PageResetRequest, d)
}

// CreatePassword handles POST /passwords.
func (a *API) CreatePassword(w http.ResponseWriter, r *http.Request) {
	notice := a.reset.RequestReset(r.Context(), r.PostFormValue("email"))
	a.audit.log(AuditPasswordResetRequested, r)
	redirectWithFlash(w, r, "/", flash{Notice: notice})
}

// EditPassword handles GET /passwords/{token}/edit.
func (a *API) EditPassword(w http.ResponseWriter, r *http.Request) {
	a.renderEdit(w, r, http.StatusOK, nil)
}

// UpdatePassword handles PUT, PATCH and POST /passwords/{token}.
func (a *API) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	rc := requestContextFrom(r)
	userID := rc.ResetUser.ID
	err := a.reset.SubmitUpdate(r.Context(), rc, r.PostFormValue("password"), r.PostFormValue("password_confirmation"))

	var verrs auth.ValidationErrors
	switch {
	case err == nil:
		a.audit.logUser(AuditPasswordUpdated, r, userID)
		redirectWithFlash(w, r, "/session/new", flash{Notice: auth.NoticePasswordUpdated})
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		a.audit.logFailure(AuditPasswordResetInvalidToken, r, "token spent by a concurrent update", slog.String("user_id", userID))
		redirectWithFlash(w, r, "/passwords/new", flash{Alert: auth.AlertInvalidResetToken})
	case errors.As(err, &verrs):
		a.audit.logUser(AuditPasswordUpdateRejected, r, userID)
		a.renderEdit(w, r, http.StatusUnprocessableEntity, verrs.ByField())
	default:
		a.renderInternalError(w, r, "password update failed", err)
	}
}

func (a *API) renderEdit(w http.ResponseWriter, r *http.Request, status int, fieldErrors map[string][]string) {
	d := a.pageData(w, r)
	d.Title = "Update password"
	d.Token = chi.URLParam(r, "token")
	d.FieldErrors = fieldErrors
	a.pages.Render(w, status, web.PageResetEdit, d)
}
