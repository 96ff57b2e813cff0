package api

import (
	"encoding/json"
	"net/http"

	"github.com/jmcleod/doorman/web"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// renderInternalError logs err and renders the generic error page.
func (a *API) renderInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.logger.ErrorContext(r.Context(), msg, "error", err, "path", r.URL.Path)
	a.pages.Render(w, http.StatusInternalServerError, web.PageError, a.pageData(w, r))
}
