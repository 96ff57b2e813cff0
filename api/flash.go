package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"
)

const (
	flashCookieName = "doorman_flash"
	flashMaxAge     = 60
)

// flash carries a one-shot message across a redirect.
type flash struct {
	Notice string `json:"notice,omitempty"`
	Alert  string `json:"alert,omitempty"`
}

func setFlash(w http.ResponseWriter, r *http.Request, f flash) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   flashMaxAge,
	})
}

// takeFlash reads and clears the pending flash, if any.
func takeFlash(w http.ResponseWriter, r *http.Request) flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return flash{}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return flash{}
	}
	var f flash
	if err := json.Unmarshal(data, &f); err != nil {
		return flash{}
	}
	return f
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, location string, f flash) {
	setFlash(w, r, f)
	http.Redirect(w, r, location, http.StatusSeeOther)
}
