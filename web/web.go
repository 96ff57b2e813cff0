// Package web renders the HTML forms and serves the embedded static assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html static/*
var content embed.FS

// Page names.
const (
	PageHome         = "home"
	PageLogin        = "session_new"
	PageResetRequest = "password_new"
	PageResetEdit    = "password_edit"
	PageError        = "error"
)

var pages = []string{PageHome, PageLogin, PageResetRequest, PageResetEdit, PageError}

// PageData is the view model shared by every page.
type PageData struct {
	Title        string
	Notice       string
	Alert        string
	CSRFToken    string
	CurrentEmail string
	Email        string
	Token        string
	FieldErrors  map[string][]string
}

// Errors returns the messages for a form field.
func (d PageData) Errors(field string) []string {
	return d.FieldErrors[field]
}

// Renderer executes the embedded page templates.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger for template failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// NewRenderer parses every page against the shared layout.
func NewRenderer(opts ...Option) (*Renderer, error) {
	r := &Renderer{
		pages:  make(map[string]*template.Template, len(pages)),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, name := range pages {
		t, err := template.ParseFS(content, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes page with the given status. The page is rendered into a
// buffer first so a template error never produces a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data PageData) {
	t, ok := r.pages[page]
	if !ok {
		r.logger.Error("unknown page", "page", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("rendering page failed", "page", page, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// StaticHandler serves the embedded stylesheet and other assets. Mount it
// with http.StripPrefix("/static/", ...).
func StaticHandler() (http.Handler, error) {
	fsys, err := fs.Sub(content, "static")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}
	return http.FileServer(http.FS(fsys)), nil
}
