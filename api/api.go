// Package api serves the login, logout and password reset pages.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/doorman/auth"
	"github.com/jmcleod/doorman/web"
)

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	sessions *auth.SessionManager
	reset    *auth.PasswordReset
	pages    *web.Renderer
	logger   *slog.Logger
	audit    *auditLogger
	health   func(ctx context.Context) error
	alertFn  AlertFunc
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithHealthCheck sets the probe run by GET /health, typically a storage ping.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(a *API) {
		a.health = fn
	}
}

// WithAlertFunc enables anomaly alerts for login failure and reset request spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance.
func New(sessions *auth.SessionManager, reset *auth.PasswordReset, pages *web.Renderer, opts ...Option) *API {
	a := &API{
		sessions: sessions,
		reset:    reset,
		pages:    pages,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.audit = newAuditLogger(a.logger)
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	return a
}

// Router returns a chi.Router with all routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(MethodOverride)

	r.Get("/health", a.Health)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/api/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/docs",
	}, nil))
	r.Handle("/api/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/redoc",
	}, nil))

	if static, err := web.StaticHandler(); err == nil {
		r.Handle("/static/*", http.StripPrefix("/static/", static))
	}

	r.Group(func(r chi.Router) {
		r.Use(a.LoadSession)
		r.Use(a.CSRFMiddleware)

		r.Get("/", a.Home)

		r.Get("/session/new", a.NewSession)
		r.Post("/session", a.CreateSession)
		r.Delete("/session", a.DestroySession)
		r.Post("/session/logout", a.DestroySession)

		r.Get("/passwords/new", a.NewPassword)
		r.Post("/passwords", a.CreatePassword)
		r.Route("/passwords/{token}", func(r chi.Router) {
			r.Use(a.ResetTokenGate)
			r.Get("/edit", a.EditPassword)
			r.Put("/", a.UpdatePassword)
			r.Patch("/", a.UpdatePassword)
			r.Post("/", a.UpdatePassword)
		})
	})

	return r
}

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(r.Context()); err != nil {
			a.logger.ErrorContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
