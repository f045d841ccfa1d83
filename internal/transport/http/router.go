// Package httptransport assembles the HTTP surface: middleware stack, session
// routes, admin routes, health checks, and metrics.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attest/internal/platform/health"
	"attest/internal/platform/middleware"
	sessionhandler "attest/internal/session/handler"
)

// Config carries everything the router mounts.
type Config struct {
	Sessions       *sessionhandler.Handler
	Health         *health.Handler
	AdminJWTSecret string
	RequestTimeout time.Duration
}

// NewRouter wires all endpoints with the standard middleware stack.
func NewRouter(cfg Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.ContentTypeJSON)

	cfg.Sessions.Register(r)

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(middleware.RequireAdmin(cfg.AdminJWTSecret, logger))
		cfg.Sessions.RegisterAdmin(admin)
	})

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	return r
}
