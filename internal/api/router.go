package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/api/middleware"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/engine"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/handlers"
	"github.com/hsafari99/generic-multi-agent-orchestrator-sub000/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, e *engine.Engine, st store.Store, cache store.Cache) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(e, st, cache, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Post("/messages", h.SendMessage)
	r.Get("/messages/{id}", h.GetMessage)

	r.Get("/peers", h.ListPeers)
	r.Get("/peers/{id}", h.GetPeer)

	r.Get("/security/metrics", h.SecurityMetricsHandler)
	r.Get("/security/events", h.SecurityEventsHandler)

	return r
}
