// Package api exposes the spoilage engine over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stocksense/stocksense/internal/services/alerts"
	"github.com/stocksense/stocksense/internal/services/batch"
	"github.com/stocksense/stocksense/internal/services/factors"
	"github.com/stocksense/stocksense/internal/services/risk"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Services bundles what the handlers call into.
type Services struct {
	Health  HealthChecker
	Risk    *risk.Service
	Factors *factors.Service
	Alerts  *alerts.Service
	Batch   *batch.Service
}

// Handler serves the HTTP API.
type Handler struct {
	svc    Services
	logger *slog.Logger
}

// NewRouter builds the chi router with middleware and every route.
func NewRouter(svc Services, requestTimeout time.Duration, logger *slog.Logger) http.Handler {
	h := &Handler{svc: svc, logger: logger.With("component", "api")}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(h.logger))
	router.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		router.Use(middleware.Timeout(requestTimeout))
	}

	router.Get("/healthz", h.health)

	router.Route("/spoilage", func(r chi.Router) {
		r.Get("/risks", h.listRisks)
		r.Get("/risks/{productId}", h.getRisk)
		r.Get("/risks/{productId}/history", h.riskHistory)
		r.Get("/predictions", h.listPredictions)
		r.Get("/summary", h.tierSummary)
	})

	router.Route("/storage-conditions/{productId}", func(r chi.Router) {
		r.Get("/", h.currentFactors)
		r.Put("/", h.updateFactors)
		r.Get("/history", h.factorHistory)
	})

	router.Route("/critical-alerts", func(r chi.Router) {
		r.Get("/", h.listAlerts)
		r.Post("/", h.createAlert)
		r.Get("/{id}", h.getAlert)
		r.Put("/{id}/resolve", h.resolveAlert)
	})

	router.Route("/batch-jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Post("/", h.createJob)
		r.Get("/{id}", h.getJob)
		r.Post("/{id}/start", h.startJob)
		r.Post("/{id}/cancel", h.cancelJob)
	})

	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health.HealthCheck(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "stocksense"})
}
