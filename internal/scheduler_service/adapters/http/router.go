package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the admin API: unauthenticated /healthz and /metrics, and the
// operator routes under /api/v1 behind AdminAuthMiddleware.
func NewRouter(operator Operator, auth AuthConfig, logger *slog.Logger) http.Handler {
	h := NewAdminHandler(operator, logger, validator.New())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(auth, logger))
		r.Get("/records/{id}", h.GetRecord)
		r.Post("/records/{id}/reschedule", h.RescheduleRecord)
		r.Post("/records/{id}/skip", h.SkipRecord)
		r.Get("/campaigns/{id}", h.GetCampaign)
		r.Put("/campaigns/{id}/status", h.SetCampaignStatus)
	})
	return r
}
