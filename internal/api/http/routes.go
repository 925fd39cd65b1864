package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the HTTP router with configured routes, middleware, and
// handlers, plus health check and Prometheus metrics endpoints.
func NewRouter(service HarvestServiceI, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	h := NewHarvestHandler(service, logger)

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", h.StartBatch)
		r.Post("/{taskID}/cancel", h.CancelBatch)
	})

	r.Route("/papers", func(r chi.Router) {
		r.Get("/", h.ListPapers)
		r.Get("/search", h.SearchPapers)
		r.Get("/{docID}", h.GetPaper)
		r.Post("/{docID}/reset", h.ResetPaper)
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Get("/{taskID}", h.GetTask)
		r.Delete("/{taskID}", h.DeleteTask)
	})

	r.Get("/stats", h.GetStats)
	r.Post("/export", h.Export)
	r.Post("/import/legacy", h.ImportLegacy)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
