package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samfeast/RLI-RLIS-v2/internal/observability/attr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Router serves the operational endpoints: metrics, health and a read-only
// view of the reconciliation queue.
func (app *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(app.Observability.Registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", app.handleHealth)
	r.Get("/queue", app.handleQueue)
	return r
}

func (app *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := app.Modules.ReplaysModule.HealthCheck(r.Context()); err != nil {
		app.Observability.Logger.WarnContext(r.Context(), "Health check failed", attr.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (app *App) handleQueue(w http.ResponseWriter, r *http.Request) {
	jobs, err := app.Modules.ReplaysModule.ReplayService.ListQueue(r.Context())
	if err != nil {
		app.Observability.Logger.ErrorContext(r.Context(), "Failed to list queue", attr.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list queue"})
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
