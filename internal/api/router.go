package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/wonny/fluxscan/internal/api/handlers"
	"github.com/wonny/fluxscan/internal/metrics"
	"github.com/wonny/fluxscan/pkg/logger"
)

// HealthFunc reports the health of a dependency.
type HealthFunc func(ctx context.Context) error

// Handlers groups everything the router mounts.
type Handlers struct {
	Scanners   *handlers.ScannerHandler
	Watchlists *handlers.WatchlistHandler
	Scans      *handlers.ScanHandler
	Schedules  *handlers.ScheduleHandler
	Stream     http.Handler
	Health     map[string]HealthFunc
}

// RouterOptions configures cross-cutting router behaviour.
type RouterOptions struct {
	CORSOrigins    []string
	MetricsEnabled bool
}

// NewRouter creates and configures the HTTP router
func NewRouter(h Handlers, opts RouterOptions, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler(h.Health)).Methods(http.MethodGet)
	if opts.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	if h.Stream != nil {
		r.Handle("/ws", h.Stream).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()

	if s := h.Scanners; s != nil {
		api.HandleFunc("/scanners/validate", s.Validate).Methods(http.MethodPost)
		api.HandleFunc("/scanners/template", s.Template).Methods(http.MethodGet)
		api.HandleFunc("/scanners", s.List).Methods(http.MethodGet)
		api.HandleFunc("/scanners", s.Create).Methods(http.MethodPost)
		api.HandleFunc("/scanners/{id:[0-9]+}", s.Get).Methods(http.MethodGet)
		api.HandleFunc("/scanners/{id:[0-9]+}", s.Update).Methods(http.MethodPut)
		api.HandleFunc("/scanners/{id:[0-9]+}", s.Delete).Methods(http.MethodDelete)
		api.HandleFunc("/scanners/{id:[0-9]+}/clone", s.Clone).Methods(http.MethodPost)
		api.HandleFunc("/scanners/{id:[0-9]+}/test", s.Test).Methods(http.MethodPost)
		api.HandleFunc("/scanners/{id:[0-9]+}/stats", s.Stats).Methods(http.MethodGet)
	}

	if wl := h.Watchlists; wl != nil {
		api.HandleFunc("/watchlists", wl.List).Methods(http.MethodGet)
		api.HandleFunc("/watchlists", wl.Create).Methods(http.MethodPost)
		api.HandleFunc("/watchlists/import", wl.Import).Methods(http.MethodPost)
		api.HandleFunc("/watchlists/{id:[0-9]+}", wl.Get).Methods(http.MethodGet)
		api.HandleFunc("/watchlists/{id:[0-9]+}", wl.Delete).Methods(http.MethodDelete)
		api.HandleFunc("/watchlists/{id:[0-9]+}/symbols", wl.AddSymbols).Methods(http.MethodPost)
		api.HandleFunc("/watchlists/{id:[0-9]+}/symbols/{symbol}", wl.RemoveSymbol).Methods(http.MethodDelete)
	}

	if sc := h.Scans; sc != nil {
		api.HandleFunc("/scan", sc.Start).Methods(http.MethodPost)
		api.HandleFunc("/scan/{scanID}/status", sc.Status).Methods(http.MethodGet)
		api.HandleFunc("/scan/{scanID}/cancel", sc.Cancel).Methods(http.MethodPost)
		api.HandleFunc("/results", sc.Results).Methods(http.MethodGet)
		api.HandleFunc("/history", sc.History).Methods(http.MethodGet)
	}

	if sch := h.Schedules; sch != nil {
		api.HandleFunc("/schedules", sch.List).Methods(http.MethodGet)
		api.HandleFunc("/schedules", sch.Create).Methods(http.MethodPost)
		api.HandleFunc("/schedules/{id:[0-9]+}/toggle", sch.Toggle).Methods(http.MethodPost)
	}

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         3600,
	})
	return c.Handler(r)
}

// healthCheckHandler reports ok, or 503 with the failing dependencies.
func healthCheckHandler(checks map[string]HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		body := map[string]interface{}{
			"status":       "ok",
			"service":      "fluxscan-api",
			"dependencies": deps,
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]interface{}{
						"success": false,
						"error":   "Internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
