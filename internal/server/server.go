// Package server exposes the admin HTTP surface available while a sweep
// runs: an unauthenticated /healthz and a bearer-token-protected
// /metrics, the chi equivalent of the teacher's
// authMiddleware+http.HandleFunc pair in worker/main.go, re-expressed
// with go-chi/chi/v5 routing the way AntTheLimey-imagineer's
// internal/api/router.go wires its own handlers.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobpipeline/internal/metrics"
)

// New builds the admin router. bearerToken protects /metrics only;
// /healthz stays open so an external liveness probe needs no secret.
// An empty bearerToken disables auth entirely (local/dev runs).
func New(collector *metrics.Collector, bearerToken string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(bearerToken))
		r.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	})

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// bearerAuth mirrors worker/main.go's authMiddleware shape (compare the
// Authorization header against a configured bearer token) but with a
// constant-time comparison, and is a no-op when token is empty.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		expected := "Bearer " + token
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
