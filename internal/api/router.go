/**
 * @description
 * This file sets up the HTTP router for the service using the chi library.
 * It wires the public endpoints (health, metrics) and the authenticated
 * /api/v1 surface, and attaches the standard middleware stack: request
 * logging, panic recovery, a request timeout, CORS and per-request metrics.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: The HTTP router.
 * - github.com/go-chi/cors: CORS middleware for the panel frontend.
 * - github.com/prometheus/client_golang: Metrics exposition.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/painelpro/reseller-service/internal/metrics"
)

// NewRouter creates the chi router with all middleware and routes configured.
func NewRouter(handlers *Handlers, jwtSecret string, allowedOrigins []string, recorder metrics.Recorder, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(requestMetrics(recorder))

	// Health check endpoint for load balancers and orchestrators.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	// All business routes require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/accounts", handlers.HandleCreateAccount)
			r.Get("/accounts", handlers.HandleListAccounts)
			r.Get("/accounts/{accountID}", handlers.HandleGetAccount)
			r.Patch("/accounts/{accountID}", handlers.HandleUpdateAccount)
			r.Delete("/accounts/{accountID}", handlers.HandleDeleteAccount)
			r.Post("/accounts/{accountID}/renew", handlers.HandleRenewAccount)
			r.Post("/accounts/{accountID}/reassign", handlers.HandleReassignCreator)

			r.Get("/balance", handlers.HandleGetOwnBalance)
			r.Get("/accounts/{accountID}/balance", handlers.HandleGetBalance)
			r.Put("/accounts/{accountID}/balance", handlers.HandleCorrectBalance)
			r.Get("/accounts/{accountID}/transactions", handlers.HandleListTransactions)
			r.Post("/credits/transfer", handlers.HandleTransferCredit)
			r.Post("/credits/unlimited", handlers.HandleSetUnlimited)

			r.Get("/integration", handlers.HandleGetIntegration)
			r.Put("/integration", handlers.HandleUpdateIntegration)
			r.Get("/lifecycle-events", handlers.HandleListLifecycleEvents)
		})
	})

	return r
}

// requestMetrics counts every request by method and response status.
func requestMetrics(recorder metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			recorder.RecordHTTPRequest(r.Method, ww.Status())
		})
	}
}
