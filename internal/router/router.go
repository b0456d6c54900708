package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sakatoku/sakarctic/internal/api/trip"
)

// Config contains dependencies needed for the router setup
type Config struct {
	TripHandler *trip.TripHandler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (like logger, requestID, recoverer) are expected
// to be applied *before* mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong")) //nolint:errcheck
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/trip", func(r chi.Router) {
			r.Post("/sessions", cfg.TripHandler.CreateSession)
			r.Post("/sessions/{sessionID}/messages", cfg.TripHandler.PostMessage)
			r.Post("/sessions/{sessionID}/plan", cfg.TripHandler.BuildPlan)
		})
	})

	return r
}
