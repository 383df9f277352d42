package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/totalaud/agentcore/internal/api/handlers"
	"github.com/totalaud/agentcore/internal/api/middleware"
	"github.com/totalaud/agentcore/internal/config"
	"github.com/totalaud/agentcore/internal/store"
)

// NewRouter creates the HTTP router with the diagnostics API routes.
func NewRouter(cfg *config.Config, s store.Store, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.UserExtractor)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthHandler(s))
	r.Get("/version", versionHandler(cfg))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/loops", func(r chi.Router) {
			r.Get("/", h.ListLoops)
			r.Post("/", h.CreateLoop)
			r.Route("/{loopID}", func(r chi.Router) {
				r.Delete("/", h.DeleteLoop)
				r.Patch("/status", h.SetLoopStatus)
				r.Get("/events", h.ListLoopEvents)
			})
		})

		r.Get("/metrics", h.LoopMetrics)
		r.Get("/events", h.ListEvents)

		r.Route("/suggestions", func(r chi.Router) {
			r.Get("/", h.ListSuggestions)
			r.Post("/{suggestionID}/accept", h.AcceptSuggestion)
			r.Post("/{suggestionID}/decline", h.DeclineSuggestion)
		})

		r.Route("/profiles/{persona}", func(r chi.Router) {
			r.Get("/", h.GetProfile)
			r.Post("/reset", h.ResetProfile)
			r.Get("/records", h.ListEvolutionRecords)
		})

		r.Get("/sessions/{sessionID}/messages", h.ListSessionMessages)
		r.Get("/memories", h.ListMemories)
	})

	return r
}

func healthHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": "agentcore",
		})
	}
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "agentcore",
		})
	}
}
