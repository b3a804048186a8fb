package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes wires the full HTTP surface. Tracking endpoints stay at the
// root so the URLs embedded in email bodies are short; everything else
// lives under /api.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://brightpath.io", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	// Endpoints referenced from rendered email HTML.
	r.Get("/track/open/{token}.png", h.TrackOpen)
	r.Get("/track/click/{token}", h.TrackClick)
	r.Get("/unsubscribe", h.UnsubscribeLanding)

	r.Route("/api", func(r chi.Router) {
		r.Post("/preferences", h.SetPreference)
		r.Post("/preferences/unsubscribe", h.Unsubscribe)
		r.Get("/preferences/{email}", h.GetPreferences)
		r.Get("/analytics", h.GetAnalytics)
		r.Get("/deliveries/{token}", h.GetDelivery)
	})

	return r
}

// SetupTrackingRoutes wires only the endpoints rendered into email bodies.
// The standalone tracking binary serves these so pixel and click traffic
// can scale separately from the management API.
func SetupTrackingRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", h.HealthCheck)
	r.Get("/track/open/{token}.png", h.TrackOpen)
	r.Get("/track/click/{token}", h.TrackClick)
	r.Get("/unsubscribe", h.UnsubscribeLanding)

	return r
}
