/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests from the backend pages, so a
                 companion script running there can post to /api/observe

ROUTE GROUPS:
  /api/orders/*         Tracked orders and forced checks
  /api/observe          Credential capture
  /api/auth             Captured credential status
  /api/notifications    Notification log
  /api/scheduler        Periodic pass status

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins are the local UI and the two backend hosts.
var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"http://localhost:8080",
	"https://prod-agent.castorama.fr",
	"https://dc.kfplc.com",
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.AddOrder)
			r.Get("/{number}", h.GetOrder)
			r.Delete("/{number}", h.DeleteOrder)
			r.Post("/{number}/check", h.CheckOrder)
		})

		r.Post("/observe", h.Observe)
		r.Get("/auth", h.GetAuthStatus)
		r.Get("/notifications", h.ListNotifications)
		r.Get("/scheduler", h.GetSchedulerStatus)
	})

	return r
}
