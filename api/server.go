/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontends
  5. RateLimit:  Per-client-IP request budget (ulule/limiter, in memory)

ROUTE GROUPS:
  /api/tree-types/*     Tree type registry
  /api/locations/*      Storage locations
  /api/stock/*          Lots and transfers
  /api/inventory        Inventory view
  /api/sales            Sales and history
  /healthz              Liveness probe (not rate limited)

SEE ALSO:
  - handlers.go: Handler implementations
  - cli/serve.go: Server startup
*/
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Options configures the router middleware.
type Options struct {
	// AllowedOrigins for CORS. Empty = any origin.
	AllowedOrigins []string

	// RateLimit in limiter format ("100-M" = 100 requests per minute).
	// Empty disables rate limiting.
	RateLimit string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) (*chi.Mux, error) {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	var limit func(http.Handler) http.Handler
	if opts.RateLimit != "" {
		mw, err := rateLimiter(opts.RateLimit)
		if err != nil {
			return nil, err
		}
		limit = mw
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}

		r.Route("/tree-types", func(r chi.Router) {
			r.Get("/", h.ListTreeTypes)
			r.Post("/", h.CreateTreeType)
			r.Get("/{id}", h.GetTreeType)
		})

		r.Route("/locations", func(r chi.Router) {
			r.Get("/", h.ListLocations)
			r.Post("/", h.CreateLocation)
			r.Get("/{id}", h.GetLocation)
		})

		r.Route("/stock", func(r chi.Router) {
			r.Post("/", h.AddStock)
			r.Get("/{id}", h.GetStock)
			r.Post("/{id}/move", h.MoveStock)
		})

		r.Get("/inventory", h.Inventory)

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.SalesHistory)
			r.Post("/", h.RecordSale)
		})
	})

	return r, nil
}

// rateLimiter builds an in-memory per-IP limiter middleware.
func rateLimiter(formatted string) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", formatted, err)
	}

	instance := limiter.New(memory.NewStore(), rate)
	return stdlib.NewMiddleware(instance).Handler, nil
}
