/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the desktop frontend

ROUTE GROUPS:
  /api/assets/*     Catalog and ledger counters
  /api/waybills/*   Document lifecycle and returns
  /api/checkouts/*  Quick checkouts
  /api/catalog/*    Low stock and valuation reports
  /api/admin/*      Maintenance operations
  /api/scenarios/*  Demo scenarios (dev only)

SECURITY NOTE:
  No authentication middleware. The engine fronts a trusted warehouse LAN.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Asset routes
		r.Route("/assets", func(r chi.Router) {
			r.Get("/", h.ListAssets)
			r.Post("/", h.RegisterAsset)
			r.Get("/{id}", h.GetAsset)
			r.Post("/{id}/restock", h.RestockAsset)
			r.Put("/{id}/threshold", h.UpdateThreshold)
			r.Get("/{id}/movements", h.GetMovements)
		})

		// Waybill routes
		r.Route("/waybills", func(r chi.Router) {
			r.Get("/", h.ListWaybills)
			r.Post("/", h.CreateWaybill)
			r.Get("/{id}", h.GetWaybill)
			r.Put("/{id}", h.EditWaybill)
			r.Delete("/{id}", h.DeleteWaybill)
			r.Post("/{id}/send", h.SendWaybill)
			r.Post("/{id}/returns", h.ProcessReturn)
			r.Get("/{id}/returns", h.ListReturnBills)
			r.Post("/{id}/return-all", h.ReturnAll)
		})

		// Checkout routes
		r.Route("/checkouts", func(r chi.Router) {
			r.Get("/", h.ListCheckouts)
			r.Post("/", h.CreateCheckout)
			r.Get("/overdue", h.ListOverdueCheckouts)
			r.Get("/{id}", h.GetCheckout)
			r.Post("/{id}/return", h.ReturnCheckout)
		})

		// Catalog reports
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/low-stock", h.ListLowStock)
			r.Get("/valuation", h.GetValuation)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/recompute", h.Recompute)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
