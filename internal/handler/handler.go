// Package handler exposes the HTTP API: catalog browsing, checkout, order
// lifecycle, and coupon administration. Handlers decode requests, delegate to
// the domain layer, and map domain errors to JSON error responses.
package handler

import (
	"time"

	"github.com/go-chi/chi/v5"

	"storefront-api/internal/domain/auth"
	"storefront-api/internal/domain/catalog"
	"storefront-api/internal/domain/coupon"
	"storefront-api/internal/domain/order"
	"storefront-api/internal/domain/pricing"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product
	// responses. When empty, paths are returned as stored.
	ImageBaseURL string
}

// Handler carries the domain dependencies shared by all HTTP handlers.
type Handler struct {
	products     catalog.Repository
	coupons      coupon.Repository
	orders       *order.Service
	engine       *pricing.Engine
	imageBaseURL string
	now          func() time.Time
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products catalog.Repository,
	coupons coupon.Repository,
	orders *order.Service,
	engine *pricing.Engine,
) *Handler {
	return &Handler{
		products:     products,
		coupons:      coupons,
		orders:       orders,
		engine:       engine,
		imageBaseURL: cfg.ImageBaseURL,
		now:          time.Now,
	}
}

// Routes builds the API router. Public endpoints: catalog, guest checkout,
// coupon dry-run validation. Everything else requires an API key; order
// status changes and coupon administration additionally require the admin
// scope.
func (h *Handler) Routes(sec *Security) chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Post("/coupons/validate", h.ValidateCoupon)
		r.Post("/guest-orders", h.PlaceGuestOrder)

		r.Group(func(r chi.Router) {
			r.Use(sec.Authenticate)

			r.With(sec.RequireScope(auth.ScopePlaceOrder)).Post("/orders", h.PlaceOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Put("/orders/{id}/cancel", h.CancelOrder)
			r.With(sec.RequireScope(auth.ScopeAdmin)).Put("/orders/{id}/status", h.UpdateOrderStatus)

			r.Route("/admin/coupons", func(r chi.Router) {
				r.Use(sec.RequireScope(auth.ScopeAdmin))
				r.Get("/", h.ListCoupons)
				r.Post("/", h.CreateCoupon)
				r.Put("/{code}", h.UpdateCoupon)
				r.Delete("/{code}", h.DeleteCoupon)
			})
		})
	})

	return r
}
