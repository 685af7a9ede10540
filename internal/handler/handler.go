// Package handler exposes the checkout and admin HTTP surface. Request and
// response bodies are encoded with jx; errors map onto the taxonomy the
// storefront expects: field-scoped validation errors, retryable payment
// errors, and a "contact support" persistence error.
package handler

import (
	"net/http"

	"github.com/lumeshop/storefront-api/internal/domain/auth"
	"github.com/lumeshop/storefront-api/internal/domain/checkout"
	"github.com/lumeshop/storefront-api/internal/domain/order"
	"github.com/lumeshop/storefront-api/internal/domain/promo"
)

// Handler holds the domain dependencies for the HTTP surface.
type Handler struct {
	checkout *checkout.Service
	promos   promo.Validator
	orders   order.Repository
	security *Security
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	checkoutSvc *checkout.Service,
	promos promo.Validator,
	orders order.Repository,
	apikeys auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		checkout: checkoutSvc,
		promos:   promos,
		orders:   orders,
		security: NewSecurity(apikeys, pepper),
	}
}

// Register mounts all API routes on the given mux. Admin routes go through
// API key authentication.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/order", h.PlaceOrder)
	mux.HandleFunc("POST /api/payment/intent", h.CreatePaymentIntent)
	mux.HandleFunc("POST /api/promo/apply", h.ApplyPromo)

	mux.Handle("GET /api/orders/{id}", h.security.Require(http.HandlerFunc(h.GetOrder)))
	mux.Handle("PATCH /api/orders/{id}/status", h.security.Require(http.HandlerFunc(h.UpdateOrderStatus)))
}
