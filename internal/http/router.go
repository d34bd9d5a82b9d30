package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter wires the cart and checkout surface with the standard
// middleware chain.
func NewRouter(cart *CartHandler, checkout *CheckoutHandler, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(SessionMiddleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cart.GetCart)
			r.Delete("/", cart.ClearCart)
			r.Get("/quote", cart.Quote)
			r.Post("/items", cart.AddItem)
			r.Put("/items/{product_id}", cart.UpdateQuantity)
			r.Delete("/items/{product_id}", cart.RemoveItem)
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkout.Checkout)
			r.Post("/buy-now", checkout.BuyNow)
			r.Get("/{checkout_id}", checkout.GetCheckout)
			r.Post("/{checkout_id}/payment", checkout.ConfirmPayment)
		})
	})

	return otelhttp.NewHandler(r, "checkout-api")
}
