package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Aminu222/tradelink-sub000/internal/client"
	"github.com/Aminu222/tradelink-sub000/internal/domain"
	"github.com/Aminu222/tradelink-sub000/internal/pricing"
	"github.com/Aminu222/tradelink-sub000/internal/service"
)

type CartHandler struct {
	stores  *service.Stores
	policy  *pricing.Policy
	timeout time.Duration
}

func NewCartHandler(stores *service.Stores, policy *pricing.Policy, timeout time.Duration) *CartHandler {
	return &CartHandler{
		stores:  stores,
		policy:  policy,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID        int64  `json:"product_id"`
	Name             string `json:"name"`
	PriceUnit        string `json:"price_unit"`
	UnitPrice        string `json:"unit_price"`
	Currency         string `json:"currency"`
	Quantity         int    `json:"quantity"`
	MinOrderQuantity int    `json:"min_order_quantity"`
	Image            string `json:"image"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	SessionID string                `json:"session_id"`
	Items     []domain.CartLineItem `json:"items"`
	Subtotal  decimal.Decimal       `json:"subtotal"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	// Parse request body
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// Validate request
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || unitPrice.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_unit_price", "unit_price must be a non-negative decimal")
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.policy.Currency()
	}

	store := h.stores.ForSession(sessionID)
	errAdd := store.AddItem(ctx, domain.CartLineItem{
		ProductID:        req.ProductID,
		Name:             req.Name,
		PriceUnit:        req.PriceUnit,
		UnitPrice:        unitPrice,
		Currency:         currency,
		Quantity:         req.Quantity,
		MinOrderQuantity: req.MinOrderQuantity,
		Image:            req.Image,
	})
	if errAdd != nil {
		handleServiceError(w, errAdd)
		return
	}

	h.respondCart(w, ctx, store, http.StatusCreated)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	store := h.stores.ForSession(sessionID)
	h.respondCart(w, ctx, store, http.StatusOK)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	// Get product_id from URL path
	productIDStr := chi.URLParam(r, "product_id")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	// Parse request body
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	store := h.stores.ForSession(sessionID)
	if errUpdate := store.UpdateQuantity(ctx, productID, req.Quantity); errUpdate != nil {
		handleServiceError(w, errUpdate)
		return
	}

	h.respondCart(w, ctx, store, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	productIDStr := chi.URLParam(r, "product_id")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	store := h.stores.ForSession(sessionID)
	if errRemove := store.RemoveItem(ctx, productID); errRemove != nil {
		handleServiceError(w, errRemove)
		return
	}

	h.respondCart(w, ctx, store, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	store := h.stores.ForSession(sessionID)
	if errClear := store.Clear(ctx); errClear != nil {
		handleServiceError(w, errClear)
		return
	}

	h.respondCart(w, ctx, store, http.StatusOK)
}

// Quote prices the current cart for a shipping method without placing
// anything. This is the only place tax shows up before checkout.
func (h *CartHandler) Quote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	method, err := domain.ParseShippingMethod(r.URL.Query().Get("shipping_method"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_shipping_method", "shipping_method must be standard or express")
		return
	}

	store := h.stores.ForSession(sessionID)
	items, err := store.Items(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	priced, err := h.policy.Price(items, method)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, priced)
}

func (h *CartHandler) respondCart(w http.ResponseWriter, ctx context.Context, store *service.CartStore, status int) {
	items, err := store.Items(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	subtotal, err := h.policy.Subtotal(items)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, status, CartResponseDTO{
		SessionID: store.SessionID(),
		Items:     items,
		Subtotal:  subtotal,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: "",
	})
}

func handleServiceError(w http.ResponseWriter, err error) {
	var perr *service.PersistenceError
	var apiErr *client.APIError

	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, service.ErrBelowMinimumOrder):
		respondError(w, http.StatusBadRequest, "below_minimum_order", err.Error())
	case errors.Is(err, service.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrUnknownShippingMethod):
		respondError(w, http.StatusBadRequest, "invalid_shipping_method", err.Error())
	case errors.As(err, &perr):
		// in-memory cart mutation succeeded; only the durable write failed
		respondError(w, http.StatusInternalServerError, "persistence_error", err.Error())
	case errors.As(err, &apiErr), errors.Is(err, client.ErrRemote):
		respondError(w, http.StatusBadGateway, "remote_error", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
