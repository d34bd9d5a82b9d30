package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aminu222/tradelink-sub000/internal/assembler"
	"github.com/Aminu222/tradelink-sub000/internal/client"
	"github.com/Aminu222/tradelink-sub000/internal/domain"
	"github.com/Aminu222/tradelink-sub000/internal/service"
)

type CheckoutHandler struct {
	assembler *assembler.Assembler
	stores    *service.Stores
	log       *zap.Logger
	timeout   time.Duration
}

func NewCheckoutHandler(asm *assembler.Assembler, stores *service.Stores, log *zap.Logger, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		assembler: asm,
		stores:    stores,
		log:       log,
		timeout:   timeout,
	}
}

type CheckoutRequestDTO struct {
	ShippingAddress     string `json:"shipping_address"`
	ShippingCity        string `json:"shipping_city"`
	ShippingMethod      string `json:"shipping_method"`
	PaymentMethod       string `json:"payment_method"`
	SpecialInstructions string `json:"special_instructions"`
	// Optional client-chosen key; resubmitting a failed checkout with the
	// same key will not duplicate order lines that were already created.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type BuyNowRequestDTO struct {
	CheckoutRequestDTO
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type CheckoutResponseDTO struct {
	CheckoutID    string             `json:"checkout_id"`
	Status        string             `json:"status"`
	PaymentStatus string             `json:"payment_status"`
	Priced        *domain.PricedCart `json:"priced"`
	Orders        []client.Order     `json:"orders"`
}

type ConfirmPaymentRequestDTO struct {
	TransactionID string `json:"payment_transaction_id"`
}

// Checkout places one order per cart line and clears the cart on success.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	info, payment, ok := h.parseCheckout(w, req)
	if !ok {
		return
	}

	store := h.stores.ForSession(sessionID)
	items, err := store.Items(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	chk, err := h.assembler.PlaceOrder(ctx, sessionID, items, info, payment, req.IdempotencyKey)
	if err != nil {
		handleCheckoutError(w, chk, err)
		return
	}

	// the guest cart is spent once the orders exist
	if errClear := store.Clear(ctx); errClear != nil {
		h.log.Warn("cart not cleared after checkout", zap.String("session_id", sessionID), zap.Error(errClear))
	}

	respondJSON(w, http.StatusCreated, checkoutResponse(chk))
}

// BuyNow skips the cart and orders a single product directly.
func (h *CheckoutHandler) BuyNow(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req BuyNowRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
		return
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || unitPrice.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_unit_price", "unit_price must be a non-negative decimal")
		return
	}

	info, payment, ok := h.parseCheckout(w, req.CheckoutRequestDTO)
	if !ok {
		return
	}

	item := domain.CartLineItem{
		ProductID: req.ProductID,
		Name:      req.Name,
		UnitPrice: unitPrice,
		Quantity:  req.Quantity,
	}

	chk, err := h.assembler.PlaceSingleItem(ctx, sessionID, item, info, payment, req.IdempotencyKey)
	if err != nil {
		handleCheckoutError(w, chk, err)
		return
	}

	respondJSON(w, http.StatusCreated, checkoutResponse(chk))
}

// ConfirmPayment attaches an out-of-band bank transfer confirmation.
func (h *CheckoutHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkout_id")

	var req ConfirmPaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.TransactionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "payment_transaction_id is required")
		return
	}

	if err := h.assembler.AttachPaymentResult(checkoutID, req.TransactionID, time.Now()); err != nil {
		switch {
		case errors.Is(err, assembler.ErrCheckoutNotFound):
			respondError(w, http.StatusNotFound, "not_found", err.Error())
		case errors.Is(err, assembler.ErrIllegalTransition):
			respondError(w, http.StatusConflict, "illegal_transition", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	chk, err := h.assembler.Checkout(checkoutID)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, checkoutResponse(chk))
}

func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkout_id")

	chk, err := h.assembler.Checkout(checkoutID)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, checkoutResponse(chk))
}

func (h *CheckoutHandler) parseCheckout(w http.ResponseWriter, req CheckoutRequestDTO) (assembler.ShippingInfo, assembler.PaymentMethod, bool) {
	method, err := domain.ParseShippingMethod(req.ShippingMethod)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_shipping_method", "shipping_method must be standard or express")
		return assembler.ShippingInfo{}, "", false
	}

	payment, err := assembler.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payment_method", "payment_method must be card or bank_transfer")
		return assembler.ShippingInfo{}, "", false
	}

	return assembler.ShippingInfo{
		Address:             req.ShippingAddress,
		City:                req.ShippingCity,
		Method:              method,
		SpecialInstructions: req.SpecialInstructions,
	}, payment, true
}

func checkoutResponse(chk *assembler.Checkout) CheckoutResponseDTO {
	return CheckoutResponseDTO{
		CheckoutID:    chk.ID,
		Status:        chk.Status().String(),
		PaymentStatus: chk.PaymentStatus(),
		Priced:        chk.Priced(),
		Orders:        chk.Orders(),
	}
}

func handleCheckoutError(w http.ResponseWriter, chk *assembler.Checkout, err error) {
	var apiErr *client.APIError

	switch {
	case errors.Is(err, assembler.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, assembler.ErrMissingShippingAddress),
		errors.Is(err, assembler.ErrMissingShippingCity):
		respondError(w, http.StatusBadRequest, "invalid_shipping", err.Error())
	case errors.Is(err, domain.ErrUnknownShippingMethod):
		respondError(w, http.StatusBadRequest, "invalid_shipping_method", err.Error())
	case errors.Is(err, assembler.ErrUnknownPaymentMethod):
		respondError(w, http.StatusBadRequest, "invalid_payment_method", err.Error())
	case errors.As(err, &apiErr), errors.Is(err, client.ErrRemote):
		// some orders may exist server-side; the checkout id lets the
		// caller inspect what was created
		resp := ErrorResponse{Error: err.Error(), Code: "order_placement_failed"}
		if chk != nil {
			resp.Details = chk.ID
		}
		respondJSON(w, http.StatusBadGateway, resp)
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
