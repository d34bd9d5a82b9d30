package assembler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Aminu222/tradelink-sub000/internal/client"
	"github.com/Aminu222/tradelink-sub000/internal/domain"
	"github.com/Aminu222/tradelink-sub000/internal/money"
	"github.com/Aminu222/tradelink-sub000/internal/pricing"
	"github.com/Aminu222/tradelink-sub000/internal/publisher"
)

// PaymentGateway charges a card for the full checkout total and returns the
// gateway transaction id.
type PaymentGateway interface {
	Charge(ctx context.Context, checkoutID string, amount decimal.Decimal, currency string) (string, error)
}

// Assembler turns a priced cart into one order-creation call per line item
// against the external order API. Orders are submitted concurrently; the
// server treats each line independently, so no atomicity exists across
// lines. Any failed line fails the whole checkout even though earlier lines
// may already exist server-side.
type Assembler struct {
	orders  client.OrderAPI
	gateway PaymentGateway
	policy  *pricing.Policy
	events  publisher.EventPublisher
	log     *zap.Logger
	timeout time.Duration

	mu        sync.Mutex
	checkouts map[string]*Checkout
}

func NewAssembler(orders client.OrderAPI, gateway PaymentGateway, policy *pricing.Policy, events publisher.EventPublisher, log *zap.Logger, timeout time.Duration) *Assembler {
	return &Assembler{
		orders:    orders,
		gateway:   gateway,
		policy:    policy,
		events:    events,
		log:       log,
		timeout:   timeout,
		checkouts: make(map[string]*Checkout),
	}
}

func (a *Assembler) Checkout(checkoutID string) (*Checkout, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	chk, ok := a.checkouts[checkoutID]
	if !ok {
		return nil, ErrCheckoutNotFound
	}
	return chk, nil
}

// PlaceOrder runs one checkout attempt end to end: validate shipping, price
// the cart, charge the card if needed, then create one order per line item.
// idemKey scopes the per-line idempotency keys sent to the order API; a
// caller retrying a failed attempt should pass the same key so lines that
// were already created are not duplicated. An empty key gets a fresh one.
func (a *Assembler) PlaceOrder(ctx context.Context, sessionID string, items []domain.CartLineItem, info ShippingInfo, payment PaymentMethod, idemKey string) (*Checkout, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if err := validateShipping(info); err != nil {
		return nil, err
	}
	if payment != PaymentCard && payment != PaymentBankTransfer {
		return nil, ErrUnknownPaymentMethod
	}

	priced, err := a.policy.Price(items, info.Method)
	if err != nil {
		return nil, err
	}

	if idemKey == "" {
		idemKey = uuid.NewString()
	}

	chk := &Checkout{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		IdempotencyKey: idemKey,
		PaymentMethod:  payment,
		status:         domain.CheckoutStatusCollectingShipping,
		priced:         priced,
		paymentStatus:  PaymentStatusPending,
		createdAt:      time.Now(),
		updatedAt:      time.Now(),
	}
	a.mu.Lock()
	a.checkouts[chk.ID] = chk
	a.mu.Unlock()

	if err := chk.transition(domain.CheckoutStatusReadyToPay); err != nil {
		return chk, err
	}

	if payment == PaymentCard {
		if err := a.chargeCard(ctx, chk, priced); err != nil {
			return chk, err
		}
	} else {
		// bank transfer is confirmed out-of-band, no gateway round trip
		if err := chk.transition(domain.CheckoutStatusPlacingOrder); err != nil {
			return chk, err
		}
	}

	if err := a.submitOrders(ctx, chk, items, info); err != nil {
		if errFail := chk.transition(domain.CheckoutStatusOrderFailed); errFail != nil {
			a.log.Error("failed to mark checkout as failed", zap.String("checkout_id", chk.ID), zap.Error(errFail))
		}
		a.log.Error("order placement failed",
			zap.String("checkout_id", chk.ID),
			zap.Int("orders_created", len(chk.Orders())),
			zap.Error(err))
		return chk, err
	}

	if err := chk.transition(domain.CheckoutStatusOrderPlaced); err != nil {
		return chk, err
	}

	a.publishOrderPlaced(ctx, chk, items, priced)

	next := domain.CheckoutStatusComplete
	if payment == PaymentBankTransfer {
		next = domain.CheckoutStatusAwaitingBankConfirmation
	}
	if err := chk.transition(next); err != nil {
		return chk, err
	}

	return chk, nil
}

// PlaceSingleItem is the buy-now flow: one product and quantity through the
// same pipeline as a full cart.
func (a *Assembler) PlaceSingleItem(ctx context.Context, sessionID string, item domain.CartLineItem, info ShippingInfo, payment PaymentMethod, idemKey string) (*Checkout, error) {
	return a.PlaceOrder(ctx, sessionID, []domain.CartLineItem{item}, info, payment, idemKey)
}

// AttachPaymentResult records an out-of-band payment confirmation (bank
// transfer) and completes the checkout.
func (a *Assembler) AttachPaymentResult(checkoutID, transactionID string, at time.Time) error {
	chk, err := a.Checkout(checkoutID)
	if err != nil {
		return err
	}

	if err := chk.transition(domain.CheckoutStatusComplete); err != nil {
		return err
	}
	chk.recordPayment(transactionID, at)
	return nil
}

func validateShipping(info ShippingInfo) error {
	if info.Address == "" {
		return ErrMissingShippingAddress
	}
	if info.City == "" {
		return ErrMissingShippingCity
	}
	_, err := domain.ParseShippingMethod(string(info.Method))
	return err
}

func (a *Assembler) chargeCard(ctx context.Context, chk *Checkout, priced *domain.PricedCart) error {
	if err := chk.transition(domain.CheckoutStatusAwaitingGateway); err != nil {
		return err
	}

	chargeCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	transactionID, err := a.gateway.Charge(chargeCtx, chk.ID, priced.Total, priced.Currency)
	if err != nil {
		if errFail := chk.transition(domain.CheckoutStatusOrderFailed); errFail != nil {
			a.log.Error("failed to mark checkout as failed", zap.String("checkout_id", chk.ID), zap.Error(errFail))
		}
		return fmt.Errorf("card charge failed: %w", err)
	}
	chk.recordPayment(transactionID, time.Now())

	return chk.transition(domain.CheckoutStatusPlacingOrder)
}

// submitOrders fires one order-creation request per line item and waits for
// all of them. The first line carries the full shipping cost in its
// total_amount; the rest carry only their own line total.
func (a *Assembler) submitOrders(ctx context.Context, chk *Checkout, items []domain.CartLineItem, info ShippingInfo) error {
	priced := chk.Priced()

	requests := make([]*client.CreateOrderRequest, 0, len(items))
	for i, item := range items {
		lineTotal, err := money.Multiply(item.UnitPrice, item.Quantity)
		if err != nil {
			return err
		}
		if i == 0 {
			lineTotal = lineTotal.Add(priced.ShippingCost)
		}

		req := &client.CreateOrderRequest{
			ProductID:           item.ProductID,
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			TotalAmount:         money.RoundToDisplay(lineTotal),
			ShippingAddress:     info.Address,
			ShippingCity:        info.City,
			ShippingMethod:      info.Method.String(),
			PaymentMethod:       string(chk.PaymentMethod),
			SpecialInstructions: info.SpecialInstructions,
			Status:              "pending",
			PaymentStatus:       chk.PaymentStatus(),
			IdempotencyKey:      fmt.Sprintf("%s-%d", chk.IdempotencyKey, item.ProductID),
		}
		if txn := chk.PaymentTransactionID(); txn != "" {
			req.PaymentTransactionID = txn
			req.PaymentTimestamp = time.Now().UTC().Format(time.RFC3339)
		}
		requests = append(requests, req)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, req := range requests {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, a.timeout)
			defer cancel()

			order, err := a.orders.CreateOrder(callCtx, req)
			if err != nil {
				return fmt.Errorf("create order for product %d: %w", req.ProductID, err)
			}
			chk.appendOrder(*order)
			return nil
		})
	}

	return g.Wait()
}

func (a *Assembler) publishOrderPlaced(ctx context.Context, chk *Checkout, items []domain.CartLineItem, priced *domain.PricedCart) {
	if a.events == nil {
		return
	}

	event := &publisher.OrderPlacedEvent{
		CheckoutID:  chk.ID,
		SessionID:   chk.SessionID,
		Items:       make([]publisher.OrderPlacedItem, len(items)),
		Subtotal:    priced.Subtotal,
		Shipping:    priced.ShippingCost,
		Tax:         priced.Tax,
		TotalAmount: priced.Total,
		Currency:    priced.Currency,
		CompletedAt: time.Now(),
	}
	for i, item := range items {
		event.Items[i] = publisher.OrderPlacedItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	// event delivery never fails the checkout
	if err := a.events.PublishOrderPlaced(ctx, event); err != nil {
		a.log.Warn("order placed event not published", zap.String("checkout_id", chk.ID), zap.Error(err))
	}
}
