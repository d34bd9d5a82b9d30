package assembler

import (
	"errors"
	"sync"
	"time"

	"github.com/Aminu222/tradelink-sub000/internal/client"
	"github.com/Aminu222/tradelink-sub000/internal/domain"
)

var (
	ErrEmptyCart              = errors.New("cart is empty, nothing to checkout")
	ErrMissingShippingAddress = errors.New("shipping address is required")
	ErrMissingShippingCity    = errors.New("shipping city is required")
	ErrUnknownPaymentMethod   = errors.New("unknown payment method")
	ErrIllegalTransition      = errors.New("illegal transition of checkout status")
	ErrCheckoutNotFound       = errors.New("checkout not found")
)

type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentCard:
		return PaymentCard, nil
	case PaymentBankTransfer:
		return PaymentBankTransfer, nil
	}
	return "", ErrUnknownPaymentMethod
}

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

type ShippingInfo struct {
	Address             string
	City                string
	Method              domain.ShippingMethod
	SpecialInstructions string
}

// Checkout tracks one checkout attempt from shipping collection to a
// terminal status.
type Checkout struct {
	ID             string
	SessionID      string
	IdempotencyKey string
	PaymentMethod  PaymentMethod

	mu                   sync.Mutex
	status               domain.CheckoutStatus
	priced               *domain.PricedCart
	orders               []client.Order
	paymentStatus        string
	paymentTransactionID string
	paymentTimestamp     time.Time
	createdAt            time.Time
	updatedAt            time.Time
}

func (c *Checkout) Status() domain.CheckoutStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Checkout) Priced() *domain.PricedCart {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.priced
}

// Orders returns the orders created server-side so far. After a partial
// failure this is the reconciliation starting point.
func (c *Checkout) Orders() []client.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	orders := make([]client.Order, len(c.orders))
	copy(orders, c.orders)
	return orders
}

func (c *Checkout) PaymentStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paymentStatus
}

func (c *Checkout) PaymentTransactionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paymentTransactionID
}

func (c *Checkout) transition(to domain.CheckoutStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !domain.CanTransitionTo(c.status, to) {
		return ErrIllegalTransition
	}
	c.status = to
	c.updatedAt = time.Now()
	return nil
}

func (c *Checkout) appendOrder(order client.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = append(c.orders, order)
}

func (c *Checkout) recordPayment(transactionID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paymentTransactionID = transactionID
	c.paymentTimestamp = at
	c.paymentStatus = PaymentStatusCompleted
	c.updatedAt = time.Now()
}
