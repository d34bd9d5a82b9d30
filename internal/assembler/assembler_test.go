package assembler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aminu222/tradelink-sub000/internal/client"
	"github.com/Aminu222/tradelink-sub000/internal/domain"
	"github.com/Aminu222/tradelink-sub000/internal/pricing"
	"github.com/Aminu222/tradelink-sub000/internal/publisher"
)

type mockOrderAPI struct {
	m       sync.Mutex
	nextID  int64
	failFor map[int64]error
	created []client.CreateOrderRequest
}

func newMockOrderAPI() *mockOrderAPI {
	return &mockOrderAPI{failFor: make(map[int64]error)}
}

func (m *mockOrderAPI) CreateOrder(_ context.Context, req *client.CreateOrderRequest) (*client.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()

	if err, ok := m.failFor[req.ProductID]; ok {
		return nil, err
	}

	m.nextID++
	m.created = append(m.created, *req)
	return &client.Order{
		ID:            m.nextID,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		TotalAmount:   req.TotalAmount,
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
	}, nil
}

func (m *mockOrderAPI) createdOrders() []client.CreateOrderRequest {
	m.m.Lock()
	defer m.m.Unlock()
	orders := make([]client.CreateOrderRequest, len(m.created))
	copy(orders, m.created)
	return orders
}

type mockGateway struct {
	m      sync.Mutex
	err    error
	called int
}

func (m *mockGateway) Charge(_ context.Context, _ string, _ decimal.Decimal, _ string) (string, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.called++
	if m.err != nil {
		return "", m.err
	}
	return "txn-123", nil
}

type mockPublisher struct {
	m      sync.Mutex
	events []*publisher.OrderPlacedEvent
	err    error
}

func (m *mockPublisher) PublishOrderPlaced(_ context.Context, event *publisher.OrderPlacedEvent) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func newTestAssembler(orders client.OrderAPI, gateway PaymentGateway, events publisher.EventPublisher) *Assembler {
	return NewAssembler(orders, gateway, pricing.DefaultPolicy(), events, zap.NewNop(), 5*time.Second)
}

func shippingInfo() ShippingInfo {
	return ShippingInfo{
		Address: "12 Allen Avenue",
		City:    "Lagos",
		Method:  domain.ShippingStandard,
	}
}

func cartItems() []domain.CartLineItem {
	return []domain.CartLineItem{
		{ProductID: 1, Name: "yam", UnitPrice: decimal.NewFromInt(1000), Quantity: 2},
		{ProductID: 2, Name: "rice", UnitPrice: decimal.NewFromInt(500), Quantity: 3},
	}
}

func TestPlaceOrder_BankTransfer(t *testing.T) {
	api := newMockOrderAPI()
	events := &mockPublisher{}
	sut := newTestAssembler(api, &mockGateway{}, events)

	chk, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), shippingInfo(), PaymentBankTransfer, "")
	require.NoError(t, err)

	assert.Equal(t, domain.CheckoutStatusAwaitingBankConfirmation, chk.Status())
	assert.Equal(t, PaymentStatusPending, chk.PaymentStatus())
	assert.Len(t, chk.Orders(), 2)
	assert.Len(t, api.createdOrders(), 2)
	assert.Len(t, events.events, 1)
}

func TestPlaceOrder_Card(t *testing.T) {
	api := newMockOrderAPI()
	gateway := &mockGateway{}
	sut := newTestAssembler(api, gateway, &mockPublisher{})

	chk, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), shippingInfo(), PaymentCard, "")
	require.NoError(t, err)

	assert.Equal(t, domain.CheckoutStatusComplete, chk.Status())
	assert.Equal(t, PaymentStatusCompleted, chk.PaymentStatus())
	assert.Equal(t, "txn-123", chk.PaymentTransactionID())
	assert.Equal(t, 1, gateway.called)

	for _, req := range api.createdOrders() {
		assert.Equal(t, "txn-123", req.PaymentTransactionID)
		assert.Equal(t, PaymentStatusCompleted, req.PaymentStatus)
	}
}

func TestPlaceOrder_CardDeclined(t *testing.T) {
	api := newMockOrderAPI()
	gateway := &mockGateway{err: assert.AnError}
	sut := newTestAssembler(api, gateway, &mockPublisher{})

	chk, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), shippingInfo(), PaymentCard, "")
	require.Error(t, err)

	assert.Equal(t, domain.CheckoutStatusOrderFailed, chk.Status())
	assert.Empty(t, api.createdOrders(), "no orders may be created when the charge fails")
}

func TestPlaceOrder_PartialFailure(t *testing.T) {
	api := newMockOrderAPI()
	api.failFor[2] = &client.APIError{StatusCode: 500, Message: "boom"}
	sut := newTestAssembler(api, &mockGateway{}, &mockPublisher{})

	chk, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), shippingInfo(), PaymentBankTransfer, "")
	require.Error(t, err)

	assert.Equal(t, domain.CheckoutStatusOrderFailed, chk.Status())
	// exactly the order for product 1 was created server-side before the
	// aggregate failure was reported
	created := api.createdOrders()
	require.Len(t, created, 1)
	assert.Equal(t, int64(1), created[0].ProductID)
	assert.Len(t, chk.Orders(), 1)
}

func TestPlaceOrder_RetryReusesIdempotencyKeys(t *testing.T) {
	api := newMockOrderAPI()
	api.failFor[2] = &client.APIError{StatusCode: 500, Message: "boom"}
	sut := newTestAssembler(api, &mockGateway{}, &mockPublisher{})

	_, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), shippingInfo(), PaymentBankTransfer, "retry-key")
	require.Error(t, err)

	// the caller retries with the same key after the outage clears
	api.m.Lock()
	delete(api.failFor, 2)
	api.m.Unlock()

	chk, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), shippingInfo(), PaymentBankTransfer, "retry-key")
	require.NoError(t, err)
	assert.Equal(t, "retry-key", chk.IdempotencyKey)

	// product 1 was submitted in both attempts with an identical key, so
	// the order API can deduplicate the line it already created
	keys := make(map[int64][]string)
	for _, req := range api.createdOrders() {
		keys[req.ProductID] = append(keys[req.ProductID], req.IdempotencyKey)
	}
	require.Len(t, keys[1], 2)
	assert.Equal(t, keys[1][0], keys[1][1])
	assert.Equal(t, []string{"retry-key-2"}, keys[2])
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	sut := newTestAssembler(newMockOrderAPI(), &mockGateway{}, &mockPublisher{})

	_, err := sut.PlaceOrder(context.Background(), "session-1", nil, shippingInfo(), PaymentCard, "")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrder_MissingShippingFields(t *testing.T) {
	api := newMockOrderAPI()
	sut := newTestAssembler(api, &mockGateway{}, &mockPublisher{})

	info := shippingInfo()
	info.Address = ""
	_, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), info, PaymentCard, "")
	assert.ErrorIs(t, err, ErrMissingShippingAddress)

	info = shippingInfo()
	info.City = ""
	_, err = sut.PlaceOrder(context.Background(), "session-1", cartItems(), info, PaymentCard, "")
	assert.ErrorIs(t, err, ErrMissingShippingCity)

	assert.Empty(t, api.createdOrders(), "validation failures must not reach the order API")
}

func TestPlaceOrder_ShippingChargedOnce(t *testing.T) {
	api := newMockOrderAPI()
	sut := newTestAssembler(api, &mockGateway{}, &mockPublisher{})

	chk, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), shippingInfo(), PaymentBankTransfer, "")
	require.NoError(t, err)

	sum := decimal.Zero
	for _, req := range api.createdOrders() {
		sum = sum.Add(req.TotalAmount)
	}

	// line totals plus one shipping charge, tax excluded from per-line amounts
	expected := chk.Priced().Subtotal.Add(chk.Priced().ShippingCost)
	assert.True(t, expected.Equal(sum), "sum of line totals = %s, want %s", sum, expected)
}

func TestPlaceSingleItem(t *testing.T) {
	api := newMockOrderAPI()
	sut := newTestAssembler(api, &mockGateway{}, &mockPublisher{})

	item := domain.CartLineItem{ProductID: 7, Name: "maize", UnitPrice: decimal.NewFromInt(1200), Quantity: 1}
	chk, err := sut.PlaceSingleItem(context.Background(), "session-1", item, shippingInfo(), PaymentBankTransfer, "")
	require.NoError(t, err)

	require.Len(t, api.createdOrders(), 1)
	assert.Equal(t, int64(7), api.createdOrders()[0].ProductID)
	assert.Equal(t, domain.CheckoutStatusAwaitingBankConfirmation, chk.Status())
}

func TestAttachPaymentResult(t *testing.T) {
	sut := newTestAssembler(newMockOrderAPI(), &mockGateway{}, &mockPublisher{})

	chk, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), shippingInfo(), PaymentBankTransfer, "")
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutStatusAwaitingBankConfirmation, chk.Status())

	require.NoError(t, sut.AttachPaymentResult(chk.ID, "bank-txn-9", time.Now()))

	assert.Equal(t, domain.CheckoutStatusComplete, chk.Status())
	assert.Equal(t, PaymentStatusCompleted, chk.PaymentStatus())
	assert.Equal(t, "bank-txn-9", chk.PaymentTransactionID())
}

func TestAttachPaymentResult_AlreadyComplete(t *testing.T) {
	sut := newTestAssembler(newMockOrderAPI(), &mockGateway{}, &mockPublisher{})

	chk, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), shippingInfo(), PaymentCard, "")
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutStatusComplete, chk.Status())

	assert.ErrorIs(t, sut.AttachPaymentResult(chk.ID, "late-txn", time.Now()), ErrIllegalTransition)
}

func TestAttachPaymentResult_UnknownCheckout(t *testing.T) {
	sut := newTestAssembler(newMockOrderAPI(), &mockGateway{}, &mockPublisher{})

	assert.ErrorIs(t, sut.AttachPaymentResult("no-such-id", "txn", time.Now()), ErrCheckoutNotFound)
}

func TestPlaceOrder_PublishFailureDoesNotFailCheckout(t *testing.T) {
	sut := newTestAssembler(newMockOrderAPI(), &mockGateway{}, &mockPublisher{err: assert.AnError})

	chk, err := sut.PlaceOrder(context.Background(), "session-1", cartItems(), shippingInfo(), PaymentCard, "")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusComplete, chk.Status())
}
