package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// ErrRemote covers transport failures and malformed responses from the
// order API. A non-2xx with a readable error envelope surfaces as *APIError.
var ErrRemote = errors.New("order API request failed")

// APIError is a non-2xx response from the order API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("order API returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrRemote
}

// CreateOrderRequest is one line item's order-creation body.
type CreateOrderRequest struct {
	ProductID            int64           `json:"product_id"`
	Quantity             int             `json:"quantity"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	ShippingAddress      string          `json:"shipping_address"`
	ShippingCity         string          `json:"shipping_city"`
	ShippingMethod       string          `json:"shipping_method"`
	PaymentMethod        string          `json:"payment_method"`
	SpecialInstructions  string          `json:"special_instructions,omitempty"`
	Status               string          `json:"status"`
	PaymentStatus        string          `json:"payment_status"`
	PaymentTransactionID string          `json:"payment_transaction_id,omitempty"`
	PaymentTimestamp     string          `json:"payment_timestamp,omitempty"`
	IdempotencyKey       string          `json:"idempotency_key,omitempty"`
}

// Order is the created order as returned by the API.
type Order struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// OrderAPI is the assembler's view of the external order service.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error)
}

// OrdersClient talks to the external order REST API. All calls go through a
// circuit breaker so a dead backend fails fast instead of tying up the
// checkout path.
type OrdersClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Order]
	log     *zap.Logger
}

func NewOrdersClient(baseURL string, timeout time.Duration, log *zap.Logger) *OrdersClient {
	settings := gobreaker.Settings{
		Name:    "orders-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &OrdersClient{
		baseURL: baseURL,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		breaker: gobreaker.NewCircuitBreaker[*Order](settings),
		log:     log,
	}
}

func (c *OrdersClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	order, err := c.breaker.Execute(func() (*Order, error) {
		return c.createOrder(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrRemote, err)
		}
		return nil, err
	}
	return order, nil
}

func (c *OrdersClient) createOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRemote, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var envelope errorEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error == "" {
			envelope.Error = http.StatusText(resp.StatusCode)
		}
		c.log.Warn("order creation rejected",
			zap.Int64("product_id", req.ProductID),
			zap.Int("status", resp.StatusCode),
			zap.String("error", envelope.Error))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}

	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("%w: malformed order response: %v", ErrRemote, err)
	}
	if order.ProductID == 0 {
		return nil, fmt.Errorf("%w: order response missing product_id", ErrRemote)
	}

	return &order, nil
}
