package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type ChargeRequest struct {
	CheckoutID string          `json:"checkout_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

type ChargeResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// PaymentClient hands a card charge off to the external payment gateway.
// Bank transfers never reach it; those are confirmed out-of-band.
type PaymentClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewPaymentClient(baseURL string, timeout time.Duration, log *zap.Logger) *PaymentClient {
	return &PaymentClient{
		baseURL: baseURL,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		log: log,
	}
}

func (c *PaymentClient) Charge(ctx context.Context, checkoutID string, amount decimal.Decimal, currency string) (string, error) {
	body, err := json.Marshal(ChargeRequest{
		CheckoutID: checkoutID,
		Amount:     amount,
		Currency:   currency,
	})
	if err != nil {
		return "", fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charge", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrRemote, err)
	}

	if resp.StatusCode != http.StatusOK {
		var envelope errorEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error == "" {
			envelope.Error = http.StatusText(resp.StatusCode)
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}

	var result ChargeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("%w: malformed charge response: %v", ErrRemote, err)
	}
	if result.Status != "success" || result.TransactionID == "" {
		return "", fmt.Errorf("payment declined: %s", result.Status)
	}

	return result.TransactionID, nil
}
