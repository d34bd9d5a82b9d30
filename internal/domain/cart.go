package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string         `json:"id,omitempty"`
	SessionID string         `json:"session_id"`
	Items     []CartLineItem `json:"items"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type CartLineItem struct {
	ProductID        int64           `json:"product_id"`
	Name             string          `json:"name"`
	PriceUnit        string          `json:"price_unit"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Currency         string          `json:"currency"`
	Quantity         int             `json:"quantity"`
	MinOrderQuantity int             `json:"min_order_quantity,omitempty"`
	Image            string          `json:"image,omitempty"`
	AddedAt          time.Time       `json:"added_at"`
}

// PricedCart is derived from a cart snapshot on every read, never stored.
type PricedCart struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
}
