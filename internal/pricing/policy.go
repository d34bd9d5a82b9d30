package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Aminu222/tradelink-sub000/internal/domain"
	"github.com/Aminu222/tradelink-sub000/internal/money"
)

// Policy computes subtotal, shipping, tax and total from a cart snapshot.
// All methods are pure; a single flat tax rate applies to every flow priced
// by the same policy instance.
type Policy struct {
	taxRate      decimal.Decimal
	standardCost decimal.Decimal
	expressCost  decimal.Decimal
	currency     string
}

func NewPolicy(taxRate, standardCost, expressCost decimal.Decimal, currency string) *Policy {
	return &Policy{
		taxRate:      taxRate,
		standardCost: standardCost,
		expressCost:  expressCost,
		currency:     currency,
	}
}

// DefaultPolicy is flat 8% tax, NGN 2500 standard / NGN 5000 express shipping.
func DefaultPolicy() *Policy {
	return NewPolicy(
		decimal.NewFromFloat(0.08),
		decimal.NewFromInt(2500),
		decimal.NewFromInt(5000),
		"NGN",
	)
}

func (p *Policy) Currency() string {
	return p.currency
}

func (p *Policy) Subtotal(items []domain.CartLineItem) (decimal.Decimal, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		line, err := money.Multiply(item.UnitPrice, item.Quantity)
		if err != nil {
			return decimal.Zero, fmt.Errorf("line for product %d: %w", item.ProductID, err)
		}
		subtotal = money.Add(subtotal, line)
	}
	return subtotal, nil
}

// ShippingCost is a flat amount per method; an empty cart ships nothing.
func (p *Policy) ShippingCost(method domain.ShippingMethod, itemCount int) (decimal.Decimal, error) {
	if itemCount == 0 {
		return decimal.Zero, nil
	}
	switch method {
	case domain.ShippingStandard:
		return p.standardCost, nil
	case domain.ShippingExpress:
		return p.expressCost, nil
	}
	return decimal.Zero, domain.ErrUnknownShippingMethod
}

func (p *Policy) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return money.RoundToDisplay(subtotal.Mul(p.taxRate))
}

// Price builds the full breakdown for a cart snapshot. The total always
// equals subtotal + shipping + tax.
func (p *Policy) Price(items []domain.CartLineItem, method domain.ShippingMethod) (*domain.PricedCart, error) {
	subtotal, err := p.Subtotal(items)
	if err != nil {
		return nil, err
	}

	shipping, err := p.ShippingCost(method, len(items))
	if err != nil {
		return nil, err
	}

	tax := decimal.Zero
	if len(items) > 0 {
		tax = p.Tax(subtotal)
	}

	return &domain.PricedCart{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		Tax:          tax,
		Total:        subtotal.Add(shipping).Add(tax),
		Currency:     p.currency,
	}, nil
}
