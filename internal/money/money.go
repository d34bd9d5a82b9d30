package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidQuantity = errors.New("quantity must not be negative")

// Amounts are decimal throughout so repeated addition over many line items
// never accumulates binary floating-point drift.

func Add(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b)
}

// Multiply scales a unit amount by a line quantity. A negative quantity is a
// caller bug and is rejected rather than producing a negative amount.
func Multiply(amount decimal.Decimal, quantity int) (decimal.Decimal, error) {
	if quantity < 0 {
		return decimal.Zero, ErrInvalidQuantity
	}
	return amount.Mul(decimal.NewFromInt(int64(quantity))), nil
}

// RoundToDisplay rounds to two fractional digits for presentation and for
// amounts sent over the wire.
func RoundToDisplay(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
