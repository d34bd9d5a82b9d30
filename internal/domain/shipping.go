package domain

import "errors"

type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

var ErrUnknownShippingMethod = errors.New("unknown shipping method")

func ParseShippingMethod(s string) (ShippingMethod, error) {
	switch ShippingMethod(s) {
	case ShippingStandard:
		return ShippingStandard, nil
	case ShippingExpress:
		return ShippingExpress, nil
	}
	return "", ErrUnknownShippingMethod
}

func (m ShippingMethod) String() string {
	return string(m)
}
