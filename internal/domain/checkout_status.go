package domain

type CheckoutStatus string

const (
	CheckoutStatusCollectingShipping       CheckoutStatus = "COLLECTING_SHIPPING"
	CheckoutStatusReadyToPay               CheckoutStatus = "READY_TO_PAY"
	CheckoutStatusAwaitingGateway          CheckoutStatus = "AWAITING_GATEWAY"
	CheckoutStatusPlacingOrder             CheckoutStatus = "PLACING_ORDER"
	CheckoutStatusOrderPlaced              CheckoutStatus = "ORDER_PLACED"
	CheckoutStatusOrderFailed              CheckoutStatus = "ORDER_FAILED"
	CheckoutStatusAwaitingBankConfirmation CheckoutStatus = "AWAITING_BANK_CONFIRMATION"
	CheckoutStatusComplete                 CheckoutStatus = "COMPLETE"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusComplete || s == CheckoutStatusOrderFailed
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusCollectingShipping:       {CheckoutStatusReadyToPay},
	CheckoutStatusReadyToPay:               {CheckoutStatusAwaitingGateway, CheckoutStatusPlacingOrder},
	CheckoutStatusAwaitingGateway:          {CheckoutStatusPlacingOrder, CheckoutStatusOrderFailed},
	CheckoutStatusPlacingOrder:             {CheckoutStatusOrderPlaced, CheckoutStatusOrderFailed},
	CheckoutStatusOrderPlaced:              {CheckoutStatusAwaitingBankConfirmation, CheckoutStatusComplete},
	CheckoutStatusAwaitingBankConfirmation: {CheckoutStatusComplete},
}

func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, allowed := range checkoutTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
