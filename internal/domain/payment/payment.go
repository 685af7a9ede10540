// Package payment defines the narrow interface to the external payment
// gateway. The gateway tracks card authorizations as payment intents; cash on
// delivery never touches it.
package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Method is how the customer pays for an order.
type Method string

const (
	MethodCard Method = "card"
	MethodCash Method = "cash_on_delivery"
)

// IntentStatus mirrors the gateway's payment intent lifecycle. Only the
// states the checkout flow branches on are named; anything else is treated
// as a hard failure.
type IntentStatus string

const (
	StatusSucceeded             IntentStatus = "succeeded"
	StatusProcessing            IntentStatus = "processing"
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
)

var (
	// ErrStillProcessing means the charge is in flight; the customer should
	// retry later rather than re-enter card details.
	ErrStillProcessing = errors.New("payment is still processing, try again shortly")
	// ErrPaymentDeclined means the gateway wants a new payment method.
	ErrPaymentDeclined = errors.New("payment was declined, please try another payment method")
	// ErrPaymentFailed covers every other non-succeeded intent state.
	ErrPaymentFailed = errors.New("payment failed, please re-enter your payment details")
)

// Intent is the gateway-side authorization object for a card charge.
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	Amount       decimal.Decimal
}

// Gateway is the payment gateway client surface the checkout flow needs.
type Gateway interface {
	// CreateIntent registers a pending charge for the given amount and
	// returns the intent whose client secret the storefront confirms
	// client-side.
	CreateIntent(ctx context.Context, amount decimal.Decimal) (*Intent, error)
	// RetrieveIntent re-queries the authoritative intent status by ID.
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}

// VerifySucceeded maps a retrieved intent status to the checkout outcome:
// nil for succeeded, a typed retryable error otherwise.
func VerifySucceeded(status IntentStatus) error {
	switch status {
	case StatusSucceeded:
		return nil
	case StatusProcessing:
		return ErrStillProcessing
	case StatusRequiresPaymentMethod:
		return ErrPaymentDeclined
	default:
		return ErrPaymentFailed
	}
}
