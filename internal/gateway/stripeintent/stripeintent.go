// Package stripeintent implements payment.Gateway on the Stripe
// payment-intents API.
package stripeintent

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/lumeshop/storefront-api/internal/domain/payment"
)

var cents = decimal.NewFromInt(100)

var _ payment.Gateway = (*Gateway)(nil)

// Gateway talks to Stripe. Amounts are converted to integer cents at the
// boundary; the rest of the system stays in decimal currency units.
type Gateway struct {
	api      *client.API
	currency stripe.Currency
}

// New creates a Gateway with the given secret API key and ISO currency code.
func New(apiKey, currency string) *Gateway {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &Gateway{
		api:      api,
		currency: stripe.Currency(currency),
	}
}

// CreateIntent registers a pending charge and returns the intent whose client
// secret the storefront confirms client-side.
func (g *Gateway) CreateIntent(ctx context.Context, amount decimal.Decimal) (*payment.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toCents(amount)),
		Currency: stripe.String(string(g.currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	return fromStripe(pi), nil
}

// RetrieveIntent re-queries the authoritative intent status by ID.
func (g *Gateway) RetrieveIntent(ctx context.Context, id string) (*payment.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, errors.Wrapf(err, "retrieve payment intent %s", id)
	}
	return fromStripe(pi), nil
}

func fromStripe(pi *stripe.PaymentIntent) *payment.Intent {
	return &payment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       payment.IntentStatus(pi.Status),
		Amount:       decimal.NewFromInt(pi.Amount).Div(cents),
	}
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(cents).Round(0).IntPart()
}
