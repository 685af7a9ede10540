// Package pricing computes checkout totals from cart line items.
//
// All arithmetic uses decimal.Decimal; rounding to two places happens exactly
// once, when the final Totals is assembled. Quote is a pure function so the
// checkout page, the order summary, and the order assembler all price a cart
// through the same code path.
package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineItem is a single cart line as priced at checkout time.
type LineItem struct {
	ProductID       string
	ProductName     string
	UnitPrice       decimal.Decimal
	CostPrice       decimal.Decimal
	DiscountPercent decimal.Decimal // 0..100, per-line catalog discount
	Quantity        int
	Color           string
	Shade           string
	ImageURL        string
}

// LineTotal returns unit price x quantity with the per-line discount applied,
// unrounded.
func (l LineItem) LineTotal() decimal.Decimal {
	qty := decimal.NewFromInt(int64(l.Quantity))
	factor := decimal.NewFromInt(1).Sub(l.DiscountPercent.Div(hundred))
	return l.UnitPrice.Mul(qty).Mul(factor)
}

// Params holds the shipping policy inputs for a quote.
type Params struct {
	// ShippingThreshold is the subtotal above which shipping is free.
	ShippingThreshold decimal.Decimal
	// BaseShippingCost is charged when the subtotal does not exceed the threshold.
	BaseShippingCost decimal.Decimal
}

// Totals is the priced breakdown of a cart.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Quote prices the given lines under the shipping policy, applying an optional
// promo discount. The total is clamped at zero.
func Quote(lines []LineItem, params Params, discount decimal.Decimal) Totals {
	subtotal := Subtotal(lines)

	shipping := params.BaseShippingCost
	if subtotal.GreaterThan(params.ShippingThreshold) {
		shipping = decimal.Zero
	}

	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal.Round(2),
		Shipping: shipping.Round(2),
		Discount: discount.Round(2),
		Total:    total.Round(2),
	}
}

// Subtotal returns the sum of discounted line totals, unrounded.
func Subtotal(lines []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}
