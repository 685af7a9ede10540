// Package checkout orchestrates the order-creation workflow: pricing, promo
// validation, payment verification, order assembly, and post-commit side
// effects, in that order. Each stage runs once per checkout attempt.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lumeshop/storefront-api/internal/domain/cart"
	"github.com/lumeshop/storefront-api/internal/domain/order"
	"github.com/lumeshop/storefront-api/internal/domain/payment"
	"github.com/lumeshop/storefront-api/internal/domain/pricing"
	"github.com/lumeshop/storefront-api/internal/domain/promo"
)

// Sentinel validation errors. These abort the attempt before any persistence.
var (
	ErrEmptyCart   = errors.New("cart is empty")
	ErrMissingUser = errors.New("user id is required")
	ErrMissingCart = errors.New("cart id is required")
	// ErrMissingPaymentIntent is returned for card checkouts without a
	// confirmed payment intent id.
	ErrMissingPaymentIntent = errors.New("payment intent id is required for card payments")
	// ErrPersist wraps order write failures. By the time it occurs a card
	// payment may already be captured, so callers surface "contact support"
	// rather than a retry affordance.
	ErrPersist = errors.New("order could not be saved")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for product %s", e.ProductID)
}

// MissingShippingError lists the blank required shipping fields.
type MissingShippingError struct {
	Fields []string
}

func (e *MissingShippingError) Error() string {
	return fmt.Sprintf("missing required shipping fields: %v", e.Fields)
}

// Request is one checkout attempt. Items carry the cart-time price snapshots;
// the order assembler never re-reads the product catalog.
type Request struct {
	UserID          string
	CartID          string
	Items           []pricing.LineItem
	Shipping        order.ShippingDetails
	BillingAddress  string
	PaymentMethod   payment.Method
	PaymentIntentID string
	PromoCode       string
	SaveAddress     bool
}

// Result is the outcome of a successful (or deduplicated) checkout.
type Result struct {
	Order *order.Order
	// AlreadyPlaced is true when an order for the same payment intent
	// already existed; Order is that earlier order and nothing was written.
	AlreadyPlaced bool
}

// Service wires the checkout stages together.
type Service struct {
	params  pricing.Params
	promos  promo.Validator
	gateway payment.Gateway
	carts   cart.Repository
	orders  order.Repository
	post    *Runner
	newID   func() string
	now     func() time.Time
}

// NewService creates a checkout Service. The Runner may be NewRunner with an
// empty task set when no side effects are wanted (tests).
func NewService(
	params pricing.Params,
	promos promo.Validator,
	gateway payment.Gateway,
	carts cart.Repository,
	orders order.Repository,
	post *Runner,
) *Service {
	return &Service{
		params:  params,
		promos:  promos,
		gateway: gateway,
		carts:   carts,
		orders:  orders,
		post:    post,
		newID:   func() string { return uuid.New().String() },
		now:     time.Now,
	}
}

// CreateIntent prices the stored cart and registers a pending charge for the
// resulting total, so the amount the gateway authorizes can never diverge
// from what the order assembler will compute. The storefront confirms the
// returned client secret and then places the order with the intent id.
func (s *Service) CreateIntent(ctx context.Context, cartID, promoCode string) (*payment.Intent, error) {
	if cartID == "" {
		return nil, ErrMissingCart
	}

	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	lines := cartLines(c)
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	discount := decimal.Zero
	if promoCode != "" {
		d, err := s.promos.Validate(ctx, promoCode, pricing.Subtotal(lines))
		if err != nil {
			return nil, err
		}
		discount = d.Amount
	}
	totals := pricing.Quote(lines, s.params, discount)

	intent, err := s.gateway.CreateIntent(ctx, totals.Total)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}
	return intent, nil
}

// cartLines converts stored cart lines into pricing inputs.
func cartLines(c *cart.Cart) []pricing.LineItem {
	lines := make([]pricing.LineItem, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = pricing.LineItem{
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			UnitPrice:       l.UnitPrice,
			CostPrice:       l.CostPrice,
			DiscountPercent: l.DiscountPercent,
			Quantity:        l.Quantity,
			Color:           l.Color,
			Shade:           l.Shade,
			ImageURL:        l.ImageURL,
		}
	}
	return lines
}

// PlaceOrder runs one checkout attempt end to end. Validation and payment
// errors abort before any write; a persistence error aborts the response but
// cannot undo a captured payment; post-commit side effects never fail the
// order.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// Pricing: the single source of truth for subtotal/shipping/total.
	subtotal := pricing.Subtotal(req.Items)

	discount := decimal.Zero
	promoCode := ""
	if req.PromoCode != "" {
		d, err := s.promos.Validate(ctx, req.PromoCode, subtotal)
		if err != nil {
			return nil, err
		}
		discount = d.Amount
		promoCode = d.Code
	}

	totals := pricing.Quote(req.Items, s.params, discount)

	// Payment: cash on delivery skips the gateway entirely.
	paymentStatus := order.PaymentCash
	intentID := ""
	if req.PaymentMethod == payment.MethodCard {
		if req.PaymentIntentID == "" {
			return nil, ErrMissingPaymentIntent
		}

		// One order per payment intent: a page reload after a successful
		// redirect must not create a second order.
		if existing, err := s.orders.FindByPaymentIntent(ctx, req.PaymentIntentID); err == nil {
			return &Result{Order: existing, AlreadyPlaced: true}, nil
		} else if !errors.Is(err, order.ErrNotFound) {
			return nil, errors.Wrap(err, "check payment intent")
		}

		intent, err := s.gateway.RetrieveIntent(ctx, req.PaymentIntentID)
		if err != nil {
			return nil, errors.Wrap(err, "retrieve payment intent")
		}
		if err := payment.VerifySucceeded(intent.Status); err != nil {
			return nil, err
		}

		paymentStatus = order.PaymentPaid
		intentID = intent.ID
	}

	o := s.assemble(req, totals, promoCode, paymentStatus, intentID)

	if err := s.orders.Create(ctx, o); err != nil {
		// A concurrent request for the same intent can win the insert between
		// the pre-check and here; hand back its order instead of a failure.
		if errors.Is(err, order.ErrDuplicateIntent) && intentID != "" {
			if existing, lookupErr := s.orders.FindByPaymentIntent(ctx, intentID); lookupErr == nil {
				return &Result{Order: existing, AlreadyPlaced: true}, nil
			}
		}
		return nil, errors.Wrap(ErrPersist, err.Error())
	}

	// The order is durable; everything from here on is best effort.
	s.post.After(ctx, req, o)

	return &Result{Order: o}, nil
}

// assemble builds the order record, snapshotting every line from the
// cart-time values in the request.
func (s *Service) assemble(
	req Request,
	totals pricing.Totals,
	promoCode string,
	paymentStatus order.PaymentStatus,
	intentID string,
) *order.Order {
	items := make([]order.LineItem, len(req.Items))
	for i, l := range req.Items {
		unit := l.UnitPrice
		if !l.DiscountPercent.IsZero() {
			factor := decimal.NewFromInt(1).Sub(l.DiscountPercent.Div(decimal.NewFromInt(100)))
			unit = unit.Mul(factor)
		}
		items[i] = order.LineItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   unit.Round(2),
			CostPrice:   l.CostPrice,
			Subtotal:    l.LineTotal().Round(2),
			Color:       l.Color,
			Shade:       l.Shade,
			ImageURL:    l.ImageURL,
		}
	}

	billing := req.BillingAddress
	if billing == "" {
		billing = req.Shipping.Address
	}

	return &order.Order{
		ID:              s.newID(),
		UserID:          req.UserID,
		Status:          order.StatusNew,
		PaymentStatus:   paymentStatus,
		PaymentIntentID: intentID,
		Shipping:        req.Shipping,
		BillingAddress:  billing,
		Subtotal:        totals.Subtotal,
		ShippingCost:    totals.Shipping,
		TaxAmount:       decimal.Zero,
		DiscountAmount:  totals.Discount,
		TotalAmount:     totals.Total,
		PromoCode:       promoCode,
		Items:           items,
		CreatedAt:       s.now(),
	}
}

func validate(req Request) error {
	if req.UserID == "" {
		return ErrMissingUser
	}
	if req.CartID == "" {
		return ErrMissingCart
	}
	if len(req.Items) == 0 {
		return ErrEmptyCart
	}
	for _, l := range req.Items {
		if l.Quantity < 1 {
			return &InvalidQuantityError{ProductID: l.ProductID}
		}
	}
	if missing := req.Shipping.MissingFields(); len(missing) > 0 {
		return &MissingShippingError{Fields: missing}
	}
	return nil
}
