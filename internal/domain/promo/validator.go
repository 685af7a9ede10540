package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator validates a promo code against a cart subtotal and returns the
// computed discount. Validation never mutates state; redemption happens
// separately once the order is committed.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error)
}

// RepoValidator implements Validator by looking up codes from a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate checks the code's existence, activity window, usage limit, and
// minimum purchase requirement, then computes the clamped discount amount.
// Each call recomputes from scratch; reapplying a code against a changed
// subtotal never accumulates.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Discount, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpired) {
			return nil, ErrInvalidOrExpired
		}
		return nil, errors.Wrap(err, "lookup promo code")
	}

	if !rule.Usable(v.now()) {
		return nil, ErrInvalidOrExpired
	}

	if rule.MinPurchase != nil && subtotal.LessThan(*rule.MinPurchase) {
		return nil, &BelowMinimumError{Minimum: *rule.MinPurchase}
	}

	return &Discount{
		Amount: Amount(rule, subtotal),
		Code:   rule.Code,
	}, nil
}

var hundred = decimal.NewFromInt(100)

// Amount computes the raw discount for a code against a subtotal: percentage
// of subtotal or flat value, clamped to the code's max discount and to the
// subtotal itself, rounded to cents.
func Amount(rule *Code, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.DiscountValue).Div(hundred)
	case DiscountFixed:
		amount = rule.DiscountValue
	default:
		return decimal.Zero
	}

	if rule.MaxDiscount != nil {
		amount = decimal.Min(amount, *rule.MaxDiscount)
	}
	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}
