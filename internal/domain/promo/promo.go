// Package promo implements promo code validation and discount calculation.
package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported promo discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrMissingCode is returned when an empty code is submitted.
	ErrMissingCode = errors.New("promo code is required")
	// ErrInvalidOrExpired is returned when a code is not found, inactive,
	// outside its validity window, or has exhausted its usage limit.
	ErrInvalidOrExpired = errors.New("invalid or expired promo code")
	// ErrExhausted is returned by Repository.Redeem when the usage limit was
	// reached between validation and redemption.
	ErrExhausted = errors.New("promo code usage limit reached")
)

// BelowMinimumError indicates the cart subtotal does not meet the promo's
// minimum purchase requirement. The message carries the minimum so callers
// can surface it directly.
type BelowMinimumError struct {
	Minimum decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("minimum purchase of %s required to use this code", e.Minimum.StringFixed(2))
}

// Code is an admin-managed discount-granting token.
type Code struct {
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MinPurchase   *decimal.Decimal
	MaxDiscount   *decimal.Decimal
	StartsAt      time.Time
	EndsAt        time.Time
	UsageLimit    *int
	UsedCount     int
	Active        bool
}

// Usable reports whether the code is active, inside its [StartsAt, EndsAt)
// window at the given instant, and has uses remaining.
func (c *Code) Usable(now time.Time) bool {
	if !c.Active {
		return false
	}
	if now.Before(c.StartsAt) || !now.Before(c.EndsAt) {
		return false
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return false
	}
	return true
}

// Discount is the outcome of validating a promo code against a subtotal.
type Discount struct {
	// Amount is the discount value, already clamped and rounded.
	Amount decimal.Decimal
	// Code is the canonical stored code string for display.
	Code string
}

// Repository provides lookup and redemption of promo codes.
type Repository interface {
	// FindByCode returns the code row as stored (lookup is case-insensitive).
	// Returns ErrInvalidOrExpired when no such code exists.
	FindByCode(ctx context.Context, code string) (*Code, error)
	// Redeem increments the usage counter, atomically re-checking the usage
	// limit. Returns ErrExhausted when the limit was reached concurrently.
	Redeem(ctx context.Context, code string) error
}
