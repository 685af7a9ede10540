// Package cart models the pre-purchase cart owned by one user session.
package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a cart.
type Status string

const (
	StatusActive    Status = "active"
	StatusAbandoned Status = "abandoned"
	StatusConverted Status = "converted"
)

// ErrNotFound is returned when a cart does not exist.
var ErrNotFound = errors.New("cart not found")

// LineItem is a mutable cart line. Prices here are the cart-time values that
// get snapshotted onto the order at checkout.
type LineItem struct {
	ProductID       string
	ProductName     string
	UnitPrice       decimal.Decimal
	CostPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	Quantity        int
	Color           string
	Shade           string
	ImageURL        string
}

// Cart is the pre-purchase collection of line items for one user.
// A user has at most one active cart at a time (enforced by storage).
type Cart struct {
	ID     string
	UserID string
	Status Status
	Lines  []LineItem
}

// Repository defines persistence operations for carts.
type Repository interface {
	// Get returns the cart and its lines.
	Get(ctx context.Context, cartID string) (*Cart, error)
	// Delete removes the cart and its line items. Called after a successful
	// checkout; the cart is gone once the order owns the snapshots.
	Delete(ctx context.Context, cartID string) error
}
