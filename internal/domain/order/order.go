// Package order models the persisted order created at successful checkout.
// Monetary and address fields are snapshots: once written they are never
// recomputed from live catalog or profile data.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the settlement state of an order's payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
	PaymentCash     PaymentStatus = "cash"
)

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateIntent is returned by Create when another order already
	// holds the same payment intent id.
	ErrDuplicateIntent = errors.New("an order for this payment intent already exists")
)

// ShippingDetails is the address value object snapshotted onto an order.
type ShippingDetails struct {
	FirstName  string
	LastName   string
	Email      string
	Address    string
	City       string
	PostalCode string
	State      string
	Country    string
	Phone      string
}

// MissingFields returns the names of required fields that are blank.
// State and phone are optional.
func (s ShippingDetails) MissingFields() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"firstName", s.FirstName},
		{"lastName", s.LastName},
		{"email", s.Email},
		{"address", s.Address},
		{"city", s.City},
		{"postalCode", s.PostalCode},
		{"country", s.Country},
	}
	for _, f := range required {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// LineItem is an immutable order line snapshotted at creation time, so later
// product edits or deletes cannot corrupt historical orders.
type LineItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal // post-discount unit price
	CostPrice   decimal.Decimal
	Subtotal    decimal.Decimal
	Color       string
	Shade       string
	ImageURL    string
}

// Order is the record created at successful checkout. Only Status,
// TrackingNumber, and Notes are mutable afterwards, and only by an admin.
type Order struct {
	ID              string
	UserID          string
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentIntentID string // empty for cash on delivery
	Shipping        ShippingDetails
	BillingAddress  string
	Subtotal        decimal.Decimal
	ShippingCost    decimal.Decimal
	TaxAmount       decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	PromoCode       string
	TrackingNumber  string
	Notes           string
	Items           []LineItem
	CreatedAt       time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order header and its lines as one transaction.
	Create(ctx context.Context, o *Order) error
	// Get returns an order with its lines.
	Get(ctx context.Context, id string) (*Order, error)
	// FindByPaymentIntent returns the order created for a payment intent,
	// or ErrNotFound. Guards against duplicate order creation on reload.
	FindByPaymentIntent(ctx context.Context, intentID string) (*Order, error)
	// UpdateStatus writes a new status and returns the updated order.
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
}
