package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumeshop/storefront-api/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (
		id, user_id, status, payment_status, payment_intent_id,
		ship_first_name, ship_last_name, ship_email, ship_address, ship_city,
		ship_postal_code, ship_state, ship_country, ship_phone, bill_address,
		subtotal, shipping_cost, tax_amount, discount_amount, total_amount,
		promo_code, tracking_number, notes, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24)`

	insertOrderItemSQL = `INSERT INTO order_items (
		order_id, product_id, product_name, quantity, unit_price, cost_price,
		subtotal, color, shade, image_url)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectOrderSQL = `SELECT id, user_id, status, payment_status, COALESCE(payment_intent_id, ''),
		ship_first_name, ship_last_name, ship_email, ship_address, ship_city,
		ship_postal_code, ship_state, ship_country, ship_phone, bill_address,
		subtotal, shipping_cost, tax_amount, discount_amount, total_amount,
		promo_code, tracking_number, notes, created_at
	FROM orders`

	selectOrderItemsSQL = `SELECT product_id, product_name, quantity, unit_price,
		cost_price, subtotal, color, shade, image_url
	FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order header and all line items in one transaction.
// Either everything lands or nothing does; a partial order can never be read.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var intentID *string
	if o.PaymentIntentID != "" {
		intentID = &o.PaymentIntentID
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, string(o.Status), string(o.PaymentStatus), intentID,
		o.Shipping.FirstName, o.Shipping.LastName, o.Shipping.Email,
		o.Shipping.Address, o.Shipping.City, o.Shipping.PostalCode,
		o.Shipping.State, o.Shipping.Country, o.Shipping.Phone, o.BillingAddress,
		o.Subtotal, o.ShippingCost, o.TaxAmount, o.DiscountAmount, o.TotalAmount,
		o.PromoCode, o.TrackingNumber, o.Notes, o.CreatedAt,
	)
	if err != nil {
		// 23505 on the payment intent index means another request already
		// created this order.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" &&
			pgErr.ConstraintName == "orders_payment_intent_unique" {
			return order.ErrDuplicateIntent
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			o.ID, item.ProductID, item.ProductName, item.Quantity,
			item.UnitPrice, item.CostPrice, item.Subtotal,
			item.Color, item.Shade, item.ImageURL,
		)
		if err != nil {
			return fmt.Errorf("creating order item for %q: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns an order with its line items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.findOne(ctx, selectOrderSQL+` WHERE id = $1`, id)
}

// FindByPaymentIntent returns the order created for a payment intent, or
// order.ErrNotFound.
func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (*order.Order, error) {
	return r.findOne(ctx, selectOrderSQL+` WHERE payment_intent_id = $1`, intentID)
}

// UpdateStatus writes a new status and returns the updated order snapshot.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, order.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *OrderRepository) findOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("querying order: %w", err)
	}

	itemRows, err := r.pool.Query(ctx, selectOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("querying items of order %q: %w", o.ID, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("querying items of order %q: %w", o.ID, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &status, &paymentStatus, &o.PaymentIntentID,
		&o.Shipping.FirstName, &o.Shipping.LastName, &o.Shipping.Email,
		&o.Shipping.Address, &o.Shipping.City, &o.Shipping.PostalCode,
		&o.Shipping.State, &o.Shipping.Country, &o.Shipping.Phone, &o.BillingAddress,
		&o.Subtotal, &o.ShippingCost, &o.TaxAmount, &o.DiscountAmount, &o.TotalAmount,
		&o.PromoCode, &o.TrackingNumber, &o.Notes, &o.CreatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.LineItem, error) {
	var item order.LineItem
	err := row.Scan(
		&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice,
		&item.CostPrice, &item.Subtotal, &item.Color, &item.Shade, &item.ImageURL,
	)
	return item, err
}
