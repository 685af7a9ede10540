package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumeshop/storefront-api/internal/domain/cart"
)

const (
	getCartSQL = `SELECT id, user_id, status FROM carts WHERE id = $1`

	getCartItemsSQL = `SELECT product_id, product_name, unit_price, cost_price,
		discount_percent, quantity, color, shade, image_url
	FROM cart_items WHERE cart_id = $1 ORDER BY id`

	deleteCartSQL = `DELETE FROM carts WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the cart and its lines. Returns cart.ErrNotFound when the cart
// does not exist.
func (r *CartRepository) Get(ctx context.Context, cartID string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("getting cart %q: %w", cartID, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart %q: %w", cartID, err)
	}

	itemRows, err := r.pool.Query(ctx, getCartItemsSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("getting items of cart %q: %w", cartID, err)
	}
	c.Lines, err = pgx.CollectRows(itemRows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of cart %q: %w", cartID, err)
	}
	return &c, nil
}

// Delete removes the cart; line items go with it via ON DELETE CASCADE.
// Deleting a cart that is already gone is not an error.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	if _, err := r.pool.Exec(ctx, deleteCartSQL, cartID); err != nil {
		return fmt.Errorf("deleting cart %q: %w", cartID, err)
	}
	return nil
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c      cart.Cart
		status string
	)
	err := row.Scan(&c.ID, &c.UserID, &status)
	c.Status = cart.Status(status)
	return c, err
}

func scanCartItem(row pgx.CollectableRow) (cart.LineItem, error) {
	var item cart.LineItem
	err := row.Scan(
		&item.ProductID, &item.ProductName, &item.UnitPrice, &item.CostPrice,
		&item.DiscountPercent, &item.Quantity, &item.Color, &item.Shade, &item.ImageURL,
	)
	return item, err
}
