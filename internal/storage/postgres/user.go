package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumeshop/storefront-api/internal/domain/order"
)

const (
	saveAddressSQL = `UPDATE users SET
		first_name = $2, last_name = $3, address = $4, city = $5,
		postal_code = $6, state = $7, country = $8, phone = $9
		WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, email) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`
)

// UserRepository persists user profile data backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// SaveAddress writes the shipping address onto the user profile. Called as a
// best-effort post-order task when the customer opted in at checkout.
func (r *UserRepository) SaveAddress(ctx context.Context, userID string, s order.ShippingDetails) error {
	_, err := r.pool.Exec(ctx, saveAddressSQL,
		userID, s.FirstName, s.LastName, s.Address, s.City,
		s.PostalCode, s.State, s.Country, s.Phone,
	)
	if err != nil {
		return fmt.Errorf("saving address for user %q: %w", userID, err)
	}
	return nil
}

// Upsert creates a user record if it does not exist. Used by the seed tool.
func (r *UserRepository) Upsert(ctx context.Context, id, email string) error {
	if _, err := r.pool.Exec(ctx, upsertUserSQL, id, email); err != nil {
		return fmt.Errorf("upserting user %q: %w", id, err)
	}
	return nil
}
