package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lumeshop/storefront-api/internal/domain/promo"
)

const (
	getPromoByCodeSQL = `SELECT code, discount_type, discount_value, min_purchase, max_discount,
		starts_at, ends_at, usage_limit, used_count, active
		FROM promo_codes WHERE UPPER(code) = UPPER($1)`

	// Conditional increment: the usage limit is re-checked inside the UPDATE
	// so two concurrent redemptions cannot push used_count past the limit.
	redeemPromoSQL = `UPDATE promo_codes
		SET used_count = used_count + 1
		WHERE UPPER(code) = UPPER($1)
		  AND (usage_limit IS NULL OR used_count < usage_limit)`

	upsertPromoSQL = `INSERT INTO promo_codes
		(code, discount_type, discount_value, min_purchase, max_discount,
		 starts_at, ends_at, usage_limit, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_purchase = EXCLUDED.min_purchase,
			max_discount = EXCLUDED.max_discount,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			usage_limit = EXCLUDED.usage_limit,
			active = EXCLUDED.active`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// FindByCode looks up a promo code (case-insensitive) and returns the row as
// stored. Returns promo.ErrInvalidOrExpired when no such code exists; window
// and activity checks belong to the validator.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Code, error) {
	rows, err := r.pool.Query(ctx, getPromoByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promo code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanPromoCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrInvalidOrExpired
		}
		return nil, fmt.Errorf("finding promo code %q: %w", code, err)
	}
	return &rule, nil
}

// Redeem increments the usage counter, atomically re-checking the usage
// limit. Returns promo.ErrExhausted when the limit was reached concurrently.
func (r *PromoRepository) Redeem(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, redeemPromoSQL, code)
	if err != nil {
		return fmt.Errorf("redeeming promo code %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrExhausted
	}
	return nil
}

// Upsert writes the promo rule, replacing any existing rule for the same
// code. used_count is deliberately left alone on conflict.
func (r *PromoRepository) Upsert(ctx context.Context, c *promo.Code) error {
	_, err := r.pool.Exec(ctx, upsertPromoSQL,
		c.Code, string(c.DiscountType), c.DiscountValue, c.MinPurchase, c.MaxDiscount,
		c.StartsAt, c.EndsAt, c.UsageLimit, c.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting promo code %q: %w", c.Code, err)
	}
	return nil
}

func scanPromoCode(row pgx.CollectableRow) (promo.Code, error) {
	var (
		c            promo.Code
		discountType string
		minPurchase  *decimal.Decimal
		maxDiscount  *decimal.Decimal
		startsAt     time.Time
		endsAt       time.Time
		usageLimit   *int32
		usedCount    int32
	)
	err := row.Scan(
		&c.Code, &discountType, &c.DiscountValue, &minPurchase, &maxDiscount,
		&startsAt, &endsAt, &usageLimit, &usedCount, &c.Active,
	)
	c.DiscountType = promo.DiscountType(discountType)
	c.MinPurchase = minPurchase
	c.MaxDiscount = maxDiscount
	c.StartsAt = startsAt
	c.EndsAt = endsAt
	if usageLimit != nil {
		limit := int(*usageLimit)
		c.UsageLimit = &limit
	}
	c.UsedCount = int(usedCount)
	return c, err
}
