// Command seed-db prepares a fresh database for local development: runs
// migrations, then seeds a demo user, a couple of promo codes, and an admin
// API key.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lumeshop/storefront-api/internal/domain/auth"
	"github.com/lumeshop/storefront-api/internal/domain/promo"
	"github.com/lumeshop/storefront-api/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedUsers(ctx, postgres.NewUserRepository(pool)); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedPromoCodes(ctx, postgres.NewPromoRepository(pool)); err != nil {
		return errors.Wrap(err, "seed promo codes")
	}
	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedUsers(ctx context.Context, repo *postgres.UserRepository) error {
	slog.Info("seeding demo user")

	if err := repo.Upsert(ctx, "demo-user", "demo@example.com"); err != nil {
		return err
	}

	slog.Info("upserted user", slog.String("id", "demo-user"))
	return nil
}

func seedPromoCodes(ctx context.Context, repo *postgres.PromoRepository) error {
	slog.Info("seeding promo codes")

	now := time.Now()
	minPurchase := decimal.NewFromInt(50)
	maxDiscount := decimal.NewFromInt(15)
	limit := 1000

	codes := []*promo.Code{
		{
			Code:          "GLOW20",
			DiscountType:  promo.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(20),
			MaxDiscount:   &maxDiscount,
			StartsAt:      now,
			EndsAt:        now.AddDate(1, 0, 0),
			UsageLimit:    &limit,
			Active:        true,
		},
		{
			Code:          "WELCOME10",
			DiscountType:  promo.DiscountFixed,
			DiscountValue: decimal.NewFromInt(10),
			MinPurchase:   &minPurchase,
			StartsAt:      now,
			EndsAt:        now.AddDate(1, 0, 0),
			Active:        true,
		},
	}

	for _, c := range codes {
		if err := repo.Upsert(ctx, c); err != nil {
			return err
		}
		slog.Info("upserted promo code", slog.String("code", c.Code))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))

	info := &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: hex.EncodeToString(mac.Sum(nil)),
		Name:    "Default admin key",
		Scopes:  []string{"orders:read", "orders:write"},
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return err
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))
	return nil
}
