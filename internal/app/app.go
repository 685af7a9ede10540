// Package app wires the storefront API together: configuration, storage,
// payment gateway, side-effect collaborators, HTTP surface, and lifecycle.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lumeshop/storefront-api/internal/domain/checkout"
	"github.com/lumeshop/storefront-api/internal/domain/payment"
	"github.com/lumeshop/storefront-api/internal/domain/promo"
	"github.com/lumeshop/storefront-api/internal/events"
	"github.com/lumeshop/storefront-api/internal/gateway/stripeintent"
	"github.com/lumeshop/storefront-api/internal/handler"
	"github.com/lumeshop/storefront-api/internal/notify"
	"github.com/lumeshop/storefront-api/internal/storage/postgres"
	"github.com/lumeshop/storefront-api/pkg/health"
	"github.com/lumeshop/storefront-api/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	params, err := cfg.Pricing.Params()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadiness("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLiveness("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	promoRepo := postgres.NewPromoRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Payment gateway.
	var gateway payment.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = stripeintent.New(cfg.Stripe.SecretKey, cfg.Stripe.Currency)
	} else {
		lg.Warn("Stripe secret key not set, card payments will fail")
		gateway = unavailableGateway{}
	}

	// Optional post-order collaborators.
	effects := checkout.SideEffects{
		Addresses: userRepo,
		Carts:     cartRepo,
		Promos:    promoRepo,
	}
	if cfg.SMTP.Host != "" {
		effects.Notifier = notify.NewEmailSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Password: cfg.SMTP.Password,
		}, lg.Named("email"))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewPublisher(cfg.Kafka.Brokers)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		effects.Events = publisher
	}

	// Domain services.
	promoValidator := promo.NewRepoValidator(promoRepo)
	runner := checkout.NewRunner(lg.Named("postorder"), effects)
	checkoutSvc := checkout.NewService(params, promoValidator, gateway, cartRepo, orderRepo, runner)

	// HTTP surface.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(checkoutSvc, promoValidator, orderRepo, apikeyRepo, []byte(cfg.APIKeyPepper)).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api"),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// unavailableGateway stands in when no Stripe key is configured, so cash
// checkouts keep working in environments without payment credentials.
type unavailableGateway struct{}

func (unavailableGateway) CreateIntent(context.Context, decimal.Decimal) (*payment.Intent, error) {
	return nil, errors.New("payment gateway is not configured")
}

func (unavailableGateway) RetrieveIntent(context.Context, string) (*payment.Intent, error) {
	return nil, errors.New("payment gateway is not configured")
}
