package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/settlement/api"
	"github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/auth"
	"github.com/frahmantamala/settlement/internal/catalog"
	catalogPostgres "github.com/frahmantamala/settlement/internal/catalog/postgres"
	"github.com/frahmantamala/settlement/internal/checkout"
	"github.com/frahmantamala/settlement/internal/core/events"
	"github.com/frahmantamala/settlement/internal/entitlement"
	"github.com/frahmantamala/settlement/internal/objectstore"
	"github.com/frahmantamala/settlement/internal/order"
	orderPostgres "github.com/frahmantamala/settlement/internal/order/postgres"
	"github.com/frahmantamala/settlement/internal/paymentgateway"
	"github.com/frahmantamala/settlement/internal/pix"
	"github.com/frahmantamala/settlement/internal/proof"
	"github.com/frahmantamala/settlement/internal/transport/openapi"
	"github.com/frahmantamala/settlement/internal/transport/rest"
	"github.com/frahmantamala/settlement/internal/webhook"
	webhookPostgres "github.com/frahmantamala/settlement/internal/webhook/postgres"
	"github.com/frahmantamala/settlement/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v75/client"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server for checkout, PIX, proofs and provider webhooks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer(cmd.Context())
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Redis  *redis.Client
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "env", deps.Config.App.Env)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.close()
			os.Exit(1)
		}
	}

	deps.close()
	deps.Logger.Info("Server stopped")
}

func (d *Dependencies) close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.App.Env, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initDB(ctx, cfg.Database, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gdb, err := initGorm(db, cfg.App.Env)
	if err != nil {
		return nil, err
	}

	// Event bus
	bus := events.NewEventBus(lg)
	order.NewEventHandler(lg).RegisterEventHandlers(bus)

	// Settlement core
	tx := orderPostgres.NewTxManager(gdb)
	processor := order.NewProcessor(tx, entitlement.NewGranter(lg), bus, lg)
	catalogService := catalog.NewService(catalogPostgres.NewCatalogRepository(gdb), lg)

	// Providers
	stripeAPI := &client.API{}
	stripeAPI.Init(cfg.Stripe.SecretKey, nil)

	mpClient := paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:     cfg.MercadoPago.BaseURL,
		AccessToken: cfg.MercadoPago.AccessToken,
		Timeout:     cfg.MercadoPago.Timeout,
	}, lg)

	store, err := objectstore.NewS3Store(ctx, objectstore.Config{
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UsePathStyle:    cfg.Storage.UsePathStyle,
	}, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	var (
		rdb    *redis.Client
		dedupe webhook.Deduper = webhook.NopDeduper{}
		extra                  = map[string]rest.Pinger{}
	)
	if cfg.Cache.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		dedupe = webhook.NewRedisDeduper(rdb, cfg.Cache.DedupeTTL)
		extra["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	schema, err := openapi.NewValidator(ctx, api.OpenAPI, rest.APIPrefix, lg)
	if err != nil {
		return nil, err
	}

	// Services
	checkoutService := checkout.NewService(checkout.Config{
		Env:                        cfg.App.Env,
		Currency:                   cfg.Checkout.Currency,
		SuccessURL:                 cfg.Checkout.SuccessURL,
		CancelURL:                  cfg.Checkout.CancelURL,
		MercadoPagoNotificationURL: cfg.MercadoPago.NotificationURL,
	}, catalogService, stripeAPI.CheckoutSessions, mpClient, tx, lg)

	pixService := pix.NewService(pix.Config{
		Key:          cfg.Pix.Key,
		MerchantName: cfg.Pix.MerchantName,
		MerchantCity: cfg.Pix.MerchantCity,
		Description:  cfg.Pix.Description,
		Currency:     cfg.Checkout.Currency,
		TTL:          cfg.Pix.TTL,
	}, catalogService, tx, lg)

	intake := proof.NewIntake(proof.IntakeConfig{
		MaxBytes:  cfg.Proofs.MaxBytes,
		KeyPrefix: cfg.Proofs.KeyPrefix,
	}, tx, store, bus, lg)
	reviewer := proof.NewReviewer(tx, processor, bus, lg)

	webhookLogs := webhookPostgres.NewLogRepository(gdb)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Handlers{
		Health:   rest.NewHealthHandler(db.DB, extra),
		Auth:     auth.NewMiddleware(verifier, cfg.Auth.AdminRoles, lg),
		Schema:   schema,
		Checkout: checkout.NewHandler(checkoutService, lg),
		Pix:      pix.NewHandler(pixService, lg),
		Proof:    proof.NewHandler(intake, reviewer, cfg.Proofs.MaxBytes, lg),
		Stripe: webhook.NewStripeHandler(webhook.StripeConfig{
			WebhookSecret:   cfg.Stripe.WebhookSecret,
			Tolerance:       cfg.Stripe.WebhookTolerance,
			AllowTestEvents: cfg.Stripe.AllowTestEvents,
			Env:             cfg.App.Env,
			Currency:        cfg.Checkout.Currency,
		}, processor, webhookLogs, dedupe, lg),
		MercadoPago: webhook.NewMercadoPagoHandler(mpClient, processor, tx.Repos().MercadoPago(), webhookLogs, dedupe, lg),
	}, lg)

	return &Dependencies{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Router: router,
		Logger: lg,
	}, nil
}

func newVerifier(ctx context.Context, cfg internal.AuthConfig) (auth.Verifier, error) {
	if cfg.Mode == "oidc" {
		return auth.NewOIDCVerifier(ctx, cfg.Issuer, cfg.ClientID, cfg.RoleClaim)
	}
	return auth.NewHMACVerifier(cfg.JWTSecret, cfg.Issuer, cfg.Audience, cfg.RoleClaim), nil
}
