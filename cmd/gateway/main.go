package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/streamvault/billing-gateway/internal/application/services"
	"github.com/streamvault/billing-gateway/internal/config"
	"github.com/streamvault/billing-gateway/internal/domain"
	"github.com/streamvault/billing-gateway/internal/infrastructure/gateway"
	"github.com/streamvault/billing-gateway/internal/infrastructure/mailer"
	"github.com/streamvault/billing-gateway/internal/infrastructure/persistence"
	"github.com/streamvault/billing-gateway/internal/infrastructure/persistence/postgres"
	"github.com/streamvault/billing-gateway/internal/infrastructure/provisioning"
	"github.com/streamvault/billing-gateway/internal/interfaces/rest/handlers"
	"github.com/streamvault/billing-gateway/internal/interfaces/rest/middleware"
	"github.com/streamvault/billing-gateway/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting billing gateway",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := persistence.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	paymentRepo := postgres.NewPaymentRepository(db)
	eventRepo := postgres.NewWebhookEventRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	registry := gateway.NewRegistry(cfg.Gateways)
	logger.Info("active payment gateways", "providers", registry.Names())

	provisioningClient := provisioning.NewRetryClient(
		provisioning.NewClient(cfg.Provisioning),
		cfg.Provisioning,
	)
	mailClient := mailer.NewMailer(cfg.Mailer)

	fees, err := domain.NewFeePolicy(decimal.NewFromFloat(cfg.Fee.Percent))
	if err != nil {
		logger.Error("invalid fee configuration", "error", err)
		os.Exit(1)
	}
	urls := services.CallbackURLs{
		SuccessURL:  cfg.Checkout.SuccessURL,
		CancelURL:   cfg.Checkout.CancelURL,
		CallbackURL: cfg.Checkout.CallbackBaseURL,
	}

	fulfillment := services.NewFulfillmentService(paymentRepo, provisioningClient, outboxRepo, logger)
	reconciler := services.NewReconciler(paymentRepo, fulfillment, logger)
	walletHook := services.WalletCreditHook(paymentRepo, logger)

	checkoutService := services.NewCheckoutService(registry, paymentRepo, fees, urls, logger)
	webhookService := services.NewWebhookService(registry, paymentRepo, eventRepo, reconciler, walletHook, logger)
	queryService := services.NewQueryService(paymentRepo)

	limiter := rate.NewLimiter(rate.Limit(cfg.Renewal.RatePerSecond), 1)
	renewalService := services.NewRenewalScheduler(
		paymentRepo,
		registry,
		urls,
		fees,
		limiter,
		services.RenewalConfig{
			Provider:   cfg.Renewal.Provider,
			LeadTime:   cfg.Renewal.LeadTime,
			Lookback:   cfg.Renewal.Lookback,
			InvoiceTTL: cfg.Renewal.InvoiceTTL,
			LockLease:  cfg.Renewal.LockLease,
			BatchSize:  cfg.Renewal.BatchSize,
		},
		logger,
	)

	h := handlers.NewHandlers(checkoutService, webhookService, queryService, renewalService, logger)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	router.Use(middleware.Timeout(cfg.Server.ReadTimeout))
	h.Routes(router, cfg.Renewal.JobToken)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	renewalWorker := worker.NewRenewalWorker(renewalService, cfg.Renewal.Interval, logger)
	statusPoller := worker.NewStatusPoller(
		paymentRepo,
		registry,
		reconciler,
		walletHook,
		cfg.Worker.PollInterval,
		cfg.Worker.PollMinAge,
		cfg.Worker.PollBatchSize,
		logger,
	)
	outboxWorker := worker.NewOutboxWorker(
		outboxRepo,
		mailClient,
		cfg.Worker.OutboxInterval,
		cfg.Worker.OutboxBatchSize,
		cfg.Worker.OutboxMaxAttempts,
		logger,
	)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go renewalWorker.Start(workerCtx)
	go statusPoller.Start(workerCtx)
	go outboxWorker.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
