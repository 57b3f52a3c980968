package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/songforge/creditd/internal/billing"
	"github.com/songforge/creditd/internal/config"
	"github.com/songforge/creditd/internal/handler"
	appMiddleware "github.com/songforge/creditd/internal/middleware"
	"github.com/songforge/creditd/internal/notify"
	"github.com/songforge/creditd/internal/repository"
	"github.com/songforge/creditd/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		slog.Error("migration error", "error", err)
		os.Exit(1)
	}

	db, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database error", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Plan catalog is data, loaded once so every component shares one
	// plan→credit mapping.
	catalog, err := repository.NewPlanRepository(db).LoadCatalog(ctx)
	if err != nil {
		slog.Error("plan catalog error", "error", err)
		os.Exit(1)
	}

	var billingClient billing.Client
	if cfg.BillingBaseURL != "" {
		billingClient = billing.NewHTTPClient(cfg.BillingBaseURL, cfg.BillingTimeout)
	} else {
		slog.Warn("no billing URL configured, subscription quotas read as zero")
		billingClient = billing.Disabled{}
	}

	var notifier notify.Notifier
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.NotifyExchange)
		if err != nil {
			slog.Error("amqp error", "error", err)
			os.Exit(1)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
		slog.Info("notification broker connected")
	} else {
		notifier = notify.LogNotifier{}
	}

	// Repositories
	packageRepo := repository.NewPackageRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	transferRepo := repository.NewTransferRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Services
	ledgerSvc := service.NewLedgerService(packageRepo, catalog)
	quotaSvc := service.NewQuotaService(billingClient, orderRepo, cfg.BillingTimeout)
	voucherSvc := service.NewVoucherService(voucherRepo, catalog)
	transferSvc := service.NewTransferService(transferRepo, ledgerSvc, userRepo, notifier, cfg.TransferCooldown, cfg.TransferTTL)
	aggregatorSvc := service.NewAggregatorService(ledgerSvc, quotaSvc, orderRepo)

	// Handlers
	healthHandler := handler.NewHealthHandler(db)
	plansHandler := handler.NewPlansHandler(catalog)
	creditsHandler := handler.NewCreditsHandler(aggregatorSvc)
	voucherHandler := handler.NewVoucherHandler(voucherSvc)
	transferHandler := handler.NewTransferHandler(transferSvc)
	webhookHandler := handler.NewWebhookHandler(ledgerSvc, cfg.PaymentWebhookSecret)
	adminHandler := handler.NewAdminHandler(voucherSvc, ledgerSvc)

	r := chi.NewRouter()

	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limiter (20 req/sec per IP, burst of 40)
	globalRL := appMiddleware.NewRateLimiter(20, 40)
	r.Use(globalRL.Middleware())

	// Public routes
	r.Get("/health", healthHandler.Check)
	r.Get("/api/plans", plansHandler.List)
	r.Post("/api/payment/webhook", webhookHandler.PaymentSettled)

	// Voucher validation previews a discount for anonymous browsers
	// too; redemption below requires auth.
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.OptionalAuth(cfg.JWTSecret))
		r.Post("/api/vouchers/validate", voucherHandler.Validate)
	})

	// Protected API routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(cfg.JWTSecret))

		r.Get("/api/credits/availability", creditsHandler.Availability)
		r.Post("/api/credits/reserve", creditsHandler.Reserve)

		r.Get("/api/transfers/{code}", transferHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.StrictRateLimiter())
			r.Post("/api/vouchers/redeem", voucherHandler.Redeem)
			r.Post("/api/transfers", transferHandler.Create)
			r.Post("/api/transfers/{code}/accept", transferHandler.Accept)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.AdminOnly)
			r.Post("/api/admin/vouchers", adminHandler.CreateVoucher)
			r.Delete("/api/admin/vouchers/{id}", adminHandler.DeactivateVoucher)
			r.Post("/api/admin/credits/grant", adminHandler.GrantCredits)
			r.Post("/api/admin/credits/preview", adminHandler.GrantPreview)
		})
	})

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	slog.Info("creditd listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
