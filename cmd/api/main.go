package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/docverify"
	"github.com/KHABI-TEQ/Backend-sub001/internal/email"
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	apphttp "github.com/KHABI-TEQ/Backend-sub001/internal/http"
	"github.com/KHABI-TEQ/Backend-sub001/internal/http/router"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections"
	"github.com/KHABI-TEQ/Backend-sub001/internal/notification"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	paysvc "github.com/KHABI-TEQ/Backend-sub001/internal/payments/service"
	"github.com/KHABI-TEQ/Backend-sub001/internal/storage"
	"github.com/KHABI-TEQ/Backend-sub001/internal/subscriptions"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
	"github.com/KHABI-TEQ/Backend-sub001/platform/db"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"
	"github.com/KHABI-TEQ/Backend-sub001/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// Object storage for letters of intention (MinIO)
	loiStore := initLOIStore(ctx, cfg, log)

	// Paystack gateway client, shared by every paid flow
	paystack := gateway.NewPaystackClient(cfg)

	// Transactions ledger: one row per expected payment
	txns := transactions.New(pool)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events (not HTTP-facing for
	// delivery; it still mounts the in-app notification routes)
	notificationModule := notification.NewModule(pool, sender, log)
	notificationModule.RegisterHandlers(eventBus)

	inspectionsModule := inspections.NewModule(pool, txns, paystack, eventBus, cfg, loiStore, val, log)
	subscriptionsModule := subscriptions.NewModule(pool, txns, paystack, eventBus, cfg, val, log)
	docverifyModule := docverify.NewModule(pool, txns, paystack, eventBus, cfg, val, log)

	// Payment effect dispatcher routes verified references to the module that
	// owns the paid entity
	dispatcher := paysvc.NewDispatcher(txns, paystack,
		inspectionsModule.Service(), subscriptionsModule.Service(), docverifyModule.Service(), log)

	// Auto-renew charges re-enter through the same dispatcher
	subscriptionsModule.Service().SetDispatcher(dispatcher)

	paymentsModule := payments.NewModule(dispatcher, cfg, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			inspectionsModule,
			subscriptionsModule,
			docverifyModule,
			paymentsModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initLOIStore builds the MinIO-backed document store when configured.
// Without it the LOI presign endpoints answer 503 and external document URLs
// still work.
func initLOIStore(ctx context.Context, cfg *config.Config, log *logger.Logger) storage.DocumentStore {
	if !cfg.IsMinIOEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; LOI document uploads disabled")
		return nil
	}

	store, err := storage.NewMinIOStore(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}

	if err := withRetry(ctx, log, "ensure LOI bucket", 5, 2*time.Second, func() error {
		return store.EnsureBucket(ctx)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinioBucketLOIDocuments())
		panic("failed to ensure storage bucket exists: " + err.Error())
	}

	log.Info("storage service initialized", "loiDocumentsBucket", cfg.GetMinioBucketLOIDocuments())
	return store
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
