package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/docverify"
	"github.com/KHABI-TEQ/Backend-sub001/internal/email"
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections"
	"github.com/KHABI-TEQ/Backend-sub001/internal/notification"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	paysvc "github.com/KHABI-TEQ/Backend-sub001/internal/payments/service"
	"github.com/KHABI-TEQ/Backend-sub001/internal/scheduler"
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

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	val := validator.New()

	// Worker-side wiring: the sweeps need the full payment flow (renewal
	// charges re-enter through the dispatcher), so the module graph matches
	// the API process minus the HTTP layer.
	notificationModule := notification.NewModule(pool, sender, log)
	notificationModule.RegisterHandlers(eventBus)

	paystack := gateway.NewPaystackClient(cfg)
	txns := transactions.New(pool)

	inspectionsModule := inspections.NewModule(pool, txns, paystack, eventBus, cfg, nil, val, log)
	subscriptionsModule := subscriptions.NewModule(pool, txns, paystack, eventBus, cfg, val, log)
	docverifyModule := docverify.NewModule(pool, txns, paystack, eventBus, cfg, val, log)

	dispatcher := paysvc.NewDispatcher(txns, paystack,
		inspectionsModule.Service(), subscriptionsModule.Service(), docverifyModule.Service(), log)
	subscriptionsModule.Service().SetDispatcher(dispatcher)

	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; running in-process maintenance loop")
		runInProcess(ctx, cfg, notificationModule, subscriptionsModule, inspectionsModule, log)
		return
	}

	outboxDispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = outboxDispatcher.Close() }()
	go outboxDispatcher.Run(ctx)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	sweepInterval := getDurationEnv("SWEEP_INTERVAL", time.Hour)
	go scheduler.NewPeriodicSweeps(client, log, sweepInterval).Run(ctx)

	worker, err := scheduler.NewWorker(cfg, eventBus,
		subscriptionsModule.Service(), inspectionsModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

// runInProcess drains the outbox and runs the sweeps on plain tickers when
// no task queue is available.
func runInProcess(ctx context.Context, cfg *config.Config, notif *notification.Module, subs *subscriptions.Module, insp *inspections.Module, log *logger.Logger) {
	outboxTicker := time.NewTicker(2 * time.Second)
	defer outboxTicker.Stop()

	sweepTicker := time.NewTicker(getDurationEnv("SWEEP_INTERVAL", time.Hour))
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-outboxTicker.C:
			if _, err := notif.ProcessOutbox(ctx, 50); err != nil {
				log.Warn("outbox processing failed", "error", err)
			}
		case <-sweepTicker.C:
			if stats, err := subs.Service().SweepExpiry(ctx); err != nil {
				log.Warn("subscription expiry sweep failed", "error", err)
			} else if stats.Warned > 0 || stats.Renewed > 0 || stats.Expired > 0 {
				log.Info("subscription expiry sweep completed",
					"warned", stats.Warned, "renewed", stats.Renewed, "expired", stats.Expired)
			}
			if deleted, err := insp.Service().SweepStalePending(ctx); err != nil {
				log.Warn("stale inspection sweep failed", "error", err)
			} else if deleted > 0 {
				log.Info("stale pending inspections removed", "deleted", deleted)
			}
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
