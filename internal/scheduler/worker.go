package scheduler

import (
	"context"
	"fmt"

	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	subsvc "github.com/KHABI-TEQ/Backend-sub001/internal/subscriptions/service"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// SubscriptionSweeper runs the periodic subscription maintenance cycle.
type SubscriptionSweeper interface {
	SweepExpiry(ctx context.Context) (subsvc.SweepStats, error)
}

// InspectionSweeper removes bookings stuck awaiting payment past the TTL.
type InspectionSweeper interface {
	SweepStalePending(ctx context.Context) (int64, error)
}

type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	bus         events.Bus
	subs        SubscriptionSweeper
	inspections InspectionSweeper
	log         *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, bus events.Bus, subs SubscriptionSweeper, inspections InspectionSweeper, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:      server,
		mux:         mux,
		bus:         bus,
		subs:        subs,
		inspections: inspections,
		log:         log,
	}

	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)
	mux.HandleFunc(TaskSubscriptionExpirySweep, w.handleSubscriptionExpirySweep)
	mux.HandleFunc(TaskInspectionStaleSweep, w.handleInspectionStaleSweep)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
		Kind:      payload.Kind,
	})
}

func (w *Worker) handleSubscriptionExpirySweep(ctx context.Context, _ *asynq.Task) error {
	stats, err := w.subs.SweepExpiry(ctx)
	if err != nil {
		return err
	}

	if stats.Warned > 0 || stats.Renewed > 0 || stats.Expired > 0 {
		w.log.Info("subscription expiry sweep completed",
			"warned", stats.Warned, "renewed", stats.Renewed, "expired", stats.Expired)
	}
	return nil
}

func (w *Worker) handleInspectionStaleSweep(ctx context.Context, _ *asynq.Task) error {
	deleted, err := w.inspections.SweepStalePending(ctx)
	if err != nil {
		return err
	}

	if deleted > 0 {
		w.log.Info("stale pending inspections removed", "deleted", deleted)
	}
	return nil
}
