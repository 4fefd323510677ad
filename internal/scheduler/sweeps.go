package scheduler

import (
	"context"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"
)

const defaultSweepInterval = time.Hour

// PeriodicSweeps enqueues the recurring maintenance tasks on a fixed
// interval. The worker side does the actual work, so several scheduler
// instances can run this safely; task uniqueness absorbs the overlap.
type PeriodicSweeps struct {
	client   *Client
	log      *logger.Logger
	interval time.Duration
}

func NewPeriodicSweeps(client *Client, log *logger.Logger, interval time.Duration) *PeriodicSweeps {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &PeriodicSweeps{client: client, log: log, interval: interval}
}

func (p *PeriodicSweeps) Run(ctx context.Context) {
	if p == nil || p.client == nil {
		return
	}

	p.enqueue(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.enqueue(ctx)
		}
	}
}

func (p *PeriodicSweeps) enqueue(ctx context.Context) {
	if err := p.client.EnqueueSubscriptionExpirySweep(ctx); err != nil {
		p.log.Warn("failed to enqueue subscription expiry sweep", "error", err)
	}
	if err := p.client.EnqueueInspectionStaleSweep(ctx); err != nil {
		p.log.Warn("failed to enqueue stale inspection sweep", "error", err)
	}
}
