// Package scheduler runs background work through an asynq task queue:
// outbox deliveries, subscription expiry sweeps, and stale inspection
// cleanup.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNotificationOutboxDue = "notification.outbox.due"

const TaskSubscriptionExpirySweep = "subscriptions.expiry.sweep"

const TaskInspectionStaleSweep = "inspections.stale_pending.sweep"

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
	Kind     string `json:"kind"`
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}

// The sweep tasks carry no payload; each run scans the whole table.

func NewSubscriptionExpirySweepTask() *asynq.Task {
	return asynq.NewTask(TaskSubscriptionExpirySweep, nil)
}

func NewInspectionStaleSweepTask() *asynq.Task {
	return asynq.NewTask(TaskInspectionStaleSweep, nil)
}
