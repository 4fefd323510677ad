package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubSchedulerConfig struct {
	redisURL string
	queue    string
}

func (c stubSchedulerConfig) GetRedisURL() string       { return c.redisURL }
func (c stubSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (c stubSchedulerConfig) GetAsynqQueueName() string { return c.queue }
func (c stubSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func TestClientRequiresRedisURL(t *testing.T) {
	_, err := NewClient(stubSchedulerConfig{})
	require.Error(t, err)
}

func TestClientEnqueuesSweepTasks(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(stubSchedulerConfig{redisURL: "redis://" + mr.Addr(), queue: "test"})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.EnqueueSubscriptionExpirySweep(ctx))
	require.NoError(t, client.EnqueueInspectionStaleSweep(ctx))

	// A second enqueue within the uniqueness window is silently dropped.
	require.NoError(t, client.EnqueueSubscriptionExpirySweep(ctx))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()

	pending, err := inspector.ListPendingTasks("test")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	types := map[string]bool{}
	for _, task := range pending {
		types[task.Type] = true
	}
	require.True(t, types[TaskSubscriptionExpirySweep])
	require.True(t, types[TaskInspectionStaleSweep])
}

func TestNotificationOutboxDuePayloadRoundTrip(t *testing.T) {
	task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
		OutboxID: "0b5bfa2e-7f8f-4f7e-9a59-2f4f0a8e8f10",
		Kind:     "inspections.payment.succeeded",
	})
	require.NoError(t, err)
	require.Equal(t, TaskNotificationOutboxDue, task.Type())

	payload, err := ParseNotificationOutboxDuePayload(task)
	require.NoError(t, err)
	require.Equal(t, "0b5bfa2e-7f8f-4f7e-9a59-2f4f0a8e8f10", payload.OutboxID)
	require.Equal(t, "inspections.payment.succeeded", payload.Kind)
}
