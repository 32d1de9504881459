package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/chimeo/pkg/queue"
)

// client is the subset of *asynq.Client the enqueuer uses.
type client interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer submits background work to the asynq queues.
type Enqueuer struct {
	client client
}

func NewEnqueuer(c *asynq.Client) *Enqueuer {
	return &Enqueuer{client: c}
}

// EnqueueFanOut queues delivery of an alert. The task id is derived from the
// alert id, so queueing the same alert twice is a no-op.
func (e *Enqueuer) EnqueueFanOut(ctx context.Context, alertID uuid.UUID) error {
	task, err := NewAlertFanOutTask(AlertFanOutPayload{AlertID: alertID})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(queue.QueueCritical),
		asynq.TaskID(fanOutTaskIDPrefix+alertID.String()),
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue fan-out %s: %w", alertID, err)
	}
	return nil
}

// EnqueueFollowersSync queues a follower count repair for orgID, or for every
// organization when orgID is empty.
func (e *Enqueuer) EnqueueFollowersSync(ctx context.Context, orgID string) error {
	task, err := NewFollowersSyncTask(FollowersSyncPayload{OrganizationID: orgID})
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(queue.QueueLow), asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue followers sync: %w", err)
	}
	return nil
}
