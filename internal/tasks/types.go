package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeAlertFanOut    = "alert:fanout"
	TypeSchedulerTick  = "scheduler:tick"
	TypeFollowersSync  = "followers:sync"
	fanOutTaskIDPrefix = "fanout:"
)

// AlertFanOutPayload identifies the alert to deliver to followers.
type AlertFanOutPayload struct {
	AlertID uuid.UUID `json:"alert_id"`
}

func NewAlertFanOutTask(payload AlertFanOutPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAlertFanOut, data), nil
}

// SchedulerTickPayload is empty - the tick checks every scheduled alert
type SchedulerTickPayload struct{}

func NewSchedulerTickTask() *asynq.Task {
	return asynq.NewTask(TypeSchedulerTick, nil)
}

// FollowersSyncPayload limits the sync to one organization. An empty
// OrganizationID syncs all of them.
type FollowersSyncPayload struct {
	OrganizationID string `json:"organization_id,omitempty"`
}

func NewFollowersSyncTask(payload FollowersSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeFollowersSync, data), nil
}
