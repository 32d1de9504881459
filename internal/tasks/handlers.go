package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/chimeo/internal/alerts"
	"github.com/hugh/chimeo/internal/followers"
)

type Handler struct {
	alerts    *alerts.Service
	followers *followers.Store
	logger    *slog.Logger
	now       func() time.Time
}

func NewHandler(alertService *alerts.Service, followerStore *followers.Store, logger *slog.Logger) *Handler {
	return &Handler{
		alerts:    alertService,
		followers: followerStore,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeAlertFanOut, h.HandleAlertFanOut)
	mux.HandleFunc(TypeSchedulerTick, h.HandleSchedulerTick)
	mux.HandleFunc(TypeFollowersSync, h.HandleFollowersSync)
}

// HandleAlertFanOut delivers an alert to its recipients. Per-recipient
// failures are recorded by the alert service and never retried here.
func (h *Handler) HandleAlertFanOut(ctx context.Context, t *asynq.Task) error {
	var payload AlertFanOutPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("starting alert fan-out", "alert_id", payload.AlertID)

	result, err := h.alerts.FanOutByID(ctx, payload.AlertID)
	if err != nil {
		h.logger.Error("alert fan-out failed", "alert_id", payload.AlertID, "error", err)
		return err
	}

	h.logger.Info("alert fan-out finished",
		"alert_id", payload.AlertID,
		"recipients", result.Recipients,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return nil
}

// HandleSchedulerTick posts scheduled alerts that have come due.
func (h *Handler) HandleSchedulerTick(ctx context.Context, t *asynq.Task) error {
	posted, err := h.alerts.RunDue(ctx, h.now())
	if err != nil {
		return fmt.Errorf("running due schedules: %w", err)
	}
	if posted > 0 {
		h.logger.Info("scheduled alerts posted", "count", posted)
	}
	return nil
}

// HandleFollowersSync recomputes cached follower counts from follow edges.
func (h *Handler) HandleFollowersSync(ctx context.Context, t *asynq.Task) error {
	var payload FollowersSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
		}
	}

	if payload.OrganizationID != "" {
		if _, err := h.followers.SyncFollowers(ctx, payload.OrganizationID); err != nil {
			return fmt.Errorf("syncing followers for %s: %w", payload.OrganizationID, err)
		}
		return nil
	}

	fixed, err := h.followers.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("syncing followers: %w", err)
	}
	h.logger.Info("follower counts synced", "fixed", fixed)
	return nil
}
