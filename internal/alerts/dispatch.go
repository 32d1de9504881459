package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/push"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// FanOutResult counts outcomes across all recipients of one alert.
type FanOutResult struct {
	Recipients int `json:"recipients"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// ResolveRecipients returns every follower of the alert's organization except
// its author. Group alerts go only to followers who opted in to the group.
func (s *Service) ResolveRecipients(ctx context.Context, alert *models.OrganizationAlert) ([]uuid.UUID, error) {
	ids, err := s.followers.FollowerIDs(ctx, alert.OrganizationID)
	if err != nil {
		return nil, err
	}

	candidates := ids[:0]
	for _, id := range ids {
		if id != alert.PostedByUserID {
			candidates = append(candidates, id)
		}
	}

	if !alert.IsGroupScoped() {
		return candidates, nil
	}

	optedIn, err := s.followers.OptedInFollowers(ctx, alert.OrganizationID, *alert.GroupID, candidates)
	if err != nil {
		return nil, fmt.Errorf("loading group preferences: %w", err)
	}

	out := make([]uuid.UUID, 0, len(optedIn))
	for _, id := range candidates {
		if optedIn[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// Dispatch delivers alert to one user and records the outcome. A user without
// a push token, or whose preferences exclude the alert, is skipped without
// error.
func (s *Service) Dispatch(ctx context.Context, userID uuid.UUID, alert *models.OrganizationAlert) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("dispatch to %s: user not found", userID)
		}
		return err
	}

	entry, err := s.deliver(ctx, &user, alert, push.ForAlert(alert))
	if logErr := s.db.WithContext(ctx).Create(&entry).Error; logErr != nil {
		s.logger.Warn("recording delivery failed", "alert_id", alert.ID, "user_id", userID, "error", logErr)
	}
	return err
}

// deliver applies preferences and calls the provider. It never touches the
// delivery log so that FanOut can batch those writes.
func (s *Service) deliver(ctx context.Context, user *models.User, alert *models.OrganizationAlert, msg push.Message) (models.DeliveryLog, error) {
	entry := models.DeliveryLog{AlertID: alert.ID, UserID: user.ID}

	if reason := skipReason(user, alert, s.now()); reason != "" {
		entry.Status = models.DeliverySkipped
		entry.Reason = reason
		s.metrics.Deliveries.WithLabelValues(string(models.DeliverySkipped)).Inc()
		s.logger.Debug("delivery skipped", "alert_id", alert.ID, "user_id", user.ID, "reason", reason)
		return entry, nil
	}

	err := s.push.Send(ctx, user.PushToken, msg)
	if err != nil {
		entry.Status = models.DeliveryFailed
		entry.Reason = err.Error()
		if errors.Is(err, push.ErrUnregistered) {
			entry.Reason = ReasonUnregistered
			s.clearPushToken(ctx, user.ID)
		}
		s.metrics.Deliveries.WithLabelValues(string(models.DeliveryFailed)).Inc()
		return entry, fmt.Errorf("push to %s: %w", user.ID, err)
	}

	entry.Status = models.DeliverySent
	s.metrics.Deliveries.WithLabelValues(string(models.DeliverySent)).Inc()
	return entry, nil
}

func (s *Service) clearPushToken(ctx context.Context, userID uuid.UUID) {
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("push_token", "").Error
	if err != nil {
		s.logger.Warn("clearing push token failed", "user_id", userID, "error", err)
	}
}

// FanOut dispatches alert to every recipient in parallel. Individual delivery
// failures are counted and logged but never stop the batch; only failing to
// resolve recipients is returned as an error.
func (s *Service) FanOut(ctx context.Context, alert *models.OrganizationAlert) (FanOutResult, error) {
	start := time.Now()
	defer func() { s.metrics.FanOutDuration.Observe(time.Since(start).Seconds()) }()

	recipients, err := s.ResolveRecipients(ctx, alert)
	if err != nil {
		return FanOutResult{}, fmt.Errorf("resolving recipients: %w", err)
	}
	var result FanOutResult
	if len(recipients) == 0 {
		return result, nil
	}

	// Deleted accounts drop out here, so they are not counted as recipients.
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", recipients).Find(&users).Error; err != nil {
		return result, fmt.Errorf("loading recipients: %w", err)
	}
	result.Recipients = len(users)
	if len(users) == 0 {
		return result, nil
	}

	msg := push.ForAlert(alert)
	entries := make([]models.DeliveryLog, len(users))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i := range users {
		i := i
		user := &users[i]
		g.Go(func() error {
			entry, err := s.deliver(gctx, user, alert, msg)
			entries[i] = entry

			mu.Lock()
			defer mu.Unlock()
			switch entry.Status {
			case models.DeliverySent:
				result.Sent++
			case models.DeliverySkipped:
				result.Skipped++
			default:
				result.Failed++
				s.logger.Warn("delivery failed", "alert_id", alert.ID, "user_id", user.ID, "error", err)
			}
			// Never return err: one bad token must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	if err := s.db.WithContext(ctx).CreateInBatches(entries, 200).Error; err != nil {
		s.logger.Warn("recording deliveries failed", "alert_id", alert.ID, "error", err)
	}

	s.logger.Info("fan-out complete",
		"alert_id", alert.ID,
		"recipients", result.Recipients,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result, nil
}

// FanOutByID loads an alert and fans it out. Deleted alerts are ignored.
func (s *Service) FanOutByID(ctx context.Context, alertID uuid.UUID) (FanOutResult, error) {
	alert, err := s.Get(ctx, alertID)
	if err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			s.logger.Info("fan-out skipped, alert gone", "alert_id", alertID)
			return FanOutResult{}, nil
		}
		return FanOutResult{}, err
	}
	return s.FanOut(ctx, alert)
}
