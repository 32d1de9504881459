package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/pkg/util"
	"gorm.io/gorm"
)

var ErrScheduleNotFound = fmt.Errorf("%w: scheduled alert not found", apperr.ErrNotFound)

type ScheduleInput struct {
	PostInput
	ScheduledFor time.Time
	Recurrence   string
}

func (s *Service) CreateSchedule(ctx context.Context, input ScheduleInput) (*models.ScheduledAlert, error) {
	org, id, err := s.directory.RequireAdmin(ctx, input.OrganizationID)
	if err != nil {
		return nil, err
	}
	if err := input.PostInput.validate(); err != nil {
		return nil, err
	}
	if !input.ScheduledFor.After(s.now()) {
		return nil, apperr.Validation("scheduled_for must be in the future")
	}
	if input.Recurrence != "" {
		if err := util.ValidateRecurrence(input.Recurrence); err != nil {
			return nil, apperr.Validation("%v", err)
		}
	}
	if input.GroupID != nil {
		if _, err := s.directory.GetGroup(ctx, org.ID, *input.GroupID); err != nil {
			return nil, err
		}
	}

	sched := &models.ScheduledAlert{
		OrganizationID: org.ID,
		GroupID:        input.GroupID,
		Title:          input.Title,
		Description:    input.Description,
		Type:           input.Type,
		Severity:       input.Severity,
		Location:       org.Location,
		ImageURLs:      input.ImageURLs,
		PostedBy:       id.Email,
		PostedByUserID: id.UserID,
		ScheduledFor:   input.ScheduledFor.UTC(),
		Recurrence:     input.Recurrence,
		IsEnabled:      true,
		NextRunAt:      input.ScheduledFor.UTC(),
	}
	if input.Location != nil {
		sched.Location = *input.Location
	}

	if err := s.db.WithContext(ctx).Create(sched).Error; err != nil {
		return nil, fmt.Errorf("saving scheduled alert: %w", err)
	}
	s.logger.Info("alert scheduled", "schedule_id", sched.ID, "org_id", org.ID, "next_run_at", sched.NextRunAt)
	return sched, nil
}

func (s *Service) ListSchedules(ctx context.Context, orgID string) ([]models.ScheduledAlert, error) {
	if _, _, err := s.directory.RequireAdmin(ctx, orgID); err != nil {
		return nil, err
	}
	var out []models.ScheduledAlert
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("next_run_at ASC").
		Find(&out).Error
	return out, err
}

func (s *Service) DeleteSchedule(ctx context.Context, orgID string, scheduleID uuid.UUID) error {
	if _, _, err := s.directory.RequireAdmin(ctx, orgID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", scheduleID, orgID).
		Delete(&models.ScheduledAlert{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// RunDue posts every enabled schedule whose next run is at or before now.
// Each schedule is claimed by advancing next_run_at (or disabling a one-shot)
// before posting, so concurrent workers never post the same run twice.
func (s *Service) RunDue(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()

	var due []models.ScheduledAlert
	if err := s.db.WithContext(ctx).
		Where("is_enabled = ? AND next_run_at <= ?", true, now).
		Order("next_run_at ASC").
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("loading due schedules: %w", err)
	}

	posted := 0
	for i := range due {
		sched := &due[i]
		claimed, err := s.claim(ctx, sched, now)
		if err != nil {
			s.logger.Error("claiming schedule failed", "schedule_id", sched.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		alert, err := s.postScheduled(ctx, sched)
		if err != nil {
			s.logger.Error("posting scheduled alert failed", "schedule_id", sched.ID, "error", err)
			continue
		}

		if err := s.db.WithContext(ctx).Model(sched).Update("last_alert_id", alert.ID).Error; err != nil {
			s.logger.Warn("recording last alert failed", "schedule_id", sched.ID, "error", err)
		}
		posted++
	}
	return posted, nil
}

func (s *Service) claim(ctx context.Context, sched *models.ScheduledAlert, now time.Time) (bool, error) {
	updates := map[string]interface{}{"last_run_at": now}
	if sched.Recurrence == "" {
		updates["is_enabled"] = false
	} else {
		next, err := util.NextRecurrence(sched.Recurrence, now)
		if err != nil {
			updates["is_enabled"] = false
			s.logger.Warn("disabling schedule with bad recurrence", "schedule_id", sched.ID, "error", err)
		} else {
			updates["next_run_at"] = next
		}
	}

	res := s.db.WithContext(ctx).Model(&models.ScheduledAlert{}).
		Where("id = ? AND is_enabled = ? AND next_run_at <= ?", sched.ID, true, now).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// postScheduled posts on behalf of the schedule's author, whose admin rights
// are checked again at run time.
func (s *Service) postScheduled(ctx context.Context, sched *models.ScheduledAlert) (*models.OrganizationAlert, error) {
	var author models.User
	if err := s.db.WithContext(ctx).First(&author, "id = ?", sched.PostedByUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("author %s no longer exists", sched.PostedByUserID)
		}
		return nil, err
	}

	loc := sched.Location
	return s.Post(auth.WithProfile(ctx, &author), PostInput{
		OrganizationID: sched.OrganizationID,
		GroupID:        sched.GroupID,
		Title:          sched.Title,
		Description:    sched.Description,
		Type:           sched.Type,
		Severity:       sched.Severity,
		Location:       &loc,
		ImageURLs:      sched.ImageURLs,
	})
}
