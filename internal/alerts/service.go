// Package alerts posts organization alerts and fans them out as push
// notifications to eligible followers.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/followers"
	"github.com/hugh/chimeo/internal/metrics"
	"github.com/hugh/chimeo/internal/mirror"
	"github.com/hugh/chimeo/internal/organizations"
	"github.com/hugh/chimeo/internal/push"
	"github.com/hugh/chimeo/internal/storage"
	"gorm.io/gorm"
)

var ErrAlertNotFound = fmt.Errorf("%w: alert not found", apperr.ErrNotFound)

// Enqueuer hands a posted alert to the background worker for fan-out.
type Enqueuer interface {
	EnqueueFanOut(ctx context.Context, alertID uuid.UUID) error
}

type Config struct {
	TTL         time.Duration
	Concurrency int
}

type Service struct {
	db        *gorm.DB
	directory *organizations.Directory
	followers *followers.Store
	push      push.Provider
	store     storage.Store
	mirror    mirror.Mirror
	enqueuer  Enqueuer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time

	inline sync.WaitGroup
}

type Deps struct {
	DB        *gorm.DB
	Directory *organizations.Directory
	Followers *followers.Store
	Push      push.Provider
	Store     storage.Store
	Mirror    mirror.Mirror
	Enqueuer  Enqueuer
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = models.DefaultAlertTTL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if d.Mirror == nil {
		d.Mirror = mirror.Noop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	return &Service{
		db:        d.DB,
		directory: d.Directory,
		followers: d.Followers,
		push:      d.Push,
		store:     d.Store,
		mirror:    d.Mirror,
		enqueuer:  d.Enqueuer,
		metrics:   d.Metrics,
		logger:    d.Logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetEnqueuer wires the worker queue after construction; the queue client
// and the service are built independently. Without one, Post fans out in
// process.
func (s *Service) SetEnqueuer(e Enqueuer) {
	s.enqueuer = e
}

type PostInput struct {
	OrganizationID string
	GroupID        *uuid.UUID
	Title          string
	Description    string
	Type           string
	Severity       models.Severity
	Location       *models.Location
	ImageURLs      []string
	ExpiresAt      *time.Time
}

func (in *PostInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))

	if in.Title == "" {
		return apperr.Validation("title is required")
	}
	if in.Description == "" {
		return apperr.Validation("description is required")
	}
	if !in.Severity.Valid() {
		return apperr.Validation("severity %q is invalid", in.Severity)
	}
	if in.GroupID != nil && *in.GroupID == uuid.Nil {
		in.GroupID = nil
	}
	return nil
}

// Post persists an alert from an organization admin, bumps the
// organization's alert count and queues the fan-out, or runs it in process
// when no queue is wired. Queue failures are logged; the alert is still
// posted.
func (s *Service) Post(ctx context.Context, input PostInput) (*models.OrganizationAlert, error) {
	org, id, err := s.directory.RequireAdmin(ctx, input.OrganizationID)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	alert := &models.OrganizationAlert{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		Title:            input.Title,
		Description:      input.Description,
		Type:             input.Type,
		Severity:         input.Severity,
		Location:         org.Location,
		PostedBy:         id.Email,
		PostedByUserID:   id.UserID,
		PostedAt:         now,
		ExpiresAt:        now.Add(s.cfg.TTL),
		ImageURLs:        input.ImageURLs,
	}
	if input.Location != nil {
		alert.Location = *input.Location
	}
	if input.ExpiresAt != nil {
		if !input.ExpiresAt.After(now) {
			return nil, apperr.Validation("expires_at must be in the future")
		}
		alert.ExpiresAt = *input.ExpiresAt
	}

	if input.GroupID != nil {
		group, err := s.directory.GetGroup(ctx, org.ID, *input.GroupID)
		if err != nil {
			return nil, err
		}
		if !group.IsActive {
			return nil, apperr.Validation("group %s is inactive", group.Name)
		}
		alert.GroupID = &group.ID
		alert.GroupName = group.Name
	}

	var author models.User
	if err := s.db.WithContext(ctx).Select("name", "email").First(&author, "id = ?", id.UserID).Error; err == nil && author.Name != "" {
		alert.PostedBy = author.Name
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(alert).Error; err != nil {
			return fmt.Errorf("saving alert: %w", err)
		}
		return tx.Model(&models.Organization{}).Where("id = ?", org.ID).
			UpdateColumn("alert_count", gorm.Expr("alert_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AlertsPosted.WithLabelValues(string(alert.Severity)).Inc()
	s.logger.Info("alert posted",
		"alert_id", alert.ID,
		"org_id", alert.OrganizationID,
		"severity", alert.Severity,
		"group_scoped", alert.IsGroupScoped(),
	)

	if err := s.mirror.PublishAlert(ctx, alert); err != nil {
		s.logger.Warn("mirror publish failed", "alert_id", alert.ID, "error", err)
	}

	if s.enqueuer == nil {
		s.fanOutInline(ctx, alert.ID)
	} else if err := s.enqueuer.EnqueueFanOut(ctx, alert.ID); err != nil {
		s.logger.Error("enqueueing fan-out failed", "alert_id", alert.ID, "error", err)
	}

	return alert, nil
}

// fanOutInline delivers in the background of the posting process. The
// fan-out is detached from ctx so it outlives the request.
func (s *Service) fanOutInline(ctx context.Context, alertID uuid.UUID) {
	s.inline.Add(1)
	go func() {
		defer s.inline.Done()
		if _, err := s.FanOutByID(context.WithoutCancel(ctx), alertID); err != nil {
			s.logger.Error("inline fan-out failed", "alert_id", alertID, "error", err)
		}
	}()
}

// Wait blocks until every inline fan-out started by Post has finished.
func (s *Service) Wait() {
	s.inline.Wait()
}

func (s *Service) Get(ctx context.Context, alertID uuid.UUID) (*models.OrganizationAlert, error) {
	var alert models.OrganizationAlert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// ListForOrganization returns the organization's alerts, newest first.
// Expired alerts are left out unless includeExpired is set.
func (s *Service) ListForOrganization(ctx context.Context, orgID string, includeExpired bool) ([]models.OrganizationAlert, error) {
	if _, err := s.directory.Get(ctx, orgID); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if !includeExpired {
		q = q.Where("expires_at > ?", s.now())
	}

	var out []models.OrganizationAlert
	if err := q.Order("posted_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Feed returns unexpired alerts from organizations userID follows, newest
// first. Group alerts appear only for groups the user opted in to.
func (s *Service) Feed(ctx context.Context, userID uuid.UUID, limit int) ([]models.OrganizationAlert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	orgIDs, err := s.followers.FollowedOrganizationIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(orgIDs) == 0 {
		return []models.OrganizationAlert{}, nil
	}

	optedIn := s.db.Model(&models.GroupPreference{}).
		Select("group_id").
		Where("user_id = ? AND enabled = ?", userID, true)

	var out []models.OrganizationAlert
	err = s.db.WithContext(ctx).
		Where("organization_id IN ?", orgIDs).
		Where("expires_at > ?", s.now()).
		Where("(group_id IS NULL OR group_id IN (?))", optedIn).
		Order("posted_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading feed: %w", err)
	}
	return out, nil
}

// Delete soft-deletes an alert. Only the organization's admins may do it.
func (s *Service) Delete(ctx context.Context, orgID string, alertID uuid.UUID) error {
	if _, _, err := s.directory.RequireAdmin(ctx, orgID); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", alertID, orgID).
		Delete(&models.OrganizationAlert{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlertNotFound
	}

	if err := s.mirror.RemoveAlert(ctx, orgID, alertID.String()); err != nil {
		s.logger.Warn("mirror remove failed", "alert_id", alertID, "error", err)
	}
	s.logger.Info("alert deleted", "alert_id", alertID, "org_id", orgID)
	return nil
}

// UploadImage stores an image for a future alert and returns its URL.
func (s *Service) UploadImage(ctx context.Context, orgID string, data []byte) (string, error) {
	if _, _, err := s.directory.RequireAdmin(ctx, orgID); err != nil {
		return "", err
	}
	contentType, ext, err := storage.CheckImage(data)
	if err != nil {
		return "", err
	}
	return s.store.Upload(ctx, storage.AlertImageKey(orgID, ext), data, contentType)
}
