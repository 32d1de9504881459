// Package followers maintains the follow edges between users and
// organizations and the per-group opt-ins that scope group alerts.
package followers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/metrics"
	"github.com/hugh/chimeo/internal/organizations"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewStore(db *gorm.DB, logger *slog.Logger, m *metrics.Metrics) *Store {
	if m == nil {
		m = metrics.New()
	}
	return &Store{db: db, logger: logger, metrics: m}
}

func orgExists(tx *gorm.DB, orgID string) error {
	var count int64
	if err := tx.Model(&models.Organization{}).Where("id = ?", orgID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return organizations.ErrOrganizationNotFound
	}
	return nil
}

// Follow adds the edge. Following twice is a no-op and leaves follower_count
// unchanged.
func (s *Store) Follow(ctx context.Context, userID uuid.UUID, orgID string) error {
	var inserted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := orgExists(tx, orgID); err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Follow{UserID: userID, OrganizationID: orgID})
		if res.Error != nil {
			return fmt.Errorf("inserting follow: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true

		return tx.Model(&models.Organization{}).Where("id = ?", orgID).
			UpdateColumn("follower_count", gorm.Expr("follower_count + 1")).Error
	})
	if err != nil {
		return err
	}

	if inserted {
		s.metrics.Follows.WithLabelValues("follow").Inc()
		s.logger.Debug("followed", "user_id", userID, "org_id", orgID)
	}
	return nil
}

// Unfollow removes the edge if present. Group preferences are kept so that
// re-following restores them.
func (s *Store) Unfollow(ctx context.Context, userID uuid.UUID, orgID string) error {
	var removed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND organization_id = ?", userID, orgID).Delete(&models.Follow{})
		if res.Error != nil {
			return fmt.Errorf("deleting follow: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true

		return tx.Model(&models.Organization{}).Where("id = ?", orgID).
			UpdateColumn("follower_count",
				gorm.Expr("CASE WHEN follower_count > 0 THEN follower_count - 1 ELSE 0 END")).Error
	})
	if err != nil {
		return err
	}

	if removed {
		s.metrics.Follows.WithLabelValues("unfollow").Inc()
		s.logger.Debug("unfollowed", "user_id", userID, "org_id", orgID)
	}
	return nil
}

func (s *Store) IsFollowing(ctx context.Context, userID uuid.UUID, orgID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("user_id = ? AND organization_id = ?", userID, orgID).
		Count(&count).Error
	return count > 0, err
}

// FollowedOrganizations lists the organizations userID follows. Edges that
// point at deleted organizations are skipped.
func (s *Store) FollowedOrganizations(ctx context.Context, userID uuid.UUID) ([]models.Organization, error) {
	var orgs []models.Organization
	err := s.db.WithContext(ctx).
		Joins("JOIN follows ON follows.organization_id = organizations.id").
		Where("follows.user_id = ?", userID).
		Order("organizations.name ASC").
		Find(&orgs).Error
	if err != nil {
		return nil, fmt.Errorf("listing followed organizations: %w", err)
	}
	return orgs, nil
}

// FollowedOrganizationIDs is FollowedOrganizations without loading rows.
func (s *Store) FollowedOrganizationIDs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("user_id = ?", userID).
		Pluck("organization_id", &ids).Error
	return ids, err
}

func (s *Store) FollowerIDs(ctx context.Context, orgID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing followers: %w", err)
	}
	return ids, nil
}

// SetGroupPreference records an explicit opt-in or opt-out for a group.
func (s *Store) SetGroupPreference(ctx context.Context, userID uuid.UUID, orgID string, groupID uuid.UUID, enabled bool) error {
	var group models.Group
	err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", groupID, orgID).
		First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return organizations.ErrGroupNotFound
		}
		return err
	}

	pref := models.GroupPreference{
		UserID:         userID,
		OrganizationID: orgID,
		GroupID:        groupID,
		Enabled:        enabled,
		UpdatedAt:      time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "organization_id"}, {Name: "group_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(&pref).Error
}

// GroupPreference reports whether userID opted in to the group. No row means
// no.
func (s *Store) GroupPreference(ctx context.Context, userID uuid.UUID, orgID string, groupID uuid.UUID) (bool, error) {
	var pref models.GroupPreference
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ? AND group_id = ?", userID, orgID, groupID).
		First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return pref.Enabled, nil
}

// GroupPreferences returns the recorded preferences of userID within orgID.
func (s *Store) GroupPreferences(ctx context.Context, userID uuid.UUID, orgID string) (map[uuid.UUID]bool, error) {
	var prefs []models.GroupPreference
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ?", userID, orgID).
		Find(&prefs).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]bool, len(prefs))
	for _, p := range prefs {
		out[p.GroupID] = p.Enabled
	}
	return out, nil
}

// OptedInFollowers filters candidates down to users with an enabled
// preference for the group.
func (s *Store) OptedInFollowers(ctx context.Context, orgID string, groupID uuid.UUID, candidates []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool)
	if len(candidates) == 0 {
		return out, nil
	}
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.GroupPreference{}).
		Where("organization_id = ? AND group_id = ? AND enabled = ? AND user_id IN ?", orgID, groupID, true, candidates).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// SyncFollowers recomputes follower_count from the edge table and returns the
// corrected value. Concurrent follow and unfollow calls can leave the counter
// off between syncs; the edges are always authoritative.
func (s *Store) SyncFollowers(ctx context.Context, orgID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := orgExists(tx, orgID); err != nil {
			return err
		}
		if err := tx.Model(&models.Follow{}).Where("organization_id = ?", orgID).Count(&count).Error; err != nil {
			return err
		}
		return tx.Model(&models.Organization{}).Where("id = ?", orgID).
			UpdateColumn("follower_count", count).Error
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("follower count synced", "org_id", orgID, "count", count)
	return count, nil
}

// SyncAll reconciles every organization and returns how many were corrected.
func (s *Store) SyncAll(ctx context.Context) (int, error) {
	type row struct {
		ID            string
		FollowerCount int64
		Edges         int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Organization{}).
		Select("organizations.id, organizations.follower_count, " +
			"(SELECT COUNT(*) FROM follows WHERE follows.organization_id = organizations.id) AS edges").
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("scanning follower counts: %w", err)
	}

	fixed := 0
	for _, r := range rows {
		if r.FollowerCount == r.Edges {
			continue
		}
		if _, err := s.SyncFollowers(ctx, r.ID); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}
