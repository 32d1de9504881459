// Package organizations is the directory of verified organizations, their
// groups and their administrators.
package organizations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/mirror"
	"github.com/hugh/chimeo/internal/storage"
	"gorm.io/gorm"
)

var _ auth.AdminClaimer = (*Directory)(nil)

var (
	ErrOrganizationNotFound = fmt.Errorf("%w: organization not found", apperr.ErrNotFound)
	ErrGroupNotFound        = fmt.Errorf("%w: group not found", apperr.ErrNotFound)
	ErrNotAdmin             = fmt.Errorf("%w: not an administrator of this organization", apperr.ErrForbidden)
)

type Directory struct {
	db     *gorm.DB
	cache  Cache
	store  storage.Store
	mirror mirror.Mirror
	logger *slog.Logger
}

func NewDirectory(db *gorm.DB, cache Cache, store storage.Store, m mirror.Mirror, logger *slog.Logger) *Directory {
	if m == nil {
		m = mirror.Noop{}
	}
	return &Directory{db: db, cache: cache, store: store, mirror: m, logger: logger}
}

// Get loads an organization whether or not it is verified.
func (d *Directory) Get(ctx context.Context, orgID string) (*models.Organization, error) {
	var org models.Organization
	if err := d.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

// List returns every verified organization ordered by name.
func (d *Directory) List(ctx context.Context) ([]models.Organization, error) {
	if orgs, ok := d.cache.Get(ctx); ok {
		return orgs, nil
	}

	var orgs []models.Organization
	if err := d.db.WithContext(ctx).
		Where("verified = ?", true).
		Order("name ASC").
		Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}

	d.cache.Set(ctx, orgs)
	return orgs, nil
}

// Search matches query case-insensitively against name, type, city, state and
// zip of verified organizations. Name-prefix matches rank first, then other
// name matches, then matches on any other field; ties sort by name.
func (d *Directory) Search(ctx context.Context, query string) ([]models.Organization, error) {
	orgs, err := d.List(ctx)
	if err != nil {
		return nil, err
	}
	return rank(orgs, query), nil
}

func rank(orgs []models.Organization, query string) []models.Organization {
	q := strings.ToLower(strings.TrimSpace(query))

	type scored struct {
		org   models.Organization
		score int
		name  string
	}

	var hits []scored
	for _, org := range orgs {
		name := strings.ToLower(org.Name)
		score := -1
		switch {
		case q == "":
			score = 0
		case strings.HasPrefix(name, q):
			score = 0
		case strings.Contains(name, q):
			score = 1
		case matchesOther(org, q):
			score = 2
		}
		if score >= 0 {
			hits = append(hits, scored{org: org, score: score, name: name})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score < hits[j].score
		}
		return hits[i].name < hits[j].name
	})

	out := make([]models.Organization, len(hits))
	for i, h := range hits {
		out[i] = h.org
	}
	return out
}

func matchesOther(org models.Organization, q string) bool {
	for _, field := range []string{string(org.Type), org.Location.City, org.Location.State, org.Location.Zip} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity administers orgID. Only user ids
// count; an admin recorded by email is matched once ClaimPlaceholderAdmin has
// converted the key.
func (d *Directory) IsAdmin(ctx context.Context, id auth.Identity, orgID string) (bool, error) {
	org, err := d.Get(ctx, orgID)
	if err != nil {
		return false, err
	}
	return isAdmin(org, id), nil
}

func isAdmin(org *models.Organization, id auth.Identity) bool {
	return id.UserID != uuid.Nil && org.HasAdmin(id.UserID.String())
}

// ClaimPlaceholderAdmin rewrites admin keys recorded under email to userID and
// marks the user as an organization admin. The caller must already have
// verified that userID owns email. Returns the ids of the claimed
// organizations.
func (d *Directory) ClaimPlaceholderAdmin(ctx context.Context, email string, userID uuid.UUID) ([]string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || userID == uuid.Nil {
		return nil, nil
	}

	var claimed []models.Organization
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orgs []models.Organization
		if err := tx.Find(&orgs).Error; err != nil {
			return fmt.Errorf("loading organizations: %w", err)
		}
		for i := range orgs {
			org := &orgs[i]
			found := false
			for key := range org.AdminIDs {
				if strings.EqualFold(key, email) {
					delete(org.AdminIDs, key)
					found = true
				}
			}
			if !found {
				continue
			}
			org.AdminIDs[userID.String()] = true
			if err := tx.Model(org).Select("admin_ids").Updates(org).Error; err != nil {
				return fmt.Errorf("claiming %s: %w", org.ID, err)
			}
			claimed = append(claimed, *org)
		}
		if len(claimed) == 0 {
			return nil
		}

		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return fmt.Errorf("loading user: %w", err)
		}
		for _, org := range claimed {
			if !slices.Contains(user.OrganizationIDs, org.ID) {
				user.OrganizationIDs = append(user.OrganizationIDs, org.ID)
			}
		}
		user.IsOrganizationAdmin = true
		return tx.Model(&user).Select("is_organization_admin", "organization_ids").Updates(&user).Error
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(claimed))
	for i := range claimed {
		ids[i] = claimed[i].ID
		d.Changed(ctx, &claimed[i])
		d.logger.Info("placeholder admin claimed", "org_id", claimed[i].ID, "user_id", userID)
	}
	return ids, nil
}

// RequireAdmin loads orgID and checks the caller administers it. Platform
// admins pass for every organization.
func (d *Directory) RequireAdmin(ctx context.Context, orgID string) (*models.Organization, auth.Identity, error) {
	id, err := auth.CurrentIdentity(ctx)
	if err != nil {
		return nil, id, err
	}
	org, err := d.Get(ctx, orgID)
	if err != nil {
		return nil, id, err
	}
	if !id.IsPlatformAdmin() && !isAdmin(org, id) {
		return nil, id, ErrNotAdmin
	}
	return org, id, nil
}

type UpdateInput struct {
	Name         *string
	Description  *string
	ContactEmail *string
	ContactPhone *string
	Website      *string
	Location     *models.Location
}

func (d *Directory) Update(ctx context.Context, orgID string, input UpdateInput) (*models.Organization, error) {
	org, _, err := d.RequireAdmin(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperr.Validation("name is required")
		}
		org.Name = name
	}
	if input.Description != nil {
		org.Description = *input.Description
	}
	if input.ContactEmail != nil {
		org.ContactEmail = *input.ContactEmail
	}
	if input.ContactPhone != nil {
		org.ContactPhone = *input.ContactPhone
	}
	if input.Website != nil {
		org.Website = *input.Website
	}
	if input.Location != nil {
		org.Location = *input.Location
	}

	if err := d.db.WithContext(ctx).Save(org).Error; err != nil {
		return nil, fmt.Errorf("updating organization: %w", err)
	}

	d.Changed(ctx, org)
	return org, nil
}

// Changed invalidates the listing cache and republishes org to the mirror.
// Mirror failures are logged only.
func (d *Directory) Changed(ctx context.Context, org *models.Organization) {
	d.cache.Invalidate(ctx)
	if err := d.mirror.PublishOrganization(ctx, org); err != nil {
		d.logger.Warn("mirror publish failed", "org_id", org.ID, "error", err)
	}
}

func (d *Directory) CreateGroup(ctx context.Context, orgID, name, description string) (*models.Group, error) {
	if _, _, err := d.RequireAdmin(ctx, orgID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("group name is required")
	}

	group := &models.Group{
		OrganizationID: orgID,
		Name:           name,
		Description:    description,
		IsActive:       true,
	}
	if err := d.db.WithContext(ctx).Create(group).Error; err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}
	return group, nil
}

func (d *Directory) ListGroups(ctx context.Context, orgID string) ([]models.Group, error) {
	if _, err := d.Get(ctx, orgID); err != nil {
		return nil, err
	}
	var groups []models.Group
	if err := d.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("name ASC").
		Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// GetGroup loads a group and checks it belongs to orgID.
func (d *Directory) GetGroup(ctx context.Context, orgID string, groupID uuid.UUID) (*models.Group, error) {
	var group models.Group
	err := d.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", groupID, orgID).
		First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

type GroupUpdate struct {
	Name        *string
	Description *string
	IsActive    *bool
}

func (d *Directory) UpdateGroup(ctx context.Context, orgID string, groupID uuid.UUID, input GroupUpdate) (*models.Group, error) {
	if _, _, err := d.RequireAdmin(ctx, orgID); err != nil {
		return nil, err
	}
	group, err := d.GetGroup(ctx, orgID, groupID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperr.Validation("group name is required")
		}
		group.Name = name
	}
	if input.Description != nil {
		group.Description = *input.Description
	}
	if input.IsActive != nil {
		group.IsActive = *input.IsActive
	}

	if err := d.db.WithContext(ctx).Save(group).Error; err != nil {
		return nil, fmt.Errorf("updating group: %w", err)
	}
	return group, nil
}

// UploadLogo stores a new logo and points the organization at it.
func (d *Directory) UploadLogo(ctx context.Context, orgID string, data []byte) (*models.Organization, error) {
	org, _, err := d.RequireAdmin(ctx, orgID)
	if err != nil {
		return nil, err
	}
	contentType, ext, err := storage.CheckImage(data)
	if err != nil {
		return nil, err
	}

	url, err := d.store.Upload(ctx, storage.LogoKey(orgID, ext), data, contentType)
	if err != nil {
		return nil, err
	}

	if err := d.db.WithContext(ctx).Model(org).Update("logo_url", url).Error; err != nil {
		return nil, fmt.Errorf("saving logo url: %w", err)
	}
	org.LogoURL = url

	d.Changed(ctx, org)
	return org, nil
}

func (d *Directory) DeleteLogo(ctx context.Context, orgID string) error {
	org, _, err := d.RequireAdmin(ctx, orgID)
	if err != nil {
		return err
	}
	if org.LogoURL == "" {
		return nil
	}

	for _, ext := range []string{".jpg", ".png", ".gif", ".webp"} {
		key := storage.LogoKey(orgID, ext)
		if strings.HasSuffix(org.LogoURL, key) {
			if err := d.store.Delete(ctx, key); err != nil {
				d.logger.Warn("deleting logo object failed", "org_id", orgID, "error", err)
			}
		}
	}

	if err := d.db.WithContext(ctx).Model(org).Update("logo_url", "").Error; err != nil {
		return err
	}
	org.LogoURL = ""
	d.Changed(ctx, org)
	return nil
}
