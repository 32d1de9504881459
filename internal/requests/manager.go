// Package requests runs the onboarding workflow for new organizations: an
// applicant submits a request and a platform admin reviews it.
package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/geocode"
	"github.com/hugh/chimeo/internal/metrics"
	"github.com/hugh/chimeo/internal/organizations"
	"github.com/hugh/chimeo/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrRequestNotFound      = fmt.Errorf("%w: organization request not found", apperr.ErrNotFound)
	ErrRequestNotReviewable = fmt.Errorf("%w: organization request already reviewed", apperr.ErrConflict)
)

type Decision string

const (
	DecisionApprove         Decision = "approve"
	DecisionReject          Decision = "reject"
	DecisionRequestMoreInfo Decision = "requestMoreInfo"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestMoreInfo:
		return true
	}
	return false
}

type SubmitInput struct {
	ContactName  string
	ContactEmail string
	ContactPhone string

	OrganizationName string
	OrganizationType models.OrganizationType
	Description      string
	Website          string
	Phone            string
	Address          string
	City             string
	State            string
	Zip              string
}

// ReviewResult is what the reviewer gets back. SetupToken is only set when an
// approved request's contact still has to choose a password, so the operator
// can send them the setup link.
type ReviewResult struct {
	Request      *models.OrganizationRequest
	Organization *models.Organization
	SetupToken   string
}

// Coordinate is the fallback location used when geocoding fails.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

type Manager struct {
	db          *gorm.DB
	provisioner auth.Provisioner
	geocoder    geocode.Geocoder
	sealer      *crypto.Sealer
	directory   *organizations.Directory
	fallback    Coordinate
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Deps struct {
	DB          *gorm.DB
	Provisioner auth.Provisioner
	Geocoder    geocode.Geocoder
	Sealer      *crypto.Sealer
	Directory   *organizations.Directory
	Fallback    Coordinate
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

func NewManager(d Deps) *Manager {
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	return &Manager{
		db:          d.DB,
		provisioner: d.Provisioner,
		geocoder:    d.Geocoder,
		sealer:      d.Sealer,
		directory:   d.Directory,
		fallback:    d.Fallback,
		metrics:     d.Metrics,
		logger:      d.Logger,
	}
}

func (in *SubmitInput) normalize() error {
	in.ContactName = strings.TrimSpace(in.ContactName)
	in.ContactEmail = strings.ToLower(strings.TrimSpace(in.ContactEmail))
	in.OrganizationName = strings.TrimSpace(in.OrganizationName)

	if in.ContactName == "" {
		return apperr.Validation("contact name is required")
	}
	if in.ContactEmail == "" {
		return apperr.Validation("contact email is required")
	}
	if addr, err := mail.ParseAddress(in.ContactEmail); err != nil || addr.Address != in.ContactEmail {
		return apperr.Validation("contact email is invalid")
	}
	if in.OrganizationName == "" {
		return apperr.Validation("organization name is required")
	}
	if in.OrganizationType == "" {
		in.OrganizationType = models.OrganizationTypeOther
	}
	if !in.OrganizationType.Valid() {
		return apperr.Validation("organization type %q is invalid", in.OrganizationType)
	}
	return nil
}

func (in SubmitInput) apply(req *models.OrganizationRequest) {
	req.ContactName = in.ContactName
	req.ContactEmail = in.ContactEmail
	req.ContactPhone = in.ContactPhone
	req.OrganizationName = in.OrganizationName
	req.OrganizationType = in.OrganizationType
	req.Description = in.Description
	req.Website = in.Website
	req.Phone = in.Phone
	req.Address = in.Address
	req.City = in.City
	req.State = in.State
	req.Zip = in.Zip
}

// Submit stores a pending request and provisions an account for its contact.
// Provisioning problems are logged and flag the request for password setup;
// they never fail the submission.
func (m *Manager) Submit(ctx context.Context, input SubmitInput) (*models.OrganizationRequest, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}

	req := &models.OrganizationRequest{Status: models.RequestStatusPending}
	input.apply(req)

	if id, err := auth.CurrentIdentity(ctx); err == nil {
		req.SubmittedByUserID = &id.UserID
	}

	m.provision(ctx, req)

	if err := m.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, fmt.Errorf("saving organization request: %w", err)
	}

	m.logger.Info("organization request submitted",
		"request_id", req.ID,
		"organization", req.OrganizationName,
		"needs_password_setup", req.NeedsPasswordSetup,
	)
	return req, nil
}

func (m *Manager) provision(ctx context.Context, req *models.OrganizationRequest) {
	res, err := m.provisioner.Provision(ctx, req.ContactEmail, req.ContactName)
	if err != nil {
		m.logger.Error("provisioning contact account failed", "email", req.ContactEmail, "error", err)
		req.NeedsPasswordSetup = true
		return
	}

	if req.SubmittedByUserID == nil {
		req.SubmittedByUserID = &res.User.ID
	}
	if res.SetupToken == "" {
		return
	}

	req.NeedsPasswordSetup = true
	sealed, err := m.sealer.Seal(res.SetupToken)
	if err != nil {
		m.logger.Error("sealing setup token failed", "email", req.ContactEmail, "error", err)
		return
	}
	req.SealedSetupToken = sealed
}

// Resubmit moves a request that needs more information back to pending with
// updated details.
func (m *Manager) Resubmit(ctx context.Context, requestID uuid.UUID, input SubmitInput) (*models.OrganizationRequest, error) {
	if err := input.normalize(); err != nil {
		return nil, err
	}

	req, err := m.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestStatusRequiresMoreInfo {
		return nil, ErrRequestNotReviewable
	}

	input.apply(req)
	req.Status = models.RequestStatusPending

	res := m.db.WithContext(ctx).Model(req).
		Where("status = ?", models.RequestStatusRequiresMoreInfo).
		Select("*").
		Updates(req)
	if res.Error != nil {
		return nil, fmt.Errorf("resubmitting request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrRequestNotReviewable
	}
	return req, nil
}

func (m *Manager) Get(ctx context.Context, requestID uuid.UUID) (*models.OrganizationRequest, error) {
	var req models.OrganizationRequest
	if err := m.db.WithContext(ctx).First(&req, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

type ListFilter struct {
	Status models.RequestStatus
	Limit  int
	Offset int
}

func (m *Manager) List(ctx context.Context, f ListFilter) ([]models.OrganizationRequest, int64, error) {
	q := m.db.WithContext(ctx).Model(&models.OrganizationRequest{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}

	var out []models.OrganizationRequest
	if err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Review records a decision on a pending (or more-info) request. Approved and
// rejected requests cannot be reviewed again.
func (m *Manager) Review(ctx context.Context, requestID, reviewerID uuid.UUID, decision Decision, notes string) (*ReviewResult, error) {
	if !decision.Valid() {
		return nil, apperr.Validation("decision %q is invalid", decision)
	}

	req, err := m.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, ErrRequestNotReviewable
	}

	var result *ReviewResult
	switch decision {
	case DecisionApprove:
		result, err = m.approve(ctx, req, reviewerID, notes)
	case DecisionReject:
		result, err = m.decide(ctx, req, reviewerID, models.RequestStatusRejected, notes)
	case DecisionRequestMoreInfo:
		result, err = m.decide(ctx, req, reviewerID, models.RequestStatusRequiresMoreInfo, notes)
	}
	if err != nil {
		return nil, err
	}

	m.metrics.Reviews.WithLabelValues(string(decision)).Inc()
	m.logger.Info("organization request reviewed",
		"request_id", req.ID,
		"decision", decision,
		"reviewer_id", reviewerID,
	)
	return result, nil
}

// markReviewed updates status only if the request is still reviewable, so
// two concurrent reviews cannot both succeed.
func markReviewed(tx *gorm.DB, req *models.OrganizationRequest, reviewerID uuid.UUID, status models.RequestStatus, notes, orgID string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"reviewed_by":  reviewerID,
		"review_notes": notes,
		"reviewed_at":  now,
	}
	if orgID != "" {
		updates["organization_id"] = orgID
	}

	res := tx.Model(&models.OrganizationRequest{}).
		Where("id = ? AND status IN ?", req.ID, []models.RequestStatus{
			models.RequestStatusPending, models.RequestStatusRequiresMoreInfo,
		}).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating request status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRequestNotReviewable
	}

	req.Status = status
	req.ReviewedBy = &reviewerID
	req.ReviewNotes = notes
	req.ReviewedAt = &now
	if orgID != "" {
		req.OrganizationID = orgID
	}
	return nil
}

func (m *Manager) decide(ctx context.Context, req *models.OrganizationRequest, reviewerID uuid.UUID, status models.RequestStatus, notes string) (*ReviewResult, error) {
	if err := markReviewed(m.db.WithContext(ctx), req, reviewerID, status, notes, ""); err != nil {
		return nil, err
	}
	return &ReviewResult{Request: req}, nil
}

func (m *Manager) locate(ctx context.Context, req *models.OrganizationRequest) models.Location {
	loc := models.Location{
		Latitude:  m.fallback.Latitude,
		Longitude: m.fallback.Longitude,
		Address:   req.Address,
		City:      req.City,
		State:     req.State,
		Zip:       req.Zip,
	}

	address := geocode.FormatAddress(req.Address, req.City, req.State, req.Zip)
	res, err := m.geocoder.Geocode(ctx, address)
	if err != nil {
		m.logger.Warn("geocoding failed, using default coordinate",
			"request_id", req.ID, "address", address, "error", err)
		return loc
	}

	loc.Latitude, loc.Longitude = res.Latitude, res.Longitude
	if loc.City == "" {
		loc.City = res.City
	}
	if loc.State == "" {
		loc.State = res.State
	}
	if loc.Zip == "" {
		loc.Zip = res.Zip
	}
	return loc
}

func (m *Manager) approve(ctx context.Context, req *models.OrganizationRequest, reviewerID uuid.UUID, notes string) (*ReviewResult, error) {
	location := m.locate(ctx, req)

	var org *models.Organization
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken := func(id string) bool {
			var n int64
			tx.Unscoped().Model(&models.Organization{}).Where("id = ?", id).Count(&n)
			return n > 0
		}

		var admin models.User
		adminErr := tx.Where("email = ?", req.ContactEmail).First(&admin).Error
		if adminErr != nil && !errors.Is(adminErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("resolving admin: %w", adminErr)
		}
		adminKey := req.ContactEmail
		if adminErr == nil {
			adminKey = admin.ID.String()
		}

		org = &models.Organization{
			ID:            OrganizationID(req.OrganizationName, taken),
			Name:          req.OrganizationName,
			Type:          req.OrganizationType,
			Description:   req.Description,
			Location:      location,
			Verified:      true,
			FollowerCount: 0,
			AdminIDs:      map[string]bool{adminKey: true},
			ContactEmail:  req.ContactEmail,
			ContactPhone:  req.Phone,
			Website:       req.Website,
		}
		if org.ContactPhone == "" {
			org.ContactPhone = req.ContactPhone
		}
		if err := tx.Create(org).Error; err != nil {
			return fmt.Errorf("creating organization: %w", err)
		}

		if adminErr == nil {
			if err := tx.Transaction(func(sp *gorm.DB) error {
				return promote(sp, &admin, org.ID)
			}); err != nil {
				m.logger.Error("promoting organization admin failed",
					"org_id", org.ID, "user_id", admin.ID, "error", err)
			}
		}

		return markReviewed(tx, req, reviewerID, models.RequestStatusApproved, notes, org.ID)
	})
	if err != nil {
		return nil, err
	}

	m.directory.Changed(ctx, org)

	result := &ReviewResult{Request: req, Organization: org}
	if req.NeedsPasswordSetup && req.SealedSetupToken != "" {
		token, err := m.sealer.Open(req.SealedSetupToken)
		if err != nil {
			m.logger.Error("opening setup token failed", "request_id", req.ID, "error", err)
		} else {
			result.SetupToken = token
		}
	}
	return result, nil
}

func promote(tx *gorm.DB, user *models.User, orgID string) error {
	for _, id := range user.OrganizationIDs {
		if id == orgID {
			return nil
		}
	}
	user.OrganizationIDs = append(user.OrganizationIDs, orgID)
	user.IsOrganizationAdmin = true

	return tx.Model(user).
		Select("is_organization_admin", "organization_ids").
		Updates(user).Error
}
