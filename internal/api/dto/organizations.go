package dto

import (
	"github.com/hugh/chimeo/internal/api/validation"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/organizations"
)

type UpdateOrganizationRequest struct {
	Name         *string          `json:"name,omitempty"`
	Description  *string          `json:"description,omitempty"`
	ContactEmail *string          `json:"contact_email,omitempty"`
	ContactPhone *string          `json:"contact_phone,omitempty"`
	Website      *string          `json:"website,omitempty"`
	Location     *models.Location `json:"location,omitempty"`
}

func (r UpdateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name != nil && *r.Name == "" {
		errors["name"] = "Name cannot be empty"
	}
	if r.ContactEmail != nil && *r.ContactEmail != "" && !validation.IsValidEmail(*r.ContactEmail) {
		errors["contact_email"] = "Invalid email format"
	}
	if r.ContactPhone != nil && *r.ContactPhone != "" && !validation.IsValidPhone(*r.ContactPhone) {
		errors["contact_phone"] = "Invalid phone number"
	}
	if r.Website != nil && *r.Website != "" && !validation.IsValidURL(*r.Website) {
		errors["website"] = "Website must be an http or https URL"
	}

	return errors
}

func (r UpdateOrganizationRequest) Input() organizations.UpdateInput {
	return organizations.UpdateInput{
		Name:         r.Name,
		Description:  r.Description,
		ContactEmail: r.ContactEmail,
		ContactPhone: r.ContactPhone,
		Website:      r.Website,
		Location:     r.Location,
	}
}

// OrganizationDTO hides the admin map from public listings.
type OrganizationDTO struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name"`
	Type          models.OrganizationType `json:"type"`
	Description   string                  `json:"description,omitempty"`
	Location      models.Location         `json:"location"`
	Verified      bool                    `json:"verified"`
	FollowerCount int64                   `json:"follower_count"`
	AlertCount    int64                   `json:"alert_count"`
	LogoURL       string                  `json:"logo_url,omitempty"`
	ContactEmail  string                  `json:"contact_email,omitempty"`
	ContactPhone  string                  `json:"contact_phone,omitempty"`
	Website       string                  `json:"website,omitempty"`
}

func NewOrganizationDTO(o *models.Organization) OrganizationDTO {
	return OrganizationDTO{
		ID:            o.ID,
		Name:          o.Name,
		Type:          o.Type,
		Description:   o.Description,
		Location:      o.Location,
		Verified:      o.Verified,
		FollowerCount: o.FollowerCount,
		AlertCount:    o.AlertCount,
		LogoURL:       o.LogoURL,
		ContactEmail:  o.ContactEmail,
		ContactPhone:  o.ContactPhone,
		Website:       o.Website,
	}
}

func NewOrganizationDTOs(orgs []models.Organization) []OrganizationDTO {
	out := make([]OrganizationDTO, len(orgs))
	for i := range orgs {
		out[i] = NewOrganizationDTO(&orgs[i])
	}
	return out
}

type OrganizationDetail struct {
	OrganizationDTO
	IsFollowing bool `json:"is_following"`
	IsAdmin     bool `json:"is_admin"`
}

type GroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r GroupRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	}
	return errors
}

type UpdateGroupRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (r UpdateGroupRequest) Input() organizations.GroupUpdate {
	return organizations.GroupUpdate{Name: r.Name, Description: r.Description, IsActive: r.IsActive}
}

// GroupDTO is a group as seen by one user, with their opt-in state.
type GroupDTO struct {
	models.Group
	Enabled bool `json:"enabled"`
}

type GroupPreferenceRequest struct {
	Enabled bool `json:"enabled"`
}

type FollowResponse struct {
	Following     bool  `json:"following"`
	FollowerCount int64 `json:"follower_count"`
}

type AdminStatusResponse struct {
	IsAdmin bool `json:"is_admin"`
}

type SyncResponse struct {
	FollowerCount int64 `json:"follower_count"`
}
