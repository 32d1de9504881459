package models

import (
	"time"

	"gorm.io/gorm"
)

type OrganizationType string

const (
	OrganizationTypeBusiness   OrganizationType = "business"
	OrganizationTypeChurch     OrganizationType = "church"
	OrganizationTypeSchool     OrganizationType = "school"
	OrganizationTypeGovernment OrganizationType = "government"
	OrganizationTypeOther      OrganizationType = "other"
)

func (t OrganizationType) Valid() bool {
	switch t {
	case OrganizationTypeBusiness, OrganizationTypeChurch, OrganizationTypeSchool,
		OrganizationTypeGovernment, OrganizationTypeOther:
		return true
	}
	return false
}

// Organization is keyed by a slug derived from its name (or a generated id
// when the slug is unusable), so its ID is a string rather than a UUID.
type Organization struct {
	ID          string           `gorm:"primaryKey;size:64" json:"id"`
	Name        string           `gorm:"not null;index" json:"name"`
	Type        OrganizationType `gorm:"not null;default:'other'" json:"type"`
	Description string           `json:"description,omitempty"`
	Location    Location         `gorm:"embedded" json:"location"`

	Verified      bool   `gorm:"default:false;index" json:"verified"`
	FollowerCount int64  `gorm:"default:0" json:"follower_count"`
	AlertCount    int64  `gorm:"default:0" json:"alert_count"`
	LogoURL       string `json:"logo_url,omitempty"`

	// AdminIDs maps user id (or, for placeholder admins, an email) to true.
	AdminIDs map[string]bool `gorm:"serializer:json" json:"admin_ids"`

	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	Website      string `json:"website,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

// HasAdmin reports whether key (user id or placeholder email) is in AdminIDs.
func (o *Organization) HasAdmin(key string) bool {
	return key != "" && o.AdminIDs[key]
}
