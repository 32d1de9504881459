package models

import "time"

type AuthProvider string

const (
	AuthProviderPassword AuthProvider = "password"
	AuthProviderGoogle   AuthProvider = "google"
)

const DefaultAlertRadiusMiles = 10.0

// NotificationPreferences controls which alerts reach a user's device.
type NotificationPreferences struct {
	IncidentTypes   []string `json:"incident_types,omitempty"`    // empty means all types
	QuietHoursStart string   `json:"quiet_hours_start,omitempty"` // "22:00"
	QuietHoursEnd   string   `json:"quiet_hours_end,omitempty"`   // "07:00"
	Timezone        string   `json:"timezone,omitempty"`          // IANA name, UTC when empty
	CriticalOnly    bool     `json:"critical_only"`
}

type User struct {
	Base
	Email        string       `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string       `json:"-"`
	Name         string       `json:"name"`
	Phone        string       `json:"phone,omitempty"`
	AuthProvider AuthProvider `gorm:"default:'password'" json:"auth_provider"`
	IsActive     bool         `gorm:"default:true" json:"is_active"`

	// Deferred credential setup for provisioned accounts
	NeedsPasswordSetup bool   `gorm:"default:false" json:"needs_password_setup"`
	SetupTokenHash     string `json:"-"`
	SetupTokenExpires  int64  `json:"-"`

	AlertRadius float64                 `gorm:"default:10" json:"alert_radius"`
	Preferences NotificationPreferences `gorm:"serializer:json" json:"preferences"`

	IsPlatformAdmin     bool     `gorm:"default:false" json:"is_platform_admin"`
	IsOrganizationAdmin bool     `gorm:"default:false" json:"is_organization_admin"`
	OrganizationIDs     []string `gorm:"serializer:json" json:"organization_ids,omitempty"`

	PushToken          string     `json:"-"`
	PushTokenUpdatedAt *time.Time `json:"push_token_updated_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Role is the coarse role carried in access tokens.
func (u *User) Role() string {
	switch {
	case u.IsPlatformAdmin:
		return "platform_admin"
	case u.IsOrganizationAdmin:
		return "org_admin"
	default:
		return "member"
	}
}
