package models

import (
	"time"

	"github.com/google/uuid"
)

// Group is an optional sub-scope inside an organization. Followers opt in to
// each group individually.
type Group struct {
	Base
	OrganizationID string `gorm:"size:64;index;not null" json:"organization_id"`
	Name           string `gorm:"not null" json:"name"`
	Description    string `json:"description,omitempty"`
	IsActive       bool   `gorm:"default:true" json:"is_active"`
}

func (Group) TableName() string {
	return "groups"
}

// GroupPreference is an explicit opt-in (or opt-out) row. A missing row means
// the user does not receive the group's alerts.
type GroupPreference struct {
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	OrganizationID string    `gorm:"primaryKey;size:64" json:"organization_id"`
	GroupID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"group_id"`
	Enabled        bool      `gorm:"not null;default:false" json:"enabled"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (GroupPreference) TableName() string {
	return "group_preferences"
}
