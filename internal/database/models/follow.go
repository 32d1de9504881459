package models

import (
	"time"

	"github.com/google/uuid"
)

// Follow is the single authoritative follow edge. "Organizations a user
// follows" and "followers of an organization" are both queries over this table.
type Follow struct {
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	OrganizationID string    `gorm:"primaryKey;size:64;index" json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Follow) TableName() string {
	return "follows"
}
