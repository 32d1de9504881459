package models

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

const DefaultAlertTTL = 14 * 24 * time.Hour

type OrganizationAlert struct {
	Base
	OrganizationID   string     `gorm:"size:64;index;not null" json:"organization_id"`
	OrganizationName string     `json:"organization_name"`
	GroupID          *uuid.UUID `gorm:"type:uuid;index" json:"group_id,omitempty"`
	GroupName        string     `json:"group_name,omitempty"`

	Title       string   `gorm:"not null" json:"title"`
	Description string   `json:"description"`
	Type        string   `gorm:"index" json:"type"`
	Severity    Severity `gorm:"not null;index" json:"severity"`
	Location    Location `gorm:"embedded" json:"location"`

	PostedBy       string    `json:"posted_by"`
	PostedByUserID uuid.UUID `gorm:"type:uuid;index" json:"posted_by_user_id"`
	PostedAt       time.Time `gorm:"index" json:"posted_at"`
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`

	ImageURLs []string `gorm:"serializer:json" json:"image_urls,omitempty"`
}

func (OrganizationAlert) TableName() string {
	return "organization_alerts"
}

// IsGroupScoped reports whether only opted-in group followers receive the alert.
func (a *OrganizationAlert) IsGroupScoped() bool {
	return a.GroupID != nil && *a.GroupID != uuid.Nil
}

// ScheduledAlert materializes into an OrganizationAlert when NextRunAt passes.
type ScheduledAlert struct {
	Base
	OrganizationID string     `gorm:"size:64;index;not null" json:"organization_id"`
	GroupID        *uuid.UUID `gorm:"type:uuid" json:"group_id,omitempty"`

	Title       string   `gorm:"not null" json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Severity    Severity `gorm:"not null" json:"severity"`
	Location    Location `gorm:"embedded" json:"location"`
	ImageURLs   []string `gorm:"serializer:json" json:"image_urls,omitempty"`

	PostedBy       string    `json:"posted_by"`
	PostedByUserID uuid.UUID `gorm:"type:uuid" json:"posted_by_user_id"`

	ScheduledFor time.Time `json:"scheduled_for"`
	Recurrence   string    `gorm:"size:100" json:"recurrence,omitempty"` // cron expression, empty for one-shot
	IsEnabled    bool      `gorm:"default:true;index" json:"is_enabled"`

	NextRunAt   time.Time  `gorm:"index" json:"next_run_at"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastAlertID *uuid.UUID `gorm:"type:uuid" json:"last_alert_id,omitempty"`
}

func (ScheduledAlert) TableName() string {
	return "scheduled_alerts"
}

type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

// DeliveryLog records one dispatch attempt of an alert to a user.
type DeliveryLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	AlertID   uuid.UUID      `gorm:"type:uuid;index;not null" json:"alert_id"`
	UserID    uuid.UUID      `gorm:"type:uuid;index;not null" json:"user_id"`
	Status    DeliveryStatus `gorm:"not null" json:"status"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (DeliveryLog) TableName() string {
	return "delivery_logs"
}
