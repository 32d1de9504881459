package models

import (
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusPending          RequestStatus = "pending"
	RequestStatusApproved         RequestStatus = "approved"
	RequestStatusRejected         RequestStatus = "rejected"
	RequestStatusRequiresMoreInfo RequestStatus = "requiresMoreInfo"
)

// Terminal reports whether no further review is accepted.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

// OrganizationRequest is an onboarding submission awaiting review. It never
// holds a password; placeholder accounts get a sealed provisioning token instead.
type OrganizationRequest struct {
	Base
	ContactName  string `gorm:"not null" json:"contact_name"`
	ContactEmail string `gorm:"not null;index" json:"contact_email"`
	ContactPhone string `json:"contact_phone,omitempty"`

	OrganizationName string           `gorm:"not null" json:"organization_name"`
	OrganizationType OrganizationType `gorm:"not null;default:'other'" json:"organization_type"`
	Description      string           `json:"description,omitempty"`
	Website          string           `json:"website,omitempty"`
	Phone            string           `json:"phone,omitempty"`
	Address          string           `json:"address,omitempty"`
	City             string           `json:"city,omitempty"`
	State            string           `json:"state,omitempty"`
	Zip              string           `json:"zip,omitempty"`

	Status RequestStatus `gorm:"not null;index;default:'pending'" json:"status"`

	SubmittedByUserID  *uuid.UUID `gorm:"type:uuid" json:"submitted_by_user_id,omitempty"`
	NeedsPasswordSetup bool       `gorm:"default:false" json:"needs_password_setup"`
	SealedSetupToken   string     `json:"-"`

	ReviewedBy     *uuid.UUID `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewNotes    string     `json:"review_notes,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	OrganizationID string     `gorm:"size:64" json:"organization_id,omitempty"`
}

func (OrganizationRequest) TableName() string {
	return "organization_requests"
}
