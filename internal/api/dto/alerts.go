package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/alerts"
	"github.com/hugh/chimeo/internal/api/validation"
	"github.com/hugh/chimeo/internal/database/models"
)

type CreateAlertRequest struct {
	GroupID     *uuid.UUID       `json:"group_id,omitempty"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Type        string           `json:"type"`
	Severity    models.Severity  `json:"severity"`
	Location    *models.Location `json:"location,omitempty"`
	ImageURLs   []string         `json:"image_urls,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
}

func (r CreateAlertRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Title == "" {
		errors["title"] = "Title is required"
	} else if len(r.Title) > 200 {
		errors["title"] = "Title must be at most 200 characters"
	}
	if r.Description == "" {
		errors["description"] = "Description is required"
	}
	if !r.Severity.Valid() {
		errors["severity"] = "Severity must be low, medium, high or critical"
	}
	for _, u := range r.ImageURLs {
		if !validation.IsValidURL(u) {
			errors["image_urls"] = "Image URLs must be http or https URLs"
			break
		}
	}

	return errors
}

func (r CreateAlertRequest) Input(orgID string) alerts.PostInput {
	return alerts.PostInput{
		OrganizationID: orgID,
		GroupID:        r.GroupID,
		Title:          validation.SanitizeString(r.Title),
		Description:    validation.SanitizeString(r.Description),
		Type:           r.Type,
		Severity:       r.Severity,
		Location:       r.Location,
		ImageURLs:      r.ImageURLs,
		ExpiresAt:      r.ExpiresAt,
	}
}

type CreateScheduleRequest struct {
	CreateAlertRequest
	ScheduledFor time.Time `json:"scheduled_for"`
	Recurrence   string    `json:"recurrence,omitempty"`
}

func (r CreateScheduleRequest) Validate() map[string]string {
	errors := r.CreateAlertRequest.Validate()
	if r.ScheduledFor.IsZero() {
		errors["scheduled_for"] = "Scheduled time is required"
	}
	return errors
}

func (r CreateScheduleRequest) Input(orgID string) alerts.ScheduleInput {
	return alerts.ScheduleInput{
		PostInput:    r.CreateAlertRequest.Input(orgID),
		ScheduledFor: r.ScheduledFor,
		Recurrence:   r.Recurrence,
	}
}

type ImageResponse struct {
	URL string `json:"url"`
}
