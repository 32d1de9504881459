package dto

import (
	"github.com/hugh/chimeo/internal/api/validation"
	"github.com/hugh/chimeo/internal/database/models"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r RegisterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(r.Email) {
		errors["email"] = "Invalid email format"
	}
	if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}
	if r.Name == "" {
		errors["name"] = "Name is required"
	}

	return errors
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

// SetupPasswordRequest activates a provisioned account.
type SetupPasswordRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r SetupPasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Token == "" {
		errors["token"] = "Setup token is required"
	}
	if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}

	return errors
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r ChangePasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.CurrentPassword == "" {
		errors["current_password"] = "Current password is required"
	}
	if ok, msg := validation.IsValidPassword(r.NewPassword); !ok {
		errors["new_password"] = msg
	}

	return errors
}

type PushTokenRequest struct {
	Token string `json:"token"`
}

type PreferencesRequest struct {
	AlertRadius *float64                        `json:"alert_radius,omitempty"`
	Preferences *models.NotificationPreferences `json:"preferences,omitempty"`
}

func (r PreferencesRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.AlertRadius != nil && (*r.AlertRadius <= 0 || *r.AlertRadius > 500) {
		errors["alert_radius"] = "Alert radius must be between 0 and 500 miles"
	}
	if p := r.Preferences; p != nil {
		if (p.QuietHoursStart == "") != (p.QuietHoursEnd == "") {
			errors["quiet_hours"] = "Quiet hours need both a start and an end"
		}
		if p.QuietHoursStart != "" && !validation.IsValidClock(p.QuietHoursStart) {
			errors["quiet_hours_start"] = "Use 24-hour HH:MM"
		}
		if p.QuietHoursEnd != "" && !validation.IsValidClock(p.QuietHoursEnd) {
			errors["quiet_hours_end"] = "Use 24-hour HH:MM"
		}
	}

	return errors
}

type AuthResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type UserDTO struct {
	ID                  string                         `json:"id"`
	Email               string                         `json:"email"`
	Name                string                         `json:"name"`
	Role                string                         `json:"role"`
	AuthProvider        string                         `json:"auth_provider"`
	IsPlatformAdmin     bool                           `json:"is_platform_admin"`
	IsOrganizationAdmin bool                           `json:"is_organization_admin"`
	OrganizationIDs     []string                       `json:"organization_ids,omitempty"`
	AlertRadius         float64                        `json:"alert_radius"`
	Preferences         models.NotificationPreferences `json:"preferences"`
	HasPushToken        bool                           `json:"has_push_token"`
	NeedsPasswordSetup  bool                           `json:"needs_password_setup,omitempty"`
}

func NewUserDTO(u *models.User) UserDTO {
	return UserDTO{
		ID:                  u.ID.String(),
		Email:               u.Email,
		Name:                u.Name,
		Role:                u.Role(),
		AuthProvider:        string(u.AuthProvider),
		IsPlatformAdmin:     u.IsPlatformAdmin,
		IsOrganizationAdmin: u.IsOrganizationAdmin,
		OrganizationIDs:     u.OrganizationIDs,
		AlertRadius:         u.AlertRadius,
		Preferences:         u.Preferences,
		HasPushToken:        u.PushToken != "",
		NeedsPasswordSetup:  u.NeedsPasswordSetup,
	}
}
