package dto

import (
	"strings"

	"github.com/hugh/chimeo/internal/api/validation"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/requests"
)

type SubmitOrganizationRequest struct {
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone,omitempty"`

	OrganizationName string `json:"organization_name"`
	OrganizationType string `json:"organization_type"`
	Description      string `json:"description,omitempty"`
	Website          string `json:"website,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Address          string `json:"address,omitempty"`
	City             string `json:"city,omitempty"`
	State            string `json:"state,omitempty"`
	Zip              string `json:"zip,omitempty"`
}

func (r SubmitOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.ContactName) == "" {
		errors["contact_name"] = "Contact name is required"
	}
	if r.ContactEmail == "" {
		errors["contact_email"] = "Contact email is required"
	} else if !validation.IsValidEmail(strings.TrimSpace(r.ContactEmail)) {
		errors["contact_email"] = "Invalid email format"
	}
	if strings.TrimSpace(r.OrganizationName) == "" {
		errors["organization_name"] = "Organization name is required"
	}
	if r.OrganizationType != "" && !models.OrganizationType(r.OrganizationType).Valid() {
		errors["organization_type"] = "Unknown organization type"
	}
	if r.Website != "" && !validation.IsValidURL(r.Website) {
		errors["website"] = "Website must be an http or https URL"
	}
	for field, phone := range map[string]string{"contact_phone": r.ContactPhone, "phone": r.Phone} {
		if phone != "" && !validation.IsValidPhone(phone) {
			errors[field] = "Invalid phone number"
		}
	}
	if r.State != "" && !validation.IsValidState(r.State) {
		errors["state"] = "Use the two-letter state code"
	}
	if r.Zip != "" && !validation.IsValidZip(r.Zip) {
		errors["zip"] = "Invalid ZIP code"
	}

	return errors
}

func (r SubmitOrganizationRequest) Input() requests.SubmitInput {
	orgType := models.OrganizationType(r.OrganizationType)
	if orgType == "" {
		orgType = models.OrganizationTypeOther
	}
	return requests.SubmitInput{
		ContactName:      r.ContactName,
		ContactEmail:     r.ContactEmail,
		ContactPhone:     r.ContactPhone,
		OrganizationName: r.OrganizationName,
		OrganizationType: orgType,
		Description:      r.Description,
		Website:          r.Website,
		Phone:            r.Phone,
		Address:          r.Address,
		City:             r.City,
		State:            strings.ToUpper(r.State),
		Zip:              r.Zip,
	}
}

type ReviewRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

func (r ReviewRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if !requests.Decision(r.Decision).Valid() {
		errors["decision"] = "Decision must be approve, reject or requestMoreInfo"
	}
	return errors
}

type ReviewResponse struct {
	Request      *models.OrganizationRequest `json:"request"`
	Organization *OrganizationDTO            `json:"organization,omitempty"`
	SetupToken   string                      `json:"setup_token,omitempty"`
}

func NewReviewResponse(res *requests.ReviewResult) ReviewResponse {
	out := ReviewResponse{Request: res.Request, SetupToken: res.SetupToken}
	if res.Organization != nil {
		org := NewOrganizationDTO(res.Organization)
		out.Organization = &org
	}
	return out
}
