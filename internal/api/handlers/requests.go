package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/hugh/chimeo/internal/api/dto"
	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/requests"
)

type RequestHandler struct {
	manager *requests.Manager
}

func NewRequestHandler(manager *requests.Manager) *RequestHandler {
	return &RequestHandler{manager: manager}
}

// Submit is open to anonymous applicants; a signed-in caller is recorded as
// the submitter.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitOrganizationRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}
	created, err := h.manager.Submit(r.Context(), req.Input())
	if err != nil {
		writeError(w, err, "Failed to submit request")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := dto.PaginationParams{}
	page.Page, _ = strconv.Atoi(q.Get("page"))
	page.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	page.Normalize()

	list, total, err := h.manager.List(r.Context(), requests.ListFilter{
		Status: models.RequestStatus(q.Get("status")),
		Limit:  page.PerPage,
		Offset: page.Offset(),
	})
	if err != nil {
		writeError(w, err, "Failed to list requests")
		return
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       list,
		Total:      total,
		Page:       page.Page,
		PerPage:    page.PerPage,
		TotalPages: page.TotalPages(total),
	})
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	req, err := h.manager.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to load request")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var body dto.ReviewRequest
	if !decodeJSON(w, r, &body) || !validate(w, body.Validate()) {
		return
	}

	reviewer, err := auth.CurrentIdentity(r.Context())
	if err != nil {
		writeError(w, err, "Unauthorized")
		return
	}

	res, err := h.manager.Review(r.Context(), id, reviewer.UserID, requests.Decision(body.Decision), body.Notes)
	if err != nil {
		writeError(w, err, "Failed to review request")
		return
	}
	writeJSON(w, http.StatusOK, dto.NewReviewResponse(res))
}

// Resubmit lets the applicant (or a platform admin) answer a request for
// more information.
func (h *RequestHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var body dto.SubmitOrganizationRequest
	if !decodeJSON(w, r, &body) || !validate(w, body.Validate()) {
		return
	}

	caller, err := auth.CurrentIdentity(r.Context())
	if err != nil {
		writeError(w, err, "Unauthorized")
		return
	}
	existing, err := h.manager.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to load request")
		return
	}
	if !isApplicant(existing, caller) && !caller.IsPlatformAdmin() {
		writeError(w, apperr.ErrForbidden, "Forbidden")
		return
	}

	updated, err := h.manager.Resubmit(r.Context(), id, body.Input())
	if err != nil {
		writeError(w, err, "Failed to resubmit request")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func isApplicant(req *models.OrganizationRequest, id auth.Identity) bool {
	if req.SubmittedByUserID != nil && *req.SubmittedByUserID == id.UserID {
		return true
	}
	return id.Email != "" && strings.EqualFold(req.ContactEmail, id.Email)
}
