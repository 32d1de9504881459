package handlers

import (
	"net/http"

	"github.com/hugh/chimeo/internal/alerts"
	"github.com/hugh/chimeo/internal/api/dto"
)

type AlertHandler struct {
	alerts *alerts.Service
}

func NewAlertHandler(alertService *alerts.Service) *AlertHandler {
	return &AlertHandler{alerts: alertService}
}

// List returns the organization's alerts. Pass include_expired=true for history.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	includeExpired := r.URL.Query().Get("include_expired") == "true"
	list, err := h.alerts.ListForOrganization(r.Context(), orgID(r), includeExpired)
	if err != nil {
		writeError(w, err, "Failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: list, Count: len(list)})
}

func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAlertRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}
	alert, err := h.alerts.Post(r.Context(), req.Input(orgID(r)))
	if err != nil {
		writeError(w, err, "Failed to post alert")
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (h *AlertHandler) Delete(w http.ResponseWriter, r *http.Request) {
	alertID, ok := uuidParam(w, r, "alertID")
	if !ok {
		return
	}
	if err := h.alerts.Delete(r.Context(), orgID(r), alertID); err != nil {
		writeError(w, err, "Failed to delete alert")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage stores an image to attach to an alert and returns its URL.
func (h *AlertHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	data, ok := readImage(w, r)
	if !ok {
		return
	}
	url, err := h.alerts.UploadImage(r.Context(), orgID(r), data)
	if err != nil {
		writeError(w, err, "Failed to upload image")
		return
	}
	writeJSON(w, http.StatusCreated, dto.ImageResponse{URL: url})
}
