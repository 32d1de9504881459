package handlers

import (
	"net/http"

	"github.com/hugh/chimeo/internal/api/dto"
)

// Scheduled alerts share the alert service; these handlers hang off AlertHandler.

func (h *AlertHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := h.alerts.ListSchedules(r.Context(), orgID(r))
	if err != nil {
		writeError(w, err, "Failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: list, Count: len(list)})
}

func (h *AlertHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateScheduleRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}
	sched, err := h.alerts.CreateSchedule(r.Context(), req.Input(orgID(r)))
	if err != nil {
		writeError(w, err, "Failed to create schedule")
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (h *AlertHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := uuidParam(w, r, "scheduleID")
	if !ok {
		return
	}
	if err := h.alerts.DeleteSchedule(r.Context(), orgID(r), scheduleID); err != nil {
		writeError(w, err, "Failed to delete schedule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
