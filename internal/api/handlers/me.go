package handlers

import (
	"net/http"
	"strconv"

	"github.com/hugh/chimeo/internal/alerts"
	"github.com/hugh/chimeo/internal/api/dto"
	"github.com/hugh/chimeo/internal/api/middleware"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/followers"
)

// MeHandler serves the signed-in user's profile, device and feed.
type MeHandler struct {
	authService *auth.Service
	followers   *followers.Store
	alerts      *alerts.Service
}

func NewMeHandler(authService *auth.Service, followerStore *followers.Store, alertService *alerts.Service) *MeHandler {
	return &MeHandler{authService: authService, followers: followerStore, alerts: alertService}
}

func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.Profile(r.Context())
	if user == nil {
		var err error
		user, err = h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
		if err != nil {
			writeError(w, err, "Failed to load user")
			return
		}
	}
	writeJSON(w, http.StatusOK, dto.NewUserDTO(user))
}

func (h *MeHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	var req dto.PushTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.authService.RegisterPushToken(r.Context(), middleware.GetUserID(r.Context()), req.Token); err != nil {
		writeError(w, err, "Failed to save push token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req dto.PreferencesRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}
	user, err := h.authService.UpdatePreferences(r.Context(), middleware.GetUserID(r.Context()), auth.PreferencesInput{
		AlertRadius: req.AlertRadius,
		Preferences: req.Preferences,
	})
	if err != nil {
		writeError(w, err, "Failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, dto.NewUserDTO(user))
}

func (h *MeHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangePasswordRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}
	if err := h.authService.ChangePassword(r.Context(), middleware.GetUserID(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err, "Failed to change password")
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Password changed"})
}

// Following lists the organizations the user follows.
func (h *MeHandler) Following(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.followers.FollowedOrganizations(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err, "Failed to load followed organizations")
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: dto.NewOrganizationDTOs(orgs), Count: len(orgs)})
}

// Feed returns current alerts from followed organizations.
func (h *MeHandler) Feed(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	feed, err := h.alerts.Feed(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		writeError(w, err, "Failed to load feed")
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: feed, Count: len(feed)})
}
