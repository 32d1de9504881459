package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/chimeo/internal/api/dto"
	"github.com/hugh/chimeo/internal/api/middleware"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/followers"
	"github.com/hugh/chimeo/internal/organizations"
)

// SyncQueue hands follower count repairs to the worker.
type SyncQueue interface {
	EnqueueFollowersSync(ctx context.Context, orgID string) error
}

type OrganizationHandler struct {
	directory *organizations.Directory
	followers *followers.Store
	syncQueue SyncQueue
}

func NewOrganizationHandler(directory *organizations.Directory, followerStore *followers.Store, queue SyncQueue) *OrganizationHandler {
	return &OrganizationHandler{directory: directory, followers: followerStore, syncQueue: queue}
}

func orgID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// List returns verified organizations, ranked by relevance when q is set.
func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	orgs, err := h.directory.Search(r.Context(), q)
	if err != nil {
		writeError(w, err, "Failed to list organizations")
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: dto.NewOrganizationDTOs(orgs), Count: len(orgs)})
}

func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	org, err := h.directory.Get(r.Context(), orgID(r))
	if err != nil {
		writeError(w, err, "Failed to load organization")
		return
	}

	detail := dto.OrganizationDetail{OrganizationDTO: dto.NewOrganizationDTO(org)}
	if id, err := auth.CurrentIdentity(r.Context()); err == nil {
		detail.IsFollowing, _ = h.followers.IsFollowing(r.Context(), id.UserID, org.ID)
		detail.IsAdmin, _ = h.directory.IsAdmin(r.Context(), id, org.ID)
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateOrganizationRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}
	org, err := h.directory.Update(r.Context(), orgID(r), req.Input())
	if err != nil {
		writeError(w, err, "Failed to update organization")
		return
	}
	writeJSON(w, http.StatusOK, dto.NewOrganizationDTO(org))
}

func (h *OrganizationHandler) followState(w http.ResponseWriter, r *http.Request, following bool) {
	org, err := h.directory.Get(r.Context(), orgID(r))
	if err != nil {
		writeError(w, err, "Failed to load organization")
		return
	}
	writeJSON(w, http.StatusOK, dto.FollowResponse{Following: following, FollowerCount: org.FollowerCount})
}

func (h *OrganizationHandler) Follow(w http.ResponseWriter, r *http.Request) {
	if err := h.followers.Follow(r.Context(), middleware.GetUserID(r.Context()), orgID(r)); err != nil {
		writeError(w, err, "Failed to follow organization")
		return
	}
	h.followState(w, r, true)
}

func (h *OrganizationHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	if err := h.followers.Unfollow(r.Context(), middleware.GetUserID(r.Context()), orgID(r)); err != nil {
		writeError(w, err, "Failed to unfollow organization")
		return
	}
	h.followState(w, r, false)
}

// AdminStatus tells the caller whether they administer the organization.
func (h *OrganizationHandler) AdminStatus(w http.ResponseWriter, r *http.Request) {
	id, err := auth.CurrentIdentity(r.Context())
	if err != nil {
		writeError(w, err, "Unauthorized")
		return
	}
	isAdmin, err := h.directory.IsAdmin(r.Context(), id, orgID(r))
	if err != nil {
		writeError(w, err, "Failed to check admin status")
		return
	}
	writeJSON(w, http.StatusOK, dto.AdminStatusResponse{IsAdmin: isAdmin})
}

// ListGroups returns the organization's groups with the caller's opt-in state.
func (h *OrganizationHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.directory.ListGroups(r.Context(), orgID(r))
	if err != nil {
		writeError(w, err, "Failed to list groups")
		return
	}
	prefs, err := h.followers.GroupPreferences(r.Context(), middleware.GetUserID(r.Context()), orgID(r))
	if err != nil {
		writeError(w, err, "Failed to load group preferences")
		return
	}

	out := make([]dto.GroupDTO, len(groups))
	for i, g := range groups {
		out[i] = dto.GroupDTO{Group: g, Enabled: prefs[g.ID]}
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: out, Count: len(out)})
}

func (h *OrganizationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req dto.GroupRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}
	group, err := h.directory.CreateGroup(r.Context(), orgID(r), req.Name, req.Description)
	if err != nil {
		writeError(w, err, "Failed to create group")
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *OrganizationHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := uuidParam(w, r, "groupID")
	if !ok {
		return
	}
	var req dto.UpdateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := h.directory.UpdateGroup(r.Context(), orgID(r), groupID, req.Input())
	if err != nil {
		writeError(w, err, "Failed to update group")
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// SetGroupPreference opts the caller in to (or out of) a group's alerts.
func (h *OrganizationHandler) SetGroupPreference(w http.ResponseWriter, r *http.Request) {
	groupID, ok := uuidParam(w, r, "groupID")
	if !ok {
		return
	}
	var req dto.GroupPreferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.followers.SetGroupPreference(r.Context(), middleware.GetUserID(r.Context()), orgID(r), groupID, req.Enabled)
	if err != nil {
		writeError(w, err, "Failed to save group preference")
		return
	}
	writeJSON(w, http.StatusOK, dto.GroupPreferenceRequest{Enabled: req.Enabled})
}

func (h *OrganizationHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	data, ok := readImage(w, r)
	if !ok {
		return
	}
	org, err := h.directory.UploadLogo(r.Context(), orgID(r), data)
	if err != nil {
		writeError(w, err, "Failed to upload logo")
		return
	}
	writeJSON(w, http.StatusOK, dto.NewOrganizationDTO(org))
}

func (h *OrganizationHandler) DeleteLogo(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.DeleteLogo(r.Context(), orgID(r)); err != nil {
		writeError(w, err, "Failed to delete logo")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncFollowers recomputes the organization's follower count from its edges.
// With async=true the repair runs on the worker and the call returns 202.
func (h *OrganizationHandler) SyncFollowers(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.directory.RequireAdmin(r.Context(), orgID(r)); err != nil {
		writeError(w, err, "Failed to sync followers")
		return
	}

	if r.URL.Query().Get("async") == "true" && h.syncQueue != nil {
		if err := h.syncQueue.EnqueueFollowersSync(r.Context(), orgID(r)); err != nil {
			writeError(w, err, "Failed to queue follower sync")
			return
		}
		writeJSON(w, http.StatusAccepted, dto.SuccessResponse{Message: "Follower sync queued"})
		return
	}

	count, err := h.followers.SyncFollowers(r.Context(), orgID(r))
	if err != nil {
		writeError(w, err, "Failed to sync followers")
		return
	}
	writeJSON(w, http.StatusOK, dto.SyncResponse{FollowerCount: count})
}
