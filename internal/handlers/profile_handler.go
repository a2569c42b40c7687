package handlers

import (
	"net/http"
	"strconv"

	"ecoquest/internal/service"
)

// ProfileHandler serves the caller's profile, dashboard and activity feed
type ProfileHandler struct {
	profileService   *service.ProfileService
	dashboardService *service.DashboardService
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profileService *service.ProfileService, dashboardService *service.DashboardService) *ProfileHandler {
	return &ProfileHandler{
		profileService:   profileService,
		dashboardService: dashboardService,
	}
}

// GetProfile returns the caller's profile with level state
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	writeJSON(w, http.StatusOK, h.profileService.View(vm.Profile))
}

// UpdateProfile applies a partial profile update
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	var req service.UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	view, err := h.profileService.UpdateProfile(r.Context(), vm.User.ID, req)
	if err != nil {
		respondWithServiceError(w, "Error updating profile", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Dashboard returns the role-specific dashboard
func (h *ProfileHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	dashboard, err := h.dashboardService.GetDashboard(r.Context(), vm.User.ID)
	if err != nil {
		respondWithServiceError(w, "Error loading dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// Activity returns the recent activity feed
func (h *ProfileHandler) Activity(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	limit := defaultActivityFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondWithFields(w, http.StatusBadRequest, "Validation failed", map[string]string{"limit": "limit must be a number"})
			return
		}
		limit = n
	}

	feed, err := h.dashboardService.ActivityFeed(r.Context(), vm.User.ID, limit)
	if err != nil {
		respondWithServiceError(w, "Error loading activity", err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}
