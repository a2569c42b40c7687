package handlers

import (
	"net/http"

	"ecoquest/internal/service"
)

// BadgeHandler serves the badge catalog and earned badges
type BadgeHandler struct {
	badgeService *service.BadgeService
}

// NewBadgeHandler creates a new badge handler
func NewBadgeHandler(badgeService *service.BadgeService) *BadgeHandler {
	return &BadgeHandler{badgeService: badgeService}
}

// ListBadges returns every badge
func (h *BadgeHandler) ListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := h.badgeService.ListBadges(r.Context())
	if err != nil {
		respondWithServiceError(w, "Error listing badges", err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

// MyBadges returns the badges the caller has earned
func (h *BadgeHandler) MyBadges(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	earned, err := h.badgeService.ListEarnedBadges(r.Context(), vm.User.ID)
	if err != nil {
		respondWithServiceError(w, "Error listing earned badges", err)
		return
	}
	writeJSON(w, http.StatusOK, earned)
}
