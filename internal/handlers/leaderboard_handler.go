package handlers

import (
	"net/http"
	"strings"

	"ecoquest/internal/models"
	"ecoquest/internal/service"
)

// LeaderboardHandler serves the student and organization rankings
type LeaderboardHandler struct {
	leaderboardService *service.LeaderboardService
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(leaderboardService *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: leaderboardService}
}

func requestedScope(r *http.Request) models.Scope {
	return models.Scope(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("scope"))))
}

// Students returns the top students in the requested or default scope
func (h *LeaderboardHandler) Students(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	board, err := h.leaderboardService.StudentLeaderboard(r.Context(), vm.User.ID, requestedScope(r))
	if err != nil {
		respondWithServiceError(w, "Error loading student leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// StudentRank returns the caller's rank in the requested or default scope
func (h *LeaderboardHandler) StudentRank(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	scope, rank, err := h.leaderboardService.StudentRank(r.Context(), vm.User.ID, requestedScope(r))
	if err != nil {
		respondWithServiceError(w, "Error loading student rank", err)
		return
	}
	writeJSON(w, http.StatusOK, RankResponse{Scope: scope, Rank: rank})
}

// Organizations returns the top organizations
func (h *LeaderboardHandler) Organizations(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	board, err := h.leaderboardService.OrganizationLeaderboard(r.Context(), vm.User.ID, requestedScope(r))
	if err != nil {
		respondWithServiceError(w, "Error loading organization leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
