package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ecoquest/internal/service"
)

// MissionHandler serves missions, submissions and the organization review queue
type MissionHandler struct {
	missionService  *service.MissionService
	maxUploadBytes  int64
	transferTimeout time.Duration
}

// NewMissionHandler creates a new mission handler. transferTimeout bounds a
// video upload in place of the API request timeout.
func NewMissionHandler(missionService *service.MissionService, maxUploadBytes int64, transferTimeout time.Duration) *MissionHandler {
	return &MissionHandler{
		missionService:  missionService,
		maxUploadBytes:  maxUploadBytes,
		transferTimeout: transferTimeout,
	}
}

// ListMissions returns the active missions with the caller's submission status
func (h *MissionHandler) ListMissions(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	missions, err := h.missionService.ListMissions(r.Context(), vm.User.ID)
	if err != nil {
		respondWithServiceError(w, "Error listing missions", err)
		return
	}
	writeJSON(w, http.StatusOK, missions)
}

// GetMission returns one mission
func (h *MissionHandler) GetMission(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	missionID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}

	mission, err := h.missionService.GetMission(r.Context(), vm.User.ID, missionID)
	if err != nil {
		respondWithServiceError(w, "Error loading mission", err)
		return
	}
	writeJSON(w, http.StatusOK, mission)
}

// StartMission opens a submission for the caller
func (h *MissionHandler) StartMission(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	missionID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}

	result, err := h.missionService.StartMission(r.Context(), vm.User.ID, missionID)
	if err != nil {
		respondWithServiceError(w, "Error starting mission", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SubmitMission accepts a multipart form with a description and an optional video file
func (h *MissionHandler) SubmitMission(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	missionID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}

	if h.transferTimeout > 0 {
		extendDeadlines(w, h.transferTimeout)
		ctx, cancel := context.WithTimeout(r.Context(), h.transferTimeout)
		defer cancel()
		r = r.WithContext(ctx)
	}
	if h.maxUploadBytes > 0 {
		// room for the description and multipart framing
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	}
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, ErrVideoUploadTooLarge, "", nil)
			return
		}
		respondWithError(w, http.StatusBadRequest, ErrInvalidFormData, "", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := service.SubmitMissionRequest{Description: r.FormValue("description")}

	file, header, err := r.FormFile("video")
	switch {
	case err == nil:
		defer file.Close()
		req.Video = &service.VideoUpload{
			Size: header.Size,
			Body: file,
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		respondWithError(w, http.StatusBadRequest, ErrInvalidFormData, "", nil)
		return
	}

	submission, err := h.missionService.SubmitMission(r.Context(), vm.User.ID, missionID, req)
	if err != nil {
		respondWithServiceError(w, "Error submitting mission", err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// ReviewQueue lists the submissions awaiting the calling organization's review
func (h *MissionHandler) ReviewQueue(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	items, err := h.missionService.ListReviewQueue(r.Context(), vm.User.ID)
	if err != nil {
		respondWithServiceError(w, "Error loading review queue", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ApproveSubmission approves a submission, optionally overriding the points
func (h *MissionHandler) ApproveSubmission(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	submissionID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}

	var req ApproveRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	submission, err := h.missionService.ApproveSubmission(r.Context(), vm.User.ID, submissionID, req.Points)
	if err != nil {
		respondWithServiceError(w, "Error approving submission", err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// RejectSubmission rejects a submission with a reason
func (h *MissionHandler) RejectSubmission(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	submissionID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}

	var req RejectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	submission, err := h.missionService.RejectSubmission(r.Context(), vm.User.ID, submissionID, strings.TrimSpace(req.Reason))
	if err != nil {
		respondWithServiceError(w, "Error rejecting submission", err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// SubmissionVideo returns a short-lived link to a submission's video
func (h *MissionHandler) SubmissionVideo(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	submissionID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}

	url, err := h.missionService.SubmissionVideoURL(r.Context(), vm.User.ID, submissionID)
	if err != nil {
		respondWithServiceError(w, "Error signing video URL", err)
		return
	}
	writeJSON(w, http.StatusOK, VideoURLResponse{URL: url})
}
