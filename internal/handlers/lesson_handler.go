package handlers

import (
	"net/http"

	"ecoquest/internal/service"
	"ecoquest/internal/validation"
)

// LessonHandler serves the lesson catalog and drives the lesson stage machine
type LessonHandler struct {
	lessonService *service.LessonService
}

// NewLessonHandler creates a new lesson handler
func NewLessonHandler(lessonService *service.LessonService) *LessonHandler {
	return &LessonHandler{lessonService: lessonService}
}

// ListLessons returns the published lessons with the caller's progress
func (h *LessonHandler) ListLessons(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	lessons, err := h.lessonService.ListLessons(r.Context(), vm.User.ID)
	if err != nil {
		respondWithServiceError(w, "Error listing lessons", err)
		return
	}
	writeJSON(w, http.StatusOK, lessons)
}

// GetLesson returns a lesson by id or slug
func (h *LessonHandler) GetLesson(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())

	lesson, err := h.lessonService.GetLesson(r.Context(), vm.User.ID, r.PathValue("ref"))
	if err != nil {
		respondWithServiceError(w, "Error loading lesson", err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

// transition runs a bodiless stage transition on the lesson in the path
func (h *LessonHandler) transition(w http.ResponseWriter, r *http.Request, logMsg string,
	fn func(r *http.Request, userID, lessonID int64) (*service.LessonState, error)) {
	vm := GetViewModel(r.Context())
	lessonID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}

	state, err := fn(r, vm.User.ID, lessonID)
	if err != nil {
		respondWithServiceError(w, logMsg, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// StartLesson moves a new lesson to the video stage
func (h *LessonHandler) StartLesson(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Error starting lesson", func(r *http.Request, userID, lessonID int64) (*service.LessonState, error) {
		return h.lessonService.StartLesson(r.Context(), userID, lessonID)
	})
}

// VideoProgress records the playback position of the lesson video
func (h *LessonHandler) VideoProgress(w http.ResponseWriter, r *http.Request) {
	var req VideoProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}
	if err := validation.Struct(req); err != nil {
		respondWithServiceError(w, "", err)
		return
	}

	h.transition(w, r, "Error recording video progress", func(r *http.Request, userID, lessonID int64) (*service.LessonState, error) {
		return h.lessonService.RecordVideoProgress(r.Context(), userID, lessonID, req.Position, req.Duration)
	})
}

// CompleteVideo moves the lesson past the video stage
func (h *LessonHandler) CompleteVideo(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Error completing video", func(r *http.Request, userID, lessonID int64) (*service.LessonState, error) {
		return h.lessonService.CompleteVideo(r.Context(), userID, lessonID)
	})
}

// SubmitQuiz scores a quiz attempt
func (h *LessonHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	lessonID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidID, "", nil)
		return
	}

	var req QuizRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	result, err := h.lessonService.SubmitQuiz(r.Context(), vm.User.ID, lessonID, req.Answers)
	if err != nil {
		respondWithServiceError(w, "Error submitting quiz", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CompleteLesson finishes a lesson that has no pending missions
func (h *LessonHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Error completing lesson", func(r *http.Request, userID, lessonID int64) (*service.LessonState, error) {
		return h.lessonService.CompleteLesson(r.Context(), userID, lessonID)
	})
}
