package handlers

import (
	"errors"
	"io/fs"
	"log"
	"net/http"
	"path"
	"time"

	"ecoquest/internal/realtime"
	"ecoquest/internal/storage"
)

// MediaHandler serves locally stored uploads behind signed tokens
type MediaHandler struct {
	store           *storage.LocalStorage
	transferTimeout time.Duration
}

// NewMediaHandler creates a media handler; a nil store answers 404 for every key
func NewMediaHandler(store *storage.LocalStorage, transferTimeout time.Duration) *MediaHandler {
	return &MediaHandler{store: store, transferTimeout: transferTimeout}
}

// extendDeadlines replaces the server's read and write timeouts for one media transfer
func extendDeadlines(w http.ResponseWriter, d time.Duration) {
	rc := http.NewResponseController(w)
	deadline := time.Now().Add(d)
	if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Printf("Error extending read deadline: %v", err)
	}
	if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Printf("Error extending write deadline: %v", err)
	}
}

// Serve streams the object named by the path when the token query parameter is valid
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondWithError(w, http.StatusNotFound, ErrMediaNotAvailable, "", nil)
		return
	}

	key := r.PathValue("key")
	file, err := h.store.Open(key, r.URL.Query().Get("token"))
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, storage.ErrInvalidKey):
			respondWithError(w, http.StatusNotFound, ErrMediaNotAvailable, "", nil)
		default:
			respondWithError(w, http.StatusForbidden, ErrMediaNotAvailable, "", nil)
		}
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error reading media", err)
		return
	}
	if h.transferTimeout > 0 {
		extendDeadlines(w, h.transferTimeout)
	}
	w.Header().Set("Content-Type", storage.ContentTypeForKey(key))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=300")
	http.ServeContent(w, r, path.Base(key), info.ModTime(), file)
}

// RealtimeHandler attaches signed-in clients to the event hub
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler creates a new websocket handler
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// ServeWS upgrades the connection and subscribes it to the caller's events
func (h *RealtimeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	vm := GetViewModel(r.Context())
	h.hub.ServeWS(w, r, realtime.Subscriber{
		UserID:           vm.User.ID,
		OrganizationCode: vm.Profile.OrganizationCode,
		Reviewer:         vm.IsOrganization(),
	})
}
