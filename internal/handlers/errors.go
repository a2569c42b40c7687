package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"ecoquest/internal/service"
	"ecoquest/internal/validation"
)

// errorResponse is the body of every failed API call
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func respondWithError(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		log.Printf("%s: %v", logMsg, err)
	}

	writeJSON(w, status, errorResponse{Error: userMsg})
}

func respondWithFields(w http.ResponseWriter, status int, userMsg string, fields map[string]string) {
	writeJSON(w, status, errorResponse{Error: userMsg, Fields: fields})
}

// statusFromError maps service errors to an HTTP status and the message shown to the client
func statusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrQuizNotAvailable),
		errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrRejectionReasonRequired),
		errors.Is(err, service.ErrUnsupportedScope),
		errors.Is(err, service.ErrInvalidResetToken),
		errors.Is(err, service.ErrResetTokenUsed),
		errors.Is(err, service.ErrResetTokenExpired),
		errors.Is(err, service.ErrOAuthInfoMissing):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials),
		service.IsAuthError(err):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrRequestTimedOut
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, ErrRequestSuperseded
	default:
		return http.StatusInternalServerError, ErrInternalServerError
	}
}

// respondWithServiceError writes the JSON error for err. Validation failures carry their
// per-field messages; unexpected errors are logged with logMsg.
func respondWithServiceError(w http.ResponseWriter, logMsg string, err error) {
	if fields, ok := validation.AsFields(err); ok {
		respondWithFields(w, http.StatusBadRequest, "Validation failed", fields)
		return
	}
	if errors.Is(err, service.ErrRejectionReasonRequired) {
		respondWithFields(w, http.StatusBadRequest, err.Error(), map[string]string{"reason": err.Error()})
		return
	}

	status, msg := statusFromError(err)
	if status >= http.StatusInternalServerError {
		respondWithError(w, status, msg, logMsg, err)
		return
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads a JSON request body into dst, rejecting unknown fields and trailing data
func decodeJSON(r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// pathID parses the {name} path value as a positive integer id
func pathID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}
