package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pesocareers/support-chat/internal/support"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[httpapi] response encode failed: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// respondServiceError maps service sentinel errors onto HTTP statuses.
// Validation errors from the message package arrive as plain errors and map
// to 400; anything unrecognized is a 500.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, support.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "session does not exist or has expired")
	case errors.Is(err, support.ErrSessionClosed):
		respondError(w, http.StatusConflict, "session_closed", "session is closed")
	case errors.Is(err, support.ErrAlreadyJoined):
		respondError(w, http.StatusConflict, "already_joined", "session already has an admin")
	case errors.Is(err, support.ErrNotParticipant):
		respondError(w, http.StatusForbidden, "forbidden", "not a participant of this session")
	case isValidationError(err):
		respondError(w, http.StatusBadRequest, "invalid_message", err.Error())
	default:
		log.Printf("[httpapi] internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
