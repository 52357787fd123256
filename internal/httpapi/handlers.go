package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pesocareers/support-chat/internal/event"
	"github.com/pesocareers/support-chat/internal/message"
	"github.com/pesocareers/support-chat/internal/metrics"
	"github.com/pesocareers/support-chat/internal/ratelimit"
	"github.com/pesocareers/support-chat/internal/session"
)

func isValidationError(err error) bool {
	return errors.Is(err, message.ErrInvalidBody)
}

// allowed runs a rate-limit check and writes the 429 response itself when
// the limit is exceeded.
func (s *Server) allowed(w http.ResponseWriter, r *http.Request, identifier string, rule ratelimit.Rule) bool {
	ok, _ := s.limiter.Allow(r.Context(), identifier, rule)
	if !ok {
		metrics.RequestsRejected.WithLabelValues("rate_limited").Inc()
		respondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
	}
	return ok
}

type requestChatRequest struct {
	Concern string `json:"concern"`
}

type requestChatResponse struct {
	SessionID string        `json:"session_id"`
	Status    string        `json:"status"`
	Message   event.Message `json:"message"`
}

func (s *Server) handleRequestChat(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	if !s.allowed(w, r, id.UserID, ratelimit.RuleRequest) {
		return
	}

	var req requestChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}

	res, err := s.svc.RequestChat(r.Context(), id, req.Concern)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, requestChatResponse{
		SessionID: res.Session.ID,
		Status:    res.Session.Status,
		Message:   res.Message,
	})
}

type sendMessageRequest struct {
	SessionID string `json:"session_id"`
	Body      string `json:"body"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "session_id is required")
		return
	}

	if !s.allowed(w, r, req.SessionID, ratelimit.RuleMessage) {
		return
	}

	msg, err := s.svc.SendMessage(r.Context(), id, req.SessionID, req.Body)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]event.Message{"message": msg})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "session_id is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs, err := s.svc.History(r.Context(), id, sessionID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string][]event.Message{"messages": msgs})
}

type typingRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var req typingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_json", "session_id is required")
		return
	}

	if err := s.svc.Typing(r.Context(), id, req.SessionID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type closeRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_json", "session_id is required")
		return
	}

	if err := s.svc.Close(r.Context(), id, req.SessionID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	sess, err := s.svc.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !id.IsStaff() && sess.RequesterID != id.UserID {
		respondError(w, http.StatusForbidden, "forbidden", "not a participant of this session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":     sess.ID,
		"status": sess.Status,
	})
}

func (s *Server) handleFAQs(w http.ResponseWriter, r *http.Request) {
	faqs, err := s.svc.FAQs(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"faqs": faqs})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	sess, err := s.svc.Join(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":       sess.ID,
		"status":   sess.Status,
		"admin_id": sess.AdminID,
	})
}

func (s *Server) handleWaiting(w http.ResponseWriter, r *http.Request) {
	limit := int64(100)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	waiting, err := s.svc.Waiting(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string][]session.WaitingEntry{"waiting": waiting})
}
