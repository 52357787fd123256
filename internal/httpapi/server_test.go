package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pesocareers/support-chat/internal/auth"
	"github.com/pesocareers/support-chat/internal/event"
	"github.com/pesocareers/support-chat/internal/faq"
	"github.com/pesocareers/support-chat/internal/message"
	"github.com/pesocareers/support-chat/internal/ratelimit"
	"github.com/pesocareers/support-chat/internal/session"
	"github.com/pesocareers/support-chat/internal/support"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeService struct {
	requestErr error
	sendErr    error
	sessions   map[string]*session.Session
	history    []event.Message
}

func newFakeService() *fakeService {
	return &fakeService{sessions: make(map[string]*session.Session)}
}

func (f *fakeService) RequestChat(_ context.Context, requester auth.Identity, concern string) (*support.RequestResult, error) {
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	if err := message.ValidateBody(concern); err != nil {
		return nil, err
	}
	sess := &session.Session{ID: "sess-1", RequesterID: requester.UserID, Status: session.StatusWaiting}
	f.sessions[sess.ID] = sess
	return &support.RequestResult{
		Session: sess,
		Message: event.Message{ID: "msg-1", SessionID: sess.ID, Sender: event.SenderUser, Body: concern},
	}, nil
}

func (f *fakeService) SendMessage(_ context.Context, from auth.Identity, sessionID, body string) (event.Message, error) {
	if f.sendErr != nil {
		return event.Message{}, f.sendErr
	}
	sess, ok := f.sessions[sessionID]
	if !ok {
		return event.Message{}, support.ErrSessionNotFound
	}
	if sess.IsClosed() {
		return event.Message{}, support.ErrSessionClosed
	}
	if err := message.ValidateBody(body); err != nil {
		return event.Message{}, err
	}
	return event.Message{ID: "msg-2", SessionID: sessionID, Sender: event.SenderUser, Body: body}, nil
}

func (f *fakeService) Join(_ context.Context, admin auth.Identity, sessionID string) (*session.Session, error) {
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, support.ErrSessionNotFound
	}
	if sess.Status != session.StatusWaiting {
		return nil, support.ErrAlreadyJoined
	}
	sess.Status = session.StatusActive
	sess.AdminID = admin.UserID
	return sess, nil
}

func (f *fakeService) Close(_ context.Context, _ auth.Identity, sessionID string) error {
	sess, ok := f.sessions[sessionID]
	if !ok {
		return support.ErrSessionNotFound
	}
	sess.Status = session.StatusClosed
	return nil
}

func (f *fakeService) Session(_ context.Context, sessionID string) (*session.Session, error) {
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, support.ErrSessionNotFound
	}
	return sess, nil
}

func (f *fakeService) History(_ context.Context, _ auth.Identity, sessionID string, _ int) ([]event.Message, error) {
	if _, ok := f.sessions[sessionID]; !ok {
		return nil, support.ErrSessionNotFound
	}
	return f.history, nil
}

func (f *fakeService) Waiting(_ context.Context, _ int64) ([]session.WaitingEntry, error) {
	var out []session.WaitingEntry
	for id, sess := range f.sessions {
		if sess.Status == session.StatusWaiting {
			out = append(out, session.WaitingEntry{SessionID: id})
		}
	}
	return out, nil
}

func (f *fakeService) FAQs(_ context.Context, _ string) ([]faq.FAQ, error) {
	return faq.Fallback(), nil
}

func (f *fakeService) Typing(_ context.Context, _ auth.Identity, _ string) error {
	return nil
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string, ratelimit.Rule) (bool, error) { return true, nil }

type denyAll struct{}

func (denyAll) Allow(context.Context, string, ratelimit.Rule) (bool, error) { return false, nil }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T, svc ChatService, limiter RateLimiter) (*Server, *auth.Manager) {
	t.Helper()
	tokens, err := auth.NewManager("test-secret-for-httpapi", time.Hour)
	if err != nil {
		t.Fatalf("auth.NewManager() error: %v", err)
	}
	srv := New(Config{
		Service:        svc,
		Tokens:         tokens,
		Limiter:        limiter,
		AllowedOrigins: []string{"*"},
	})
	return srv, tokens
}

func bearer(t *testing.T, tokens *auth.Manager, userID, role string) string {
	t.Helper()
	token, err := tokens.Generate(userID, "Test User", role)
	if err != nil {
		t.Fatalf("token generation failed: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, srv *Server, method, path, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, newFakeService(), allowAll{})

	rec := doJSON(t, srv, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequestChatRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, newFakeService(), allowAll{})

	rec := doJSON(t, srv, http.MethodPost, "/chat/request", "", `{"concern":"help"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequestChatRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t, newFakeService(), allowAll{})

	rec := doJSON(t, srv, http.MethodPost, "/chat/request", "Bearer notatoken", `{"concern":"help"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequestChatSuccess(t *testing.T) {
	srv, tokens := newTestServer(t, newFakeService(), allowAll{})
	authz := bearer(t, tokens, "user-1", auth.RoleSeeker)

	rec := doJSON(t, srv, http.MethodPost, "/chat/request", authz, `{"concern":"I need help with my application"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		SessionID string        `json:"session_id"`
		Status    string        `json:"status"`
		Message   event.Message `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode failed: %v", err)
	}
	if resp.SessionID == "" || resp.Status != session.StatusWaiting {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Message.ID == "" {
		t.Error("response must carry the persisted message id for echo dedup")
	}
}

func TestRequestChatValidation(t *testing.T) {
	srv, tokens := newTestServer(t, newFakeService(), allowAll{})
	authz := bearer(t, tokens, "user-1", auth.RoleSeeker)

	rec := doJSON(t, srv, http.MethodPost, "/chat/request", authz, `{"concern":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank concern, got %d", rec.Code)
	}
}

func TestRequestChatRateLimited(t *testing.T) {
	srv, tokens := newTestServer(t, newFakeService(), denyAll{})
	authz := bearer(t, tokens, "user-1", auth.RoleSeeker)

	rec := doJSON(t, srv, http.MethodPost, "/chat/request", authz, `{"concern":"help"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestSendMessageMapsServiceErrors(t *testing.T) {
	svc := newFakeService()
	srv, tokens := newTestServer(t, svc, allowAll{})
	authz := bearer(t, tokens, "user-1", auth.RoleSeeker)

	// Unknown session -> 404.
	rec := doJSON(t, srv, http.MethodPost, "/chat/messages", authz, `{"session_id":"nope","body":"hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	// Closed session -> 409.
	svc.sessions["closed-1"] = &session.Session{ID: "closed-1", Status: session.StatusClosed}
	rec = doJSON(t, srv, http.MethodPost, "/chat/messages", authz, `{"session_id":"closed-1","body":"hi"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	// Missing session id -> 400.
	rec = doJSON(t, srv, http.MethodPost, "/chat/messages", authz, `{"body":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireStaffRole(t *testing.T) {
	svc := newFakeService()
	svc.sessions["sess-1"] = &session.Session{ID: "sess-1", Status: session.StatusWaiting}
	srv, tokens := newTestServer(t, svc, allowAll{})

	seekerAuthz := bearer(t, tokens, "user-1", auth.RoleSeeker)
	rec := doJSON(t, srv, http.MethodPost, "/admin/sessions/sess-1/join", seekerAuthz, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seeker, got %d", rec.Code)
	}

	staffAuthz := bearer(t, tokens, "staff-1", auth.RoleStaff)
	rec = doJSON(t, srv, http.MethodPost, "/admin/sessions/sess-1/join", staffAuthz, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for staff, got %d: %s", rec.Code, rec.Body.String())
	}

	// Second join conflicts.
	rec = doJSON(t, srv, http.MethodPost, "/admin/sessions/sess-1/join", staffAuthz, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on repeat join, got %d", rec.Code)
	}
}

func TestWaitingQueueEndpoint(t *testing.T) {
	svc := newFakeService()
	svc.sessions["sess-1"] = &session.Session{ID: "sess-1", Status: session.StatusWaiting}
	srv, tokens := newTestServer(t, svc, allowAll{})
	staffAuthz := bearer(t, tokens, "staff-1", auth.RoleStaff)

	rec := doJSON(t, srv, http.MethodGet, "/admin/sessions/waiting", staffAuthz, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Waiting []session.WaitingEntry `json:"waiting"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode failed: %v", err)
	}
	if len(resp.Waiting) != 1 || resp.Waiting[0].SessionID != "sess-1" {
		t.Errorf("unexpected waiting list: %+v", resp.Waiting)
	}
}

func TestFAQsArePublic(t *testing.T) {
	srv, _ := newTestServer(t, newFakeService(), allowAll{})

	rec := doJSON(t, srv, http.MethodGet, "/chat/faqs", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without auth, got %d", rec.Code)
	}

	var resp struct {
		FAQs []faq.FAQ `json:"faqs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode failed: %v", err)
	}
	if len(resp.FAQs) == 0 {
		t.Error("expected a non-empty FAQ list")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	svc := newFakeService()
	svc.sessions["sess-1"] = &session.Session{ID: "sess-1", RequesterID: "user-1", Status: session.StatusActive}
	svc.history = []event.Message{
		{ID: "m1", SessionID: "sess-1", Sender: event.SenderUser, Body: "first"},
		{ID: "m2", SessionID: "sess-1", Sender: event.SenderAdmin, Body: "second"},
	}
	srv, tokens := newTestServer(t, svc, allowAll{})
	authz := bearer(t, tokens, "user-1", auth.RoleSeeker)

	rec := doJSON(t, srv, http.MethodGet, "/chat/messages?session_id=sess-1", authz, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Messages []event.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode failed: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].ID != "m1" {
		t.Errorf("unexpected history: %+v", resp.Messages)
	}

	// Bad limit value.
	rec = doJSON(t, srv, http.MethodGet, "/chat/messages?session_id=sess-1&limit=-3", authz, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", rec.Code)
	}
}

func TestErrorResponseShape(t *testing.T) {
	srv, _ := newTestServer(t, newFakeService(), allowAll{})

	rec := doJSON(t, srv, http.MethodPost, "/chat/request", "", `{}`)

	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body decode failed: %v", err)
	}
	if resp.Error.Code != "unauthorized" || resp.Error.Message == "" {
		t.Errorf("unexpected error body: %+v", resp.Error)
	}
}
