// Package httpapi exposes the support-chat operations over REST for the
// widget and the staff console.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pesocareers/support-chat/internal/auth"
	"github.com/pesocareers/support-chat/internal/event"
	"github.com/pesocareers/support-chat/internal/faq"
	"github.com/pesocareers/support-chat/internal/metrics"
	"github.com/pesocareers/support-chat/internal/ratelimit"
	"github.com/pesocareers/support-chat/internal/session"
	"github.com/pesocareers/support-chat/internal/support"
)

// ChatService is the surface of the support service the API needs.
// *support.Service satisfies it.
type ChatService interface {
	RequestChat(ctx context.Context, requester auth.Identity, concern string) (*support.RequestResult, error)
	SendMessage(ctx context.Context, from auth.Identity, sessionID, body string) (event.Message, error)
	Join(ctx context.Context, admin auth.Identity, sessionID string) (*session.Session, error)
	Close(ctx context.Context, from auth.Identity, sessionID string) error
	Session(ctx context.Context, sessionID string) (*session.Session, error)
	History(ctx context.Context, from auth.Identity, sessionID string, limit int) ([]event.Message, error)
	Waiting(ctx context.Context, limit int64) ([]session.WaitingEntry, error)
	FAQs(ctx context.Context, category string) ([]faq.FAQ, error)
	Typing(ctx context.Context, from auth.Identity, sessionID string) error
}

// RateLimiter is the subset of the Redis limiter the API uses. Nil-able in
// tests through the allowAll fake.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Server holds the API dependencies and the assembled router.
type Server struct {
	svc     ChatService
	tokens  *auth.Manager
	limiter RateLimiter
	router  chi.Router
}

// Config collects the API server's dependencies.
type Config struct {
	Service        ChatService
	Tokens         *auth.Manager
	Limiter        RateLimiter
	AllowedOrigins []string
}

// New builds the API server and its routes.
func New(cfg Config) *Server {
	s := &Server{
		svc:     cfg.Service,
		tokens:  cfg.Tokens,
		limiter: cfg.Limiter,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// FAQ browsing needs no account.
	r.Get("/chat/faqs", s.handleFAQs)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/chat/request", s.handleRequestChat)
		r.Post("/chat/messages", s.handleSendMessage)
		r.Get("/chat/messages", s.handleHistory)
		r.Post("/chat/typing", s.handleTyping)
		r.Post("/chat/close", s.handleClose)
		r.Get("/chat/sessions/{id}", s.handleGetSession)

		r.Group(func(r chi.Router) {
			r.Use(s.requireStaff)
			r.Post("/admin/sessions/{id}/join", s.handleJoin)
			r.Get("/admin/sessions/waiting", s.handleWaiting)
		})
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
