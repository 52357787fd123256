package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/pesocareers/support-chat/internal/auth"
	"github.com/pesocareers/support-chat/internal/metrics"
)

type contextKey int

const identityKey contextKey = iota

// identityFrom extracts the authenticated identity placed by the
// authenticate middleware.
func identityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// authenticate validates the bearer token and stores the caller's identity
// in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			metrics.RequestsRejected.WithLabelValues("unauthorized").Inc()
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		id, err := s.tokens.Validate(token)
		if err != nil {
			metrics.RequestsRejected.WithLabelValues("unauthorized").Inc()
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireStaff rejects callers whose token does not carry the staff role.
func (s *Server) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFrom(r.Context())
		if !ok || !id.IsStaff() {
			metrics.RequestsRejected.WithLabelValues("unauthorized").Inc()
			respondError(w, http.StatusForbidden, "forbidden", "staff role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
