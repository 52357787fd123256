// Package auth issues and validates the JWT bearer tokens that identify
// chat requesters (job seekers) and staff members. The live-chat option is
// only offered to authenticated requesters, so every chat-mutating call
// carries one of these tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in token claims.
const (
	RoleSeeker = "seeker"
	RoleStaff  = "staff"
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

// IsStaff reports whether the identity may act on admin endpoints.
func (id Identity) IsStaff() bool {
	return id.Role == RoleStaff
}

// Claims is the JWT claim set for support-chat tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and validates tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager creates a token manager. The secret must be non-empty.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("auth: empty JWT secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}, nil
}

// Generate creates a signed token for the given principal.
func (m *Manager) Generate(userID, name, role string) (string, error) {
	if role != RoleSeeker && role != RoleStaff {
		return "", fmt.Errorf("auth: unknown role %q", role)
	}

	claims := &Claims{
		UserID: userID,
		Name:   name,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token, returning the embedded identity.
func (m *Manager) Validate(tokenString string) (Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}
	if !token.Valid {
		return Identity{}, errors.New("auth: invalid token")
	}

	return Identity{UserID: claims.UserID, Name: claims.Name, Role: claims.Role}, nil
}
