package client

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles understood by the server.
const (
	RoleSeeker = "seeker"
	RoleStaff  = "staff"
)

// MintToken signs a short-lived bearer token for a simulated user. The secret
// must match the JWT_SECRET the target server was started with; the claim
// shape mirrors the server's auth package.
func MintToken(secret, userID, name, role string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"name":    name,
		"role":    role,
		"iat":     jwt.NewNumericDate(time.Now()),
		"exp":     jwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
