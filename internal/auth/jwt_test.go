package auth

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	token, err := m.Generate("user-1", "Juan dela Cruz", RoleSeeker)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	id, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if id.UserID != "user-1" || id.Name != "Juan dela Cruz" || id.Role != RoleSeeker {
		t.Errorf("unexpected identity: %+v", id)
	}
	if id.IsStaff() {
		t.Error("seeker identity reported as staff")
	}
}

func TestStaffRole(t *testing.T) {
	m, _ := NewManager("test-secret", time.Hour)

	token, err := m.Generate("admin-1", "Support Staff", RoleStaff)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	id, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !id.IsStaff() {
		t.Error("staff identity not recognized")
	}
}

func TestGenerateRejectsUnknownRole(t *testing.T) {
	m, _ := NewManager("test-secret", time.Hour)

	if _, err := m.Generate("user-1", "Nobody", "superuser"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	signer, _ := NewManager("secret-a", time.Hour)
	verifier, _ := NewManager("secret-b", time.Hour)

	token, _ := signer.Generate("user-1", "Juan", RoleSeeker)
	if _, err := verifier.Validate(token); err == nil {
		t.Error("expected validation failure for wrong secret")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager("test-secret", 1*time.Nanosecond)

	token, _ := m.Generate("user-1", "Juan", RoleSeeker)
	time.Sleep(10 * time.Millisecond)

	if _, err := m.Validate(token); err == nil {
		t.Error("expected validation failure for expired token")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	m, _ := NewManager("test-secret", time.Hour)

	for _, token := range []string{"", "not.a.token", strings.Repeat("x", 64)} {
		if _, err := m.Validate(token); err == nil {
			t.Errorf("expected failure for token %q", token)
		}
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}
