package auth

import (
	"testing"
	"time"
)

func TestNewTokenService(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	if svc == nil {
		t.Fatal("expected service to be created")
	}
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, expiresAt, err := svc.Issue("u1", "fish_user", "Fishy", "https://fishpi.cn/avatar.png")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if token == "" {
		t.Fatal("token should not be empty")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expiresAt should be in the future")
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "fish_user" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestTokenService_ValidateRejectsGarbage(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	_, err := svc.Validate("not-a-jwt")
	if err != ErrTokenInvalid {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenService_ValidateRejectsExpired(t *testing.T) {
	svc := NewTokenService("test-secret", -time.Hour)

	token, _, err := svc.Issue("u1", "fish_user", "", "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	_, err = svc.Validate(token)
	if err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenService_ValidateRejectsWrongSecret(t *testing.T) {
	svc1 := NewTokenService("secret-1", time.Hour)
	svc2 := NewTokenService("secret-2", time.Hour)

	token, _, err := svc1.Issue("u1", "fish_user", "", "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	_, err = svc2.Validate(token)
	if err != ErrTokenInvalid {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}
