package auth

import (
	"testing"
	"time"

	"hookrelay/internal/platform/config"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour})

	token, err := svc.GenerateAccessToken("admin")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != RoleAdmin {
		t.Errorf("unexpected claims %+v", claims)
	}

	other := NewTokenService(config.JWTConfig{Secret: "other", AccessTokenTTL: time.Hour})
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("expected token signed with another secret to be rejected")
	}
}

func TestTokenService_Expired(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenTTL: -time.Minute})

	token, err := svc.GenerateAccessToken("admin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestTokenService_RequiresSecret(t *testing.T) {
	if _, err := NewTokenService(config.JWTConfig{}).GenerateAccessToken("admin"); err == nil {
		t.Error("expected an error without a secret")
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(hash, "s3cret") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("expected wrong password to fail")
	}
	if CheckPassword("", "") {
		t.Error("empty hash must never match")
	}
}
