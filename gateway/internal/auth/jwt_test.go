package auth

import (
	"errors"
	"testing"
)

func TestJWTManagerGenerateAndValidateRoundTrip(t *testing.T) {
	mgr, err := NewJWTManagerGenerated("viaduct-gateway-test")
	if err != nil {
		t.Fatalf("NewJWTManagerGenerated() error: %v", err)
	}

	token, err := mgr.GenerateAccessToken("user-1", "admin@example.com", "operator")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error: %v", err)
	}

	claims, err := mgr.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "admin@example.com" || claims.Role != "operator" {
		t.Fatalf("claims = %+v, unexpected values", claims)
	}
}

func TestJWTManagerValidateRejectsWrongIssuer(t *testing.T) {
	issuerA, err := NewJWTManagerGenerated("issuer-a")
	if err != nil {
		t.Fatalf("NewJWTManagerGenerated() error: %v", err)
	}
	issuerB, err := NewJWTManagerGenerated("issuer-b")
	if err != nil {
		t.Fatalf("NewJWTManagerGenerated() error: %v", err)
	}

	token, err := issuerA.GenerateAccessToken("user-1", "a@example.com", "operator")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error: %v", err)
	}

	if _, err := issuerB.ValidateAccessToken(token); err == nil {
		t.Fatal("ValidateAccessToken() across different issuers, want an error")
	}
}

func TestJWTManagerValidateRejectsTamperedToken(t *testing.T) {
	mgr, err := NewJWTManagerGenerated("viaduct-gateway-test")
	if err != nil {
		t.Fatalf("NewJWTManagerGenerated() error: %v", err)
	}

	token, err := mgr.GenerateAccessToken("user-1", "a@example.com", "operator")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error: %v", err)
	}

	tampered := token[:len(token)-1] + "x"
	if _, err := mgr.ValidateAccessToken(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestJWTManagerValidateRejectsGarbage(t *testing.T) {
	mgr, err := NewJWTManagerGenerated("viaduct-gateway-test")
	if err != nil {
		t.Fatalf("NewJWTManagerGenerated() error: %v", err)
	}

	if _, err := mgr.ValidateAccessToken("not.a.jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestJWTManagerPublicKeyPEMIsParseable(t *testing.T) {
	mgr, err := NewJWTManagerGenerated("viaduct-gateway-test")
	if err != nil {
		t.Fatalf("NewJWTManagerGenerated() error: %v", err)
	}

	pemBytes, err := mgr.PublicKeyPEM()
	if err != nil {
		t.Fatalf("PublicKeyPEM() error: %v", err)
	}
	if len(pemBytes) == 0 {
		t.Fatal("PublicKeyPEM() returned empty bytes")
	}
}
