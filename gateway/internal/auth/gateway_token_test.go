package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"
)

func newTestAuthenticator(t *testing.T, issuer string) *Authenticator {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return NewAuthenticator(key, &key.PublicKey, issuer)
}

func TestAuthenticatorIssueAndAuthenticateRoundTrip(t *testing.T) {
	a := newTestAuthenticator(t, "viaduct-gateway")

	token, err := a.IssueGatewayToken("db-1", "tenant-1", "widgets-db", 0)
	if err != nil {
		t.Fatalf("IssueGatewayToken() error: %v", err)
	}

	result := a.Authenticate(token)
	if !result.OK {
		t.Fatalf("Authenticate() = %+v, want OK", result)
	}
	if result.DatabaseID != "db-1" || result.TenantID != "tenant-1" || result.DatabaseName != "widgets-db" {
		t.Fatalf("result = %+v, unexpected values", result)
	}
}

func TestAuthenticatorRejectsExpiredToken(t *testing.T) {
	a := newTestAuthenticator(t, "viaduct-gateway")

	token, err := a.IssueGatewayToken("db-1", "tenant-1", "widgets-db", -time.Hour)
	if err != nil {
		t.Fatalf("IssueGatewayToken() error: %v", err)
	}

	result := a.Authenticate(token)
	if result.OK {
		t.Fatal("Authenticate() with an expired token, want a rejection")
	}
	if result.Reason != "token_expired" {
		t.Fatalf("Reason = %q, want token_expired", result.Reason)
	}
}

func TestAuthenticatorRejectsWrongKey(t *testing.T) {
	issuer := "viaduct-gateway"
	signer := newTestAuthenticator(t, issuer)
	verifier := newTestAuthenticator(t, issuer)

	token, err := signer.IssueGatewayToken("db-1", "tenant-1", "widgets-db", 0)
	if err != nil {
		t.Fatalf("IssueGatewayToken() error: %v", err)
	}

	result := verifier.Authenticate(token)
	if result.OK {
		t.Fatal("Authenticate() with a token signed by a different key, want a rejection")
	}
}

func TestAuthenticatorRejectsGarbage(t *testing.T) {
	a := newTestAuthenticator(t, "viaduct-gateway")
	result := a.Authenticate("not-a-jwt-at-all")
	if result.OK {
		t.Fatal("Authenticate() on garbage input, want a rejection")
	}
}

func TestAuthenticatorNeverExpiresByDefault(t *testing.T) {
	a := newTestAuthenticator(t, "viaduct-gateway")

	token, err := a.IssueGatewayToken("db-1", "tenant-1", "widgets-db", 0)
	if err != nil {
		t.Fatalf("IssueGatewayToken() error: %v", err)
	}

	result := a.Authenticate(token)
	if !result.OK {
		t.Fatalf("Authenticate() = %+v, want OK for a token minted with no expiry", result)
	}
}
