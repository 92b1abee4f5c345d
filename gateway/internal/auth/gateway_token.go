package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GatewayClaims holds the claims the Authenticator resolves an Agent's
// gateway_token into: a (database_id, tenant_id, database_name) triple.
// Unlike the admin console's access tokens, gateway tokens are long-lived
// — they are the credential an Agent is configured with once and expected
// to use across restarts — so callers should expect a long or absent
// expiry rather than the 15-minute admin token lifetime.
type GatewayClaims struct {
	jwt.RegisteredClaims

	DatabaseID   string `json:"database_id"`
	TenantID     string `json:"tenant_id"`
	DatabaseName string `json:"database_name"`
}

// Authenticator validates an Agent's gateway_token on handshake and
// resolves it to the triple the Tunnel Endpoint needs to install a Session.
// It is safe for concurrent use.
type Authenticator struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewAuthenticator wraps an already-loaded RSA key pair. Gateways typically
// share one key pair between admin-console tokens and gateway tokens is not
// required — callers may pass distinct keys, but nothing here assumes that.
func NewAuthenticator(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, issuer string) *Authenticator {
	return &Authenticator{privateKey: privateKey, publicKey: publicKey, issuer: issuer}
}

// IssueGatewayToken mints a gateway_token for the given database. Used by
// the admin console when provisioning a new Agent. expiresIn of zero means
// the token never expires (the common case — Agents are provisioned once).
func (a *Authenticator) IssueGatewayToken(databaseID, tenantID, databaseName string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := GatewayClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   databaseID,
			IssuedAt:  jwt.NewNumericDate(now),
		},
		DatabaseID:   databaseID,
		TenantID:     tenantID,
		DatabaseName: databaseName,
	}
	if expiresIn > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiresIn))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("auth: signing gateway token: %w", err)
	}
	return signed, nil
}

// AuthResult is the outcome of Authenticate — either a resolved triple or a
// rejection reason, following an "{ok, ...} or {failed, reason_string}"
// contract. It is returned by value rather than via a Go error so the
// Tunnel Endpoint can map a rejection straight onto an AUTH_RESPONSE
// without inspecting error chains.
type AuthResult struct {
	OK           bool
	DatabaseID   string
	TenantID     string
	DatabaseName string
	Reason       string
}

// Authenticate validates a gateway_token and resolves it to a database
// identity. It never panics and never returns a Go error — any failure
// mode (expired, malformed, wrong algorithm, missing claims) becomes a
// rejected AuthResult, per the Tunnel Endpoint's contract of not surfacing
// internal error text to the Agent beyond a short, bounded message.
func (a *Authenticator) Authenticate(gatewayToken string) AuthResult {
	token, err := jwt.ParseWithClaims(
		gatewayToken,
		&GatewayClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
			}
			return a.publicKey, nil
		},
		jwt.WithIssuer(a.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AuthResult{Reason: "token_expired"}
		}
		return AuthResult{Reason: "invalid token"}
	}

	claims, ok := token.Claims.(*GatewayClaims)
	if !ok || !token.Valid {
		return AuthResult{Reason: "invalid token"}
	}
	if claims.DatabaseID == "" {
		return AuthResult{Reason: "token missing database_id"}
	}

	return AuthResult{
		OK:           true,
		DatabaseID:   claims.DatabaseID,
		TenantID:     claims.TenantID,
		DatabaseName: claims.DatabaseName,
	}
}
