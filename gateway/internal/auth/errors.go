package auth

import "errors"

// Sentinel errors returned by the Authenticator and the admin console's
// local auth provider. Callers should use errors.Is for comparison.
var (
	// ErrInvalidCredentials is returned when email/password do not match.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUserNotFound is returned when no admin user exists for the given identifier.
	ErrUserNotFound = errors.New("auth: admin user not found")

	// ErrUserDisabled is returned when the admin account is inactive.
	ErrUserDisabled = errors.New("auth: admin account is disabled")

	// ErrTokenExpired is returned when a JWT or refresh token has expired.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or verified.
	ErrTokenInvalid = errors.New("auth: token invalid")

	// ErrRefreshTokenNotFound is returned when the provided refresh token
	// does not exist or has already been rotated out.
	ErrRefreshTokenNotFound = errors.New("auth: refresh token not found")

	// ErrGatewayTokenInvalid describes an Agent gateway_token that does not
	// parse, is expired, or was signed with an unexpected algorithm. No
	// function in this package returns it: Authenticator.Authenticate reports
	// those cases as a rejected AuthResult instead.
	ErrGatewayTokenInvalid = errors.New("auth: gateway token invalid")
)
