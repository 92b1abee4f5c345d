package alerting

import "errors"

// Sentinel errors returned by the alerting service and its senders. Callers
// should use errors.Is for comparison.
var (
	// ErrSendFailed is returned when an alert could not be delivered through
	// one or more channels (email, webhook). It wraps the underlying cause
	// and is non-fatal — the AlertLog row is still persisted even if
	// external delivery fails.
	ErrSendFailed = errors.New("alerting: send failed")

	// ErrConfigNotFound is returned when a required configuration key is
	// missing from the settings table (e.g. SMTP not configured yet).
	ErrConfigNotFound = errors.New("alerting: configuration not found")

	// ErrInvalidConfig is returned when settings exist but contain invalid
	// or incomplete values (e.g. SMTP host present but port missing).
	ErrInvalidConfig = errors.New("alerting: invalid configuration")
)
