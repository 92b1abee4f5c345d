package wire

// ErrorKind is the typed error taxonomy surfaced by the Gateway's
// synchronous API. The core never panics across a task boundary; it
// maps internal failures onto one of these kinds.
type ErrorKind string

const (
	ErrAuthFailed          ErrorKind = "AUTH_FAILED"
	ErrGatewayNotConnected ErrorKind = "GATEWAY_NOT_CONNECTED"
	ErrTimeout             ErrorKind = "TIMEOUT"
	ErrConnectionClosed    ErrorKind = "CONNECTION_CLOSED"
	ErrProtocol            ErrorKind = "PROTOCOL_ERROR"
	ErrQuery               ErrorKind = "QUERY_ERROR"
	ErrNotConfigured       ErrorKind = "NOT_CONFIGURED"
)

// KindError pairs an ErrorKind with a human-readable message and an
// optional detail (e.g. a direct-probe failure surfaced alongside
// GATEWAY_NOT_CONNECTED). It implements error so it can flow
// through normal Go error handling while still being inspectable by kind.
type KindError struct {
	Kind    ErrorKind
	Message string
	Detail  string
}

func (e *KindError) Error() string {
	if e.Detail != "" {
		return string(e.Kind) + ": " + e.Message + " (" + e.Detail + ")"
	}
	return string(e.Kind) + ": " + e.Message
}

// NewKindError constructs a KindError with no detail.
func NewKindError(kind ErrorKind, message string) *KindError {
	return &KindError{Kind: kind, Message: message}
}

// WithDetail returns a copy of e carrying the given detail string.
func (e *KindError) WithDetail(detail string) *KindError {
	return &KindError{Kind: e.Kind, Message: e.Message, Detail: detail}
}
