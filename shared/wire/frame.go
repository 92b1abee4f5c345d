// Package wire defines the JSON frame schema carried over the tunnel socket
// between an Agent and a Gateway. Every type in this package round-trips
// through encoding/json without loss — the schema is the contract, not an
// implementation detail of either side.
package wire

import "time"

// Type enumerates every frame variant that may cross the tunnel. Unknown
// values are valid at the wire level (they arrive as a plain string) and
// must be rejected with an Error frame rather than a decode failure.
type Type string

const (
	TypeAuthRequest            Type = "AUTH_REQUEST"
	TypeAuthResponse           Type = "AUTH_RESPONSE"
	TypeQueryRequest           Type = "QUERY_REQUEST"
	TypeQueryResponse          Type = "QUERY_RESPONSE"
	TypeAPIRequest             Type = "API_REQUEST"
	TypeAPIResponse            Type = "API_RESPONSE"
	TypeEmployeeLookupRequest  Type = "EMPLOYEE_LOOKUP_REQUEST"
	TypeEmployeeLookupResponse Type = "EMPLOYEE_LOOKUP_RESPONSE"
	TypeHeartbeat              Type = "HEARTBEAT"
	TypeHeartbeatAck           Type = "HEARTBEAT_ACK"
	TypeDBStatusUpdate         Type = "DB_STATUS_UPDATE"
	TypeError                  Type = "ERROR"
	TypeDisconnect             Type = "DISCONNECT"
)

// Status values used across the various response frames. Not every status
// is valid on every frame type; the Status fields themselves do not restrict
// which values are set.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusError           Status = "error"
	StatusTimeout         Status = "timeout"
	StatusConnectionError Status = "connection_error"
	StatusNotFound        Status = "not_found"
	StatusMultipleFound   Status = "multiple_found"
	StatusFailed          Status = "failed"
	StatusTokenExpired    Status = "token_expired"
	StatusTokenRevoked    Status = "token_revoked"
)

// HealthStatus is the Agent-reported health of one of its local back-ends.
type HealthStatus string

const (
	HealthConnected    HealthStatus = "connected"
	HealthDisconnected HealthStatus = "disconnected"
	HealthError        HealthStatus = "error"
)

// LookupType selects the employee-lookup strategy.
type LookupType string

const (
	LookupAuto LookupType = "auto"
	LookupCode LookupType = "code"
	LookupName LookupType = "name"
	LookupCard LookupType = "card"
)

// Envelope is the outer shape every frame shares: a type tag and a
// timestamp, with the type-specific payload folded into the same JSON
// object rather than nested under a separate key.
type Envelope struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// AuthRequest is sent Agent→Gateway as the first frame on a new socket.
type AuthRequest struct {
	Envelope
	GatewayToken string `json:"gateway_token"`
	AgentVersion string `json:"agent_version"`
	AgentHostname string `json:"agent_hostname,omitempty"`
	AgentOS       string `json:"agent_os,omitempty"`
}

// AuthResponse is sent Gateway→Agent in reply to AuthRequest.
type AuthResponse struct {
	Envelope
	Status            Status `json:"status"`
	SessionID         string `json:"session_id,omitempty"`
	DatabaseID        string `json:"database_id,omitempty"`
	DatabaseName      string `json:"database_name,omitempty"`
	HeartbeatInterval int    `json:"heartbeat_interval,omitempty"`
	QueryTimeout      int    `json:"query_timeout,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// QueryRequest asks the Agent to run a SQL statement against its local
// database.
type QueryRequest struct {
	Envelope
	RequestID      string `json:"request_id"`
	SQLQuery       string `json:"sql_query"`
	Timeout        int    `json:"timeout"`
	MaxRows        int    `json:"max_rows"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// QueryResponse is the Agent's reply to a QueryRequest.
type QueryResponse struct {
	Envelope
	RequestID       string           `json:"request_id"`
	Status          Status           `json:"status"`
	Columns         []string         `json:"columns,omitempty"`
	Rows            []map[string]any `json:"rows,omitempty"`
	RowCount        int              `json:"row_count,omitempty"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	ErrorCode       string           `json:"error_code,omitempty"`
}

// APIRequest asks the Agent to issue an HTTP call to its on-host REST API.
type APIRequest struct {
	Envelope
	RequestID   string            `json:"request_id"`
	Method      string            `json:"method"`
	Endpoint    string            `json:"endpoint"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        any               `json:"body,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Timeout     int               `json:"timeout"`
}

// APIResponse is the Agent's reply to an APIRequest.
type APIResponse struct {
	Envelope
	RequestID       string            `json:"request_id"`
	Status          Status            `json:"status"`
	StatusCode      int               `json:"status_code,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            any               `json:"body,omitempty"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
}

// EmployeeLookupRequest asks the Agent to resolve an employee identifier
// against its local schema.
type EmployeeLookupRequest struct {
	Envelope
	RequestID  string     `json:"request_id"`
	Identifier string     `json:"identifier"`
	LookupType LookupType `json:"lookup_type"`
	Timeout    int        `json:"timeout"`
}

// Employee is one resolved record returned by the Employee-Lookup Executor.
type Employee map[string]any

// EmployeeLookupResponse is the Agent's reply to an EmployeeLookupRequest.
type EmployeeLookupResponse struct {
	Envelope
	RequestID       string     `json:"request_id"`
	Status          Status     `json:"status"`
	Employee        *Employee  `json:"employee,omitempty"`
	Employees       []Employee `json:"employees,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
}

// Heartbeat is sent Agent→Gateway on a fixed cadence to report liveness and
// local back-end health.
type Heartbeat struct {
	Envelope
	SessionID           string       `json:"session_id"`
	DBStatus            HealthStatus `json:"db_status"`
	APIStatus           HealthStatus `json:"api_status"`
	QueriesExecuted     int64        `json:"queries_executed"`
	APIRequestsExecuted int64        `json:"api_requests_executed"`
	UptimeSeconds       int64        `json:"uptime_seconds"`
}

// HeartbeatAck is the Gateway's reply to a Heartbeat.
type HeartbeatAck struct {
	Envelope
	SessionID  string    `json:"session_id"`
	ServerTime time.Time `json:"server_time"`
}

// DBStatusUpdate lets the Agent push an out-of-band health change without
// waiting for the next heartbeat tick.
type DBStatusUpdate struct {
	Envelope
	SessionID    string       `json:"session_id"`
	Status       HealthStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// Error is emitted whenever a frame cannot be processed. It never closes
// the socket by itself.
type Error struct {
	Envelope
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	RequestID    string `json:"request_id,omitempty"`
}

// Disconnect is a best-effort notice sent by either side before closing the
// socket.
type Disconnect struct {
	Envelope
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}
