package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
	"github.com/viaduct-io/viaduct/gateway/internal/repository"
	"github.com/viaduct-io/viaduct/gateway/internal/router"
	"github.com/viaduct-io/viaduct/gateway/internal/tunnel"
	"github.com/viaduct-io/viaduct/shared/wire"
)

// defaultRequestTimeout is used when a caller does not supply one.
const defaultRequestTimeout = 30 * time.Second

// SyncAPIHandler implements the narrow synchronous API the rest of
// the cloud platform (chatbot NLU, RBAC, report generation — all treated
// as an external collaborator) drives the tunnel through. It is
// guarded by RequireAPIKey, not AuthenticateAdmin: the caller here is the
// platform's own backend, not a human operator.
type SyncAPIHandler struct {
	router    *router.Router
	sessions  *tunnel.Registry
	databases repository.DatabaseRepository
	tStale    time.Duration
	logger    *zap.Logger
}

// NewSyncAPIHandler constructs a SyncAPIHandler.
func NewSyncAPIHandler(r *router.Router, sessions *tunnel.Registry, databases repository.DatabaseRepository, tStale time.Duration, logger *zap.Logger) *SyncAPIHandler {
	return &SyncAPIHandler{
		router:    r,
		sessions:  sessions,
		databases: databases,
		tStale:    tStale,
		logger:    logger.Named("sync_api"),
	}
}

type executeQueryRequest struct {
	DatabaseID     uuid.UUID `json:"database_id"`
	SQL            string    `json:"sql"`
	TimeoutSeconds int       `json:"timeout"`
	MaxRows        int       `json:"max_rows"`
	UserID         string    `json:"user_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// ExecuteQuery handles POST /v1/query.
func (h *SyncAPIHandler) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req executeQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SQL == "" {
		ErrBadRequest(w, "sql is required")
		return
	}

	timeout := resolveTimeout(req.TimeoutSeconds)
	resp, err := h.router.ExecuteQuery(r.Context(), req.DatabaseID, req.SQL, timeout, req.MaxRows, req.UserID, req.ConversationID)
	if err != nil {
		writeKindError(w, err)
		return
	}
	Ok(w, resp)
}

type executeAPIRequest struct {
	DatabaseID     uuid.UUID         `json:"database_id"`
	Method         string            `json:"method"`
	Endpoint       string            `json:"endpoint"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           any               `json:"body,omitempty"`
	QueryParams    map[string]string `json:"query_params,omitempty"`
	TimeoutSeconds int               `json:"timeout"`
}

// ExecuteAPI handles POST /v1/api.
func (h *SyncAPIHandler) ExecuteAPI(w http.ResponseWriter, r *http.Request) {
	var req executeAPIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Method == "" || req.Endpoint == "" {
		ErrBadRequest(w, "method and endpoint are required")
		return
	}

	timeout := resolveTimeout(req.TimeoutSeconds)
	session, ok := h.sessions.Lookup(req.DatabaseID, h.tStale)
	if !ok {
		writeKindError(w, wire.NewKindError(wire.ErrGatewayNotConnected, "agent is not connected"))
		return
	}

	resp, err := session.CallAPI(r.Context(), wire.APIRequest{
		Method:      req.Method,
		Endpoint:    req.Endpoint,
		Headers:     req.Headers,
		Body:        req.Body,
		QueryParams: req.QueryParams,
	}, timeout)
	if err != nil {
		writeKindError(w, err)
		return
	}
	Ok(w, resp)
}

type lookupEmployeeRequest struct {
	DatabaseID     uuid.UUID      `json:"database_id"`
	Identifier     string         `json:"identifier"`
	LookupType     wire.LookupType `json:"lookup_type"`
	TimeoutSeconds int            `json:"timeout"`
}

// LookupEmployee handles POST /v1/employee.
func (h *SyncAPIHandler) LookupEmployee(w http.ResponseWriter, r *http.Request) {
	var req lookupEmployeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Identifier == "" {
		ErrBadRequest(w, "identifier is required")
		return
	}
	lookupType := req.LookupType
	if lookupType == "" {
		lookupType = wire.LookupAuto
	}

	timeout := resolveTimeout(req.TimeoutSeconds)
	session, ok := h.sessions.Lookup(req.DatabaseID, h.tStale)
	if !ok {
		writeKindError(w, wire.NewKindError(wire.ErrGatewayNotConnected, "agent is not connected"))
		return
	}

	resp, err := session.LookupEmployee(r.Context(), req.Identifier, lookupType, timeout)
	if err != nil {
		writeKindError(w, err)
		return
	}
	Ok(w, resp)
}

// IsConnected handles GET /v1/status/{database_id}/connected — a terse
// boolean form of is_connected(database_id).
func (h *SyncAPIHandler) IsConnected(w http.ResponseWriter, r *http.Request) {
	databaseID, err := uuid.Parse(chi.URLParam(r, "database_id"))
	if err != nil {
		ErrBadRequest(w, "invalid database_id")
		return
	}
	_, ok := h.sessions.Lookup(databaseID, h.tStale)
	Ok(w, map[string]bool{"connected": ok})
}

type connectionStatusResponse struct {
	Mode            db.RoutingMode `json:"mode"`
	Gateway         gatewayStatus  `json:"gateway"`
	Direct          directStatus   `json:"direct"`
	EffectiveMethod string         `json:"effective_method"`
}

type gatewayStatus struct {
	Connected bool   `json:"connected"`
	SessionID string `json:"session_id,omitempty"`
}

type directStatus struct {
	Status string `json:"status"`
}

// ConnectionStatus handles GET /v1/status/{database_id}, a
// connection_status diagnostics endpoint for operator and platform
// visibility into whether a database is reachable over the tunnel,
// directly, or both.
func (h *SyncAPIHandler) ConnectionStatus(w http.ResponseWriter, r *http.Request) {
	databaseID, err := uuid.Parse(chi.URLParam(r, "database_id"))
	if err != nil {
		ErrBadRequest(w, "invalid database_id")
		return
	}

	rec, err := h.databases.GetByID(r.Context(), databaseID)
	if err != nil {
		ErrNotFound(w)
		return
	}

	session, hasSession := h.sessions.Lookup(databaseID, h.tStale)

	resp := connectionStatusResponse{
		Mode:   rec.Mode,
		Gateway: gatewayStatus{Connected: hasSession},
		Direct:  directStatus{Status: "unknown"},
	}
	if hasSession {
		resp.Gateway.SessionID = session.ID().String()
	}

	switch rec.Mode {
	case db.RoutingModeDirectOnly:
		resp.Direct.Status = h.probeDirectStatus(r.Context(), rec)
		resp.EffectiveMethod = "direct"
	case db.RoutingModeGatewayOnly:
		if hasSession {
			resp.EffectiveMethod = "tunnel"
		} else {
			resp.EffectiveMethod = "unavailable"
		}
	default: // auto
		if hasSession {
			resp.EffectiveMethod = "tunnel"
		} else {
			resp.Direct.Status = h.probeDirectStatus(r.Context(), rec)
			if resp.Direct.Status == "reachable" {
				resp.EffectiveMethod = "direct"
			} else {
				resp.EffectiveMethod = "unavailable"
			}
		}
	}

	Ok(w, resp)
}

func (h *SyncAPIHandler) probeDirectStatus(ctx context.Context, rec *db.DatabaseRecord) string {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.router.ProbeDirect(probeCtx, rec); err != nil {
		return "unreachable"
	}
	return "reachable"
}

func resolveTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(seconds) * time.Second
}

// writeKindError maps a *wire.KindError onto the synchronous API's error
// envelope. A plain error that isn't a KindError is treated as internal.
func writeKindError(w http.ResponseWriter, err error) {
	kerr, ok := err.(*wire.KindError)
	if !ok {
		ErrInternal(w)
		return
	}

	status := http.StatusInternalServerError
	switch kerr.Kind {
	case wire.ErrAuthFailed:
		status = http.StatusUnauthorized
	case wire.ErrGatewayNotConnected, wire.ErrNotConfigured:
		status = http.StatusServiceUnavailable
	case wire.ErrTimeout:
		status = http.StatusGatewayTimeout
	case wire.ErrConnectionClosed:
		status = http.StatusBadGateway
	case wire.ErrProtocol, wire.ErrQuery:
		status = http.StatusUnprocessableEntity
	}

	JSON(w, status, envelope{
		"error": map[string]string{
			"kind":    string(kerr.Kind),
			"message": kerr.Message,
			"detail":  kerr.Detail,
		},
	})
}
