package tunnel

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/gateway/internal/alerting"
	"github.com/viaduct-io/viaduct/gateway/internal/auth"
	"github.com/viaduct-io/viaduct/gateway/internal/metrics"
	"github.com/viaduct-io/viaduct/shared/wire"
)

// upgrader performs the HTTP → WebSocket protocol upgrade for the tunnel
// endpoint. Origin validation is left to the reverse proxy in front of
// the Gateway.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handshakeTimeout bounds how long the Endpoint waits for the first frame
// (which must be AUTH_REQUEST) after a successful upgrade, while sitting
// in the AWAIT_AUTH state.
const handshakeTimeout = 10 * time.Second

// Endpoint is the Tunnel Endpoint: the single HTTP handler an Agent
// dials to open its tunnel. It owns the upgrade, the AUTH_REQUEST/
// AUTH_RESPONSE handshake, and installing the resulting Session into the
// Registry, combining an upgrade-then-run shape with an auth-then-serve
// idiom — the tunnel's auth step is itself the first frame on the wire,
// rather than a header or query-param credential checked before upgrade.
type Endpoint struct {
	registry      *Registry
	authenticator *auth.Authenticator
	metrics       *metrics.Collectors
	alerts        alerting.Service
	logger        *zap.Logger

	heartbeatInterval time.Duration
	queryTimeout      time.Duration
}

// NewEndpoint constructs a Tunnel Endpoint. alerts may be nil in tests, in
// which case handshake rejections are only logged.
func NewEndpoint(registry *Registry, authenticator *auth.Authenticator, collectors *metrics.Collectors, alerts alerting.Service, heartbeatInterval, queryTimeout time.Duration, logger *zap.Logger) *Endpoint {
	return &Endpoint{
		registry:          registry,
		authenticator:     authenticator,
		metrics:           collectors,
		alerts:            alerts,
		heartbeatInterval: heartbeatInterval,
		queryTimeout:      queryTimeout,
		logger:            logger.Named("tunnel_endpoint"),
	}
}

// ServeHTTP handles GET /v1/tunnel. It upgrades the connection, waits for
// AUTH_REQUEST, authenticates, installs the Session, and then blocks
// running the Session's send/receive loops until the Agent disconnects.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn("tunnel: upgrade failed", zap.Error(err))
		return
	}

	session, ok := e.handshake(conn)
	if !ok {
		_ = conn.Close()
		return
	}

	e.registry.Install(session)
	e.logger.Info("agent connected",
		zap.String("session_id", session.ID().String()),
		zap.String("database_id", session.DatabaseID().String()),
	)

	go session.RunSend()
	session.RunReceive()

	session.Terminate("receive loop exited")
	e.registry.Remove(session)
	e.logger.Info("agent disconnected",
		zap.String("session_id", session.ID().String()),
		zap.String("database_id", session.DatabaseID().String()),
	)
}

// handshake implements the AWAIT_AUTH state: read exactly one frame, require
// it to be AUTH_REQUEST, authenticate the gateway_token, and write back
// AUTH_RESPONSE. On any failure it writes a rejecting AUTH_RESPONSE (when
// possible) and returns ok=false; the caller closes the socket.
func (e *Endpoint) handshake(conn *websocket.Conn) (*Session, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		e.logger.Warn("tunnel: handshake read failed", zap.Error(err))
		return nil, false
	}

	typ, frame, err := wire.Decode(data)
	if err != nil || typ != wire.TypeAuthRequest {
		e.rejectHandshake(conn, "expected AUTH_REQUEST as first frame")
		return nil, false
	}
	req := frame.(*wire.AuthRequest)

	result := e.authenticator.Authenticate(req.GatewayToken)
	if !result.OK {
		e.rejectHandshake(conn, result.Reason)
		return nil, false
	}

	databaseID, err := uuid.Parse(result.DatabaseID)
	if err != nil {
		e.rejectHandshake(conn, "gateway token resolved to an invalid database id")
		return nil, false
	}

	_ = conn.SetReadDeadline(time.Time{})

	session := NewSession(conn, databaseID, result.TenantID, result.DatabaseName, req.AgentVersion, req.AgentHostname, req.AgentOS, e.metrics, e.logger)

	resp := &wire.AuthResponse{
		Envelope:          wire.Envelope{Type: wire.TypeAuthResponse, Timestamp: time.Now()},
		Status:            wire.StatusSuccess,
		SessionID:         session.ID().String(),
		DatabaseID:        result.DatabaseID,
		DatabaseName:      result.DatabaseName,
		HeartbeatInterval: int(e.heartbeatInterval.Seconds()),
		QueryTimeout:      int(e.queryTimeout.Seconds()),
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		e.logger.Error("tunnel: failed to encode auth response", zap.Error(err))
		return nil, false
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		e.logger.Warn("tunnel: failed to write auth response", zap.Error(err))
		return nil, false
	}

	return session, true
}

// rejectHandshake best-effort writes a rejecting AUTH_RESPONSE and fires an
// auth-failed alert. Failures to write are swallowed — the caller closes the
// socket regardless.
func (e *Endpoint) rejectHandshake(conn *websocket.Conn, reason string) {
	resp := &wire.AuthResponse{
		Envelope:     wire.Envelope{Type: wire.TypeAuthResponse, Timestamp: time.Now()},
		Status:       wire.StatusError,
		ErrorMessage: reason,
	}
	payload, err := json.Marshal(resp)
	if err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	}

	if e.alerts != nil {
		if err := e.alerts.NotifyAuthFailed(context.Background(), reason, conn.RemoteAddr().String()); err != nil {
			e.logger.Warn("failed to fire auth-failed alert", zap.Error(err))
		}
	}
}
