// Package connection implements the Agent Connection: the client-side
// state machine that maintains exactly one healthy tunnel to the Gateway,
// re-dialing with backoff on any failure.
//
// It runs one bidirectional websocket frame stream: dial, send
// AUTH_REQUEST, read AUTH_RESPONSE, then run a send serializer and a
// receive loop exactly like the Gateway's tunnel.Session, pairing a
// heartbeat loop with a server-stream receive loop. Persisted client-side
// state is dropped — the tunnel is a stable credential-based mapping
// (gateway_token → database_id) resolved fresh on every AUTH_REQUEST, so
// there is no server-assigned identity worth persisting across restarts.
package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/agent/internal/config"
	"github.com/viaduct-io/viaduct/agent/internal/executor"
	"github.com/viaduct-io/viaduct/agent/internal/metrics"
	"github.com/viaduct-io/viaduct/shared/wire"
)

// State enumerates the Agent Connection state machine.
type State string

const (
	StateIdle            State = "IDLE"
	StateDialing         State = "DIALING"
	StateAuthenticating  State = "AUTHENTICATING"
	StateConnected       State = "CONNECTED"
	StateBackoff         State = "BACKOFF"
	StateStopped         State = "STOPPED"
)

// handshakeTimeout bounds how long Connect waits for AUTH_RESPONSE. It is
// independent of (and larger than) the Gateway's own AWAIT_AUTH timeout for
// the first frame it reads from the Agent — the two ends of the handshake
// are allowed different budgets.
const handshakeTimeout = 30 * time.Second

// sendBufferSize bounds the outbound queue, mirroring tunnel.Session on
// the Gateway side.
const sendBufferSize = 64

// jitterFraction adds up to ±20% random jitter to each backoff interval so
// many Agents reconnecting after a Gateway restart don't all dial at once.
const jitterFraction = 0.2

// version is the Agent binary version reported in AUTH_REQUEST. Overridden
// by cmd/agent/main.go via ldflags in release builds.
var version = "dev"

// SetVersion overrides the version string sent in every AUTH_REQUEST.
func SetVersion(v string) { version = v }

// Connection maintains the Agent's single tunnel to the Gateway. Build one
// with New and run it with Run, which blocks until ctx is cancelled.
type Connection struct {
	cfg    config.Transport
	token  string
	dial   *executor.Dispatcher
	logger *zap.Logger

	stateMu sync.RWMutex
	state   State

	mu           sync.Mutex
	conn         *websocket.Conn
	sendCh       chan []byte
	sessionID    string
	heartbeatInt time.Duration
	queryTimeout time.Duration

	startedAt           time.Time
	queriesExecuted     atomic.Int64
	apiRequestsExecuted atomic.Int64
}

// New constructs a Connection. dispatcher handles every inbound request
// frame; SQL/HTTP/Employee-Lookup logic lives entirely in executor.
func New(cfg config.Transport, gatewayToken string, dispatcher *executor.Dispatcher, logger *zap.Logger) *Connection {
	return &Connection{
		cfg:    cfg,
		token:  gatewayToken,
		dial:   dispatcher,
		logger: logger.Named("connection"),
		state:  StateIdle,
	}
}

// State returns the current state machine value.
func (c *Connection) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Run drives the state machine until ctx is cancelled: DIALING →
// AUTHENTICATING → CONNECTED, and back to DIALING via BACKOFF on any
// failure. It transitions to STOPPED and returns once ctx is done, when the
// Gateway rejects the handshake as an auth failure, or when
// MaxReconnectAttempts (if positive) sessions have been attempted.
func (c *Connection) Run(ctx context.Context) {
	c.startedAt = time.Now()
	backoff := c.cfg.ReconnectDelay
	attempts := 0

	for {
		if ctx.Err() != nil {
			c.setState(StateStopped)
			c.logger.Info("agent connection stopped")
			return
		}

		if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
			c.setState(StateStopped)
			c.logger.Error("max reconnect attempts reached, giving up",
				zap.Int("attempts", attempts),
			)
			return
		}

		c.setState(StateDialing)
		err := c.session(ctx)
		attempts++

		if ctx.Err() != nil {
			c.setState(StateStopped)
			return
		}
		if err == nil {
			// session() only returns nil on a clean, ctx-driven shutdown.
			c.setState(StateStopped)
			return
		}

		fatal, retryable := classify(err)
		if fatal {
			c.setState(StateStopped)
			c.logger.Error("tunnel rejected permanently, stopping", zap.Error(err))
			return
		}
		_ = retryable

		c.logger.Warn("tunnel session ended, backing off",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)
		c.setState(StateBackoff)

		select {
		case <-ctx.Done():
			c.setState(StateStopped)
			return
		case <-time.After(jitter(backoff)):
		}
		backoff = nextBackoff(c.cfg.ReconnectDelay, c.cfg.MaxReconnectDelay)
	}
}

// classify reports whether err is a fatal handshake rejection (bad
// credentials — retrying cannot help) versus a retryable transport error.
func classify(err error) (fatal, retryable bool) {
	if kerr, ok := err.(*wire.KindError); ok && kerr.Kind == wire.ErrAuthFailed {
		return true, false
	}
	return false, true
}

// session runs exactly one tunnel connection end to end: dial, handshake,
// then the send/receive loops. It returns nil only when ctx cancellation
// caused the teardown; any other return value is treated as a reason to
// back off and redial.
func (c *Connection) session(ctx context.Context) error {
	conn, err := c.dialSocket(ctx)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	c.setState(StateAuthenticating)
	if err := c.handshake(conn); err != nil {
		return err
	}

	c.setState(StateConnected)
	c.logger.Info("tunnel connected",
		zap.String("session_id", c.sessionID),
		zap.Duration("heartbeat_interval", c.heartbeatInt),
	)

	c.mu.Lock()
	c.conn = conn
	c.sendCh = make(chan []byte, sendBufferSize)
	sendCh := c.sendCh
	c.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- c.sendLoop(sessionCtx, conn, sendCh) }()
	go func() { errCh <- c.receiveLoop(sessionCtx, conn) }()
	go c.heartbeatLoop(sessionCtx)

	err = <-errCh

	c.mu.Lock()
	c.conn = nil
	c.sendCh = nil
	c.mu.Unlock()

	if ctx.Err() != nil {
		c.sendDisconnect(conn, "agent shutting down")
		return nil
	}
	if err == nil {
		err = fmt.Errorf("connection: gateway closed the session")
	}
	return err
}

// dialSocket opens the websocket connection to Transport.SaaSURL.
func (c *Connection) dialSocket(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	if !c.cfg.SSLVerify {
		dialer.TLSClientConfig = insecureTLSConfig()
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.SaaSURL, http.Header{})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// handshake sends AUTH_REQUEST and waits for AUTH_RESPONSE. A non-success
// response is returned as a *wire.KindError with Kind ErrAuthFailed so Run
// can classify it as fatal.
func (c *Connection) handshake(conn *websocket.Conn) error {
	hostname, _ := os.Hostname()

	req := &wire.AuthRequest{
		Envelope:      wire.Envelope{Type: wire.TypeAuthRequest, Timestamp: time.Now()},
		GatewayToken:  c.token,
		AgentVersion:  version,
		AgentHostname: hostname,
		AgentOS:       runtime.GOOS,
	}
	data, err := wire.Encode(req)
	if err != nil {
		return fmt.Errorf("connection: encoding AUTH_REQUEST: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("connection: sending AUTH_REQUEST: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("connection: reading AUTH_RESPONSE: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	typ, frame, err := wire.Decode(raw)
	if err != nil || typ != wire.TypeAuthResponse {
		return fmt.Errorf("connection: expected AUTH_RESPONSE, got %q (err=%v)", typ, err)
	}
	resp := frame.(*wire.AuthResponse)

	if resp.Status != wire.StatusSuccess {
		return &wire.KindError{Kind: wire.ErrAuthFailed, Message: resp.ErrorMessage}
	}

	c.mu.Lock()
	c.sessionID = resp.SessionID
	c.heartbeatInt = time.Duration(resp.HeartbeatInterval) * time.Second
	c.queryTimeout = time.Duration(resp.QueryTimeout) * time.Second
	if c.heartbeatInt <= 0 {
		c.heartbeatInt = c.cfg.HeartbeatInterval
	}
	c.mu.Unlock()

	return nil
}

// sendLoop is the Connection's send serializer — the only goroutine
// allowed to write to conn, mirroring tunnel.Session.RunSend on the
// Gateway side.
func (c *Connection) sendLoop(ctx context.Context, conn *websocket.Conn, sendCh <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-sendCh:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("connection: send failed: %w", err)
			}
		}
	}
}

// receiveLoop decodes one frame at a time and dispatches request frames to
// the executor.Dispatcher, replying with the matching response. It returns
// when the socket errors, DISCONNECT is received, or ctx is cancelled.
func (c *Connection) receiveLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("connection: receive failed: %w", err)
		}

		typ, frame, err := wire.Decode(raw)
		if err != nil {
			if unk, ok := err.(wire.ErrUnknownType); ok {
				c.emitError("INVALID_MESSAGE", fmt.Sprintf("unknown frame type %q", unk.Type), "")
				continue
			}
			c.emitError("INVALID_MESSAGE", err.Error(), "")
			continue
		}

		switch typ {
		case wire.TypeHeartbeatAck:
			// Nothing to do — the send was fire-and-forget.
			continue
		case wire.TypeDisconnect:
			d := frame.(*wire.Disconnect)
			c.logger.Info("gateway requested disconnect", zap.String("reason", d.Reason))
			return nil
		case wire.TypeError:
			e := frame.(*wire.Error)
			c.logger.Warn("gateway reported protocol error",
				zap.String("error_code", e.ErrorCode),
				zap.String("error_message", e.ErrorMessage),
			)
			continue
		case wire.TypeQueryRequest, wire.TypeAPIRequest, wire.TypeEmployeeLookupRequest:
			go c.handleRequest(ctx, typ, frame)
		default:
			c.logger.Warn("unexpected frame on active connection", zap.String("type", string(typ)))
		}
	}
}

// handleRequest dispatches one inbound request frame to the executor and
// sends back its response. Each request frame's handler runs concurrently
// with the others, bounded only by local resource limits.
func (c *Connection) handleRequest(ctx context.Context, typ wire.Type, frame any) {
	resp, err := c.dial.Dispatch(ctx, typ, frame)
	if err != nil {
		c.logger.Error("dispatch failed", zap.Error(err))
		return
	}

	switch typ {
	case wire.TypeQueryRequest:
		c.queriesExecuted.Add(1)
	case wire.TypeAPIRequest:
		c.apiRequestsExecuted.Add(1)
	}

	c.sendFrame(resp)
}

func (c *Connection) heartbeatLoop(ctx context.Context) {
	c.mu.Lock()
	interval := c.heartbeatInt
	c.mu.Unlock()
	if interval <= 0 {
		interval = c.cfg.HeartbeatInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sendHeartbeat(ctx)
		}
	}
}

func (c *Connection) sendHeartbeat(ctx context.Context) {
	dbStatus, apiStatus := c.dial.HealthStatus(ctx)
	snap := metrics.Sample("")
	if snap.Pressured() {
		if dbStatus == wire.HealthConnected {
			dbStatus = wire.HealthError
		}
	}

	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	c.sendFrame(&wire.Heartbeat{
		Envelope:            wire.Envelope{Type: wire.TypeHeartbeat, Timestamp: time.Now()},
		SessionID:           sessionID,
		DBStatus:            dbStatus,
		APIStatus:           apiStatus,
		QueriesExecuted:     c.queriesExecuted.Load(),
		APIRequestsExecuted: c.apiRequestsExecuted.Load(),
		UptimeSeconds:       int64(time.Since(c.startedAt).Seconds()),
	})
}

func (c *Connection) emitError(code, message, requestID string) {
	c.sendFrame(&wire.Error{
		Envelope:     wire.Envelope{Type: wire.TypeError, Timestamp: time.Now()},
		ErrorCode:    code,
		ErrorMessage: message,
		RequestID:    requestID,
	})
}

func (c *Connection) sendDisconnect(conn *websocket.Conn, reason string) {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	data, err := wire.Encode(&wire.Disconnect{
		Envelope:  wire.Envelope{Type: wire.TypeDisconnect, Timestamp: time.Now()},
		SessionID: sessionID,
		Reason:    reason,
	})
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// sendFrame enqueues a frame on the active session's send channel. It is a
// no-op if no session is currently connected (e.g. a late heartbeat tick
// racing a teardown) — losing one frame to a closing socket is harmless,
// the next reconnect re-establishes state.
func (c *Connection) sendFrame(frame any) {
	data, err := wire.Encode(frame)
	if err != nil {
		c.logger.Error("failed to encode outgoing frame", zap.Error(err))
		return
	}

	c.mu.Lock()
	ch := c.sendCh
	c.mu.Unlock()
	if ch == nil {
		return
	}

	select {
	case ch <- data:
	default:
		c.logger.Warn("send queue full, dropping frame")
	}
}

// nextBackoff implements constant-base backoff: every retry waits the same
// base interval, not a growing one. ceiling, when positive, clamps base
// itself (an operator-configured reconnect_delay larger than
// max_reconnect_delay is capped rather than honored) — it does not cause
// backoff to grow over successive attempts.
func nextBackoff(base, ceiling time.Duration) time.Duration {
	if ceiling > 0 && base > ceiling {
		return ceiling
	}
	return base
}

// insecureTLSConfig disables certificate verification when the Agent's
// configuration explicitly sets ssl_verify: false — intended only for
// development against a self-signed Gateway.
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec
}

// jitter adds a random ±jitterFraction perturbation to d.
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * jitterFraction
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
