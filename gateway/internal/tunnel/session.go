// Package tunnel implements the Gateway side of the Agent↔Gateway tunnel:
// the Session Registry, the Session request/response correlator, the
// Tunnel Endpoint handshake, and the Liveness Monitor.
package tunnel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/gateway/internal/metrics"
	"github.com/viaduct-io/viaduct/shared/wire"
)

// Socket is the narrow slice of *websocket.Conn a Session needs. Defining
// it as an interface lets tests drive a Session with an in-memory fake
// instead of a real network socket, while production code drives it
// against a real *websocket.Conn.
type Socket interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// sendBufferSize bounds the Session's outbound queue. request(...) fails
// fast with ErrConnectionClosed-style backpressure once the queue is full,
// so a slow Agent cannot make the Gateway's request() callers hang
// indefinitely.
const sendBufferSize = 64

// pendingResult is what a completion slot is fulfilled with: either a
// decoded response frame, or an error (timeout, connection closed).
type pendingResult struct {
	frame any
	err   error
}

// Session represents one live Agent connection. It owns exactly one
// socket, a single-writer send loop, and a receive loop that demultiplexes
// inbound frames by request_id.
type Session struct {
	id           uuid.UUID
	databaseID   uuid.UUID
	tenantID     string
	databaseName string

	agentVersion  string
	agentHostname string
	agentOS       string

	connectedAt time.Time

	conn   Socket
	logger *zap.Logger

	active atomic.Bool

	// sendMu guards sendCh against the send-on-closed-channel race between
	// sendFrame/request and Terminate. Senders take the read lock for the
	// whole active-check-then-send critical section; Terminate takes the
	// write lock around closing sendCh, so it can never close the channel
	// while a send is in flight and no send can start once it has closed.
	sendMu sync.RWMutex
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once

	healthMu  sync.Mutex
	lastBeat  time.Time
	dbStatus  wire.HealthStatus
	apiStatus wire.HealthStatus

	queriesExecuted     atomic.Int64
	apiRequestsExecuted atomic.Int64

	pendingMu sync.Mutex
	pending   map[string]chan pendingResult

	metrics *metrics.Collectors
}

// NewSession constructs a Session around an already-upgraded socket. The
// caller is expected to have just completed the AUTH_REQUEST/AUTH_RESPONSE
// handshake; NewSession does not itself perform authentication.
func NewSession(conn Socket, databaseID uuid.UUID, tenantID, databaseName, agentVersion, agentHostname, agentOS string, collectors *metrics.Collectors, logger *zap.Logger) *Session {
	s := &Session{
		id:            uuid.Must(uuid.NewV7()),
		databaseID:    databaseID,
		tenantID:      tenantID,
		databaseName:  databaseName,
		agentVersion:  agentVersion,
		agentHostname: agentHostname,
		agentOS:       agentOS,
		connectedAt:   time.Now(),
		conn:          conn,
		sendCh:        make(chan []byte, sendBufferSize),
		done:          make(chan struct{}),
		dbStatus:      wire.HealthDisconnected,
		apiStatus:     wire.HealthDisconnected,
		pending:       make(map[string]chan pendingResult),
		lastBeat:      time.Now(),
		metrics:       collectors,
	}
	s.logger = logger.Named("session").With(zap.String("session_id", s.id.String()), zap.String("database_id", databaseID.String()))
	s.active.Store(true)
	return s
}

func (s *Session) ID() uuid.UUID             { return s.id }
func (s *Session) DatabaseID() uuid.UUID     { return s.databaseID }
func (s *Session) TenantID() string          { return s.tenantID }
func (s *Session) DatabaseName() string      { return s.databaseName }
func (s *Session) ConnectedAt() time.Time    { return s.connectedAt }
func (s *Session) Active() bool              { return s.active.Load() }

// LastHeartbeatAt returns the last time a Heartbeat frame updated this
// Session's health fields.
func (s *Session) LastHeartbeatAt() time.Time {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	return s.lastBeat
}

// Health returns the Agent-reported status of its local back-ends.
func (s *Session) Health() (dbStatus, apiStatus wire.HealthStatus) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	return s.dbStatus, s.apiStatus
}

// Counters returns the monotonic per-Session counters.
func (s *Session) Counters() (queries, apiRequests int64) {
	return s.queriesExecuted.Load(), s.apiRequestsExecuted.Load()
}

// IsStale reports whether the Session has gone longer than tStale without a
// heartbeat.
func (s *Session) IsStale(tStale time.Duration) bool {
	return time.Since(s.LastHeartbeatAt()) > tStale
}

// RunSend is the Session's send serializer — the only goroutine allowed to
// write to conn. It exits when sendCh is closed (on Terminate) or a write
// fails, in which case it triggers Terminate itself so a dead socket always
// results in pending requests being completed with CONNECTION_CLOSED.
func (s *Session) RunSend() {
	for data := range s.sendCh {
		if err := s.conn.WriteMessage(1, data); err != nil {
			s.logger.Warn("send failed, terminating session", zap.Error(err))
			s.Terminate("send error")
			return
		}
	}
}

// RunReceive is the Session's receive loop. It decodes one frame at a time
// and dispatches by type. It returns when the socket errors or
// DISCONNECT is received; the caller (Tunnel Endpoint) is responsible for
// calling Terminate afterward.
func (s *Session) RunReceive() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Info("receive loop exiting", zap.Error(err))
			return
		}

		typ, frame, err := wire.Decode(data)
		if err != nil {
			if unk, ok := err.(wire.ErrUnknownType); ok {
				s.emitError("INVALID_MESSAGE", fmt.Sprintf("unknown frame type %q", unk.Type), "")
				continue
			}
			s.emitError("INVALID_MESSAGE", err.Error(), "")
			continue
		}

		s.dispatch(typ, frame)
	}
}

func (s *Session) dispatch(typ wire.Type, frame any) {
	switch typ {
	case wire.TypeHeartbeat:
		hb := frame.(*wire.Heartbeat)
		s.healthMu.Lock()
		s.lastBeat = time.Now()
		s.dbStatus = hb.DBStatus
		s.apiStatus = hb.APIStatus
		s.healthMu.Unlock()
		if s.metrics != nil {
			s.metrics.HeartbeatsReceived.Inc()
		}
		s.sendFrame(&wire.HeartbeatAck{
			Envelope:   wire.Envelope{Type: wire.TypeHeartbeatAck, Timestamp: time.Now()},
			SessionID:  s.id.String(),
			ServerTime: time.Now(),
		})

	case wire.TypeQueryResponse:
		resp := frame.(*wire.QueryResponse)
		s.queriesExecuted.Add(1)
		s.complete(resp.RequestID, resp, nil)

	case wire.TypeAPIResponse:
		resp := frame.(*wire.APIResponse)
		s.apiRequestsExecuted.Add(1)
		s.complete(resp.RequestID, resp, nil)

	case wire.TypeEmployeeLookupResponse:
		resp := frame.(*wire.EmployeeLookupResponse)
		s.complete(resp.RequestID, resp, nil)

	case wire.TypeDBStatusUpdate:
		upd := frame.(*wire.DBStatusUpdate)
		s.healthMu.Lock()
		s.dbStatus = upd.Status
		s.healthMu.Unlock()

	case wire.TypeDisconnect:
		d := frame.(*wire.Disconnect)
		s.logger.Info("agent requested disconnect", zap.String("reason", d.Reason))
		s.Terminate("agent disconnect")

	default:
		s.logger.Warn("unexpected frame on active session", zap.String("type", string(typ)))
	}
}

// complete fulfils a pending slot if one exists for requestID. A response
// whose slot is gone (already timed out) is logged and dropped — a late
// response arriving after its caller has given up is not an error.
func (s *Session) complete(requestID string, frame any, err error) {
	s.pendingMu.Lock()
	ch, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	s.pendingMu.Unlock()
	if ok {
		s.trackPending(-1)
	}

	if !ok {
		s.logger.Info("dropping response for unknown or expired request_id", zap.String("request_id", requestID))
		return
	}
	ch <- pendingResult{frame: frame, err: err}
}

func (s *Session) emitError(code, message, requestID string) {
	s.sendFrame(&wire.Error{
		Envelope:     wire.Envelope{Type: wire.TypeError, Timestamp: time.Now()},
		ErrorCode:    code,
		ErrorMessage: message,
		RequestID:    requestID,
	})
}

// sendFrame enqueues a frame for the send serializer. It never blocks the
// caller beyond the bounded queue; a full queue drops the frame (only
// happens for HeartbeatAck/Error, which are not request/response frames
// with caller-visible failure paths).
//
// The active check and the channel send happen under the same read lock
// that Terminate takes exclusively before closing sendCh, so this can
// never observe the session as active and then send on a channel that
// Terminate has since closed.
func (s *Session) sendFrame(frame any) {
	data, err := wire.Encode(frame)
	if err != nil {
		s.logger.Error("failed to encode outgoing frame", zap.Error(err))
		return
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if !s.active.Load() {
		s.logger.Warn("dropping frame, session already terminated")
		return
	}
	select {
	case s.sendCh <- data:
	default:
		s.logger.Warn("send queue full, dropping frame")
	}
}

// request is the shared implementation behind Query, CallAPI, and
// LookupEmployee: generate a request_id, register a pending slot, enqueue
// the frame, and wait for completion or timeout. requestID is server-
// minted here — never accepted from a caller — per the Open Question
// resolution in DESIGN.md.
func (s *Session) request(ctx context.Context, build func(requestID string) any, frameType wire.Type, timeout time.Duration) (any, error) {
	requestID := uuid.NewString()
	frame := build(requestID)
	start := time.Now()

	ch := make(chan pendingResult, 1)
	s.pendingMu.Lock()
	s.pending[requestID] = ch
	s.pendingMu.Unlock()
	s.trackPending(1)

	data, err := wire.Encode(frame)
	if err != nil {
		s.dropPending(requestID)
		return nil, fmt.Errorf("tunnel: encoding request frame: %w", err)
	}

	// The active check and the send share the read lock Terminate takes
	// exclusively around closing sendCh, so a send can never land on an
	// already-closed channel: either this observes active and the send
	// completes before Terminate can close it, or Terminate has already
	// closed it and active is already false.
	s.sendMu.RLock()
	if !s.active.Load() {
		s.sendMu.RUnlock()
		s.dropPending(requestID)
		return nil, &wire.KindError{Kind: wire.ErrConnectionClosed, Message: "session is not active"}
	}
	select {
	case s.sendCh <- data:
		s.sendMu.RUnlock()
	default:
		s.sendMu.RUnlock()
		s.dropPending(requestID)
		return nil, &wire.KindError{Kind: wire.ErrConnectionClosed, Message: "send queue saturated"}
	}

	// epsilon covers network overhead beyond the caller's own deadline.
	const epsilon = 5 * time.Second
	timer := time.NewTimer(timeout + epsilon)
	defer timer.Stop()

	select {
	case res := <-ch:
		s.observeDuration(frameType, start)
		return res.frame, res.err
	case <-timer.C:
		s.dropPending(requestID)
		return nil, &wire.KindError{Kind: wire.ErrTimeout, Message: "request timed out"}
	case <-s.done:
		s.dropPending(requestID)
		return nil, &wire.KindError{Kind: wire.ErrConnectionClosed, Message: "session terminated"}
	case <-ctx.Done():
		s.dropPending(requestID)
		return nil, ctx.Err()
	}
}

func (s *Session) dropPending(requestID string) {
	s.pendingMu.Lock()
	_, existed := s.pending[requestID]
	delete(s.pending, requestID)
	s.pendingMu.Unlock()
	if existed {
		s.trackPending(-1)
	}
}

func (s *Session) trackPending(delta float64) {
	if s.metrics == nil {
		return
	}
	if delta > 0 {
		s.metrics.PendingRequestSlots.Add(delta)
	} else {
		s.metrics.PendingRequestSlots.Sub(-delta)
	}
}

func (s *Session) observeDuration(frameType wire.Type, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RequestDuration.WithLabelValues(string(frameType)).Observe(time.Since(start).Seconds())
}

// Query sends a QUERY_REQUEST and waits for the matching QUERY_RESPONSE.
func (s *Session) Query(ctx context.Context, sqlQuery string, timeout time.Duration, maxRows int, userID, conversationID string) (*wire.QueryResponse, error) {
	frame, err := s.request(ctx, func(requestID string) any {
		return &wire.QueryRequest{
			Envelope:       wire.Envelope{Type: wire.TypeQueryRequest, Timestamp: time.Now()},
			RequestID:      requestID,
			SQLQuery:       sqlQuery,
			Timeout:        int(timeout.Seconds()),
			MaxRows:        maxRows,
			UserID:         userID,
			ConversationID: conversationID,
		}
	}, wire.TypeQueryRequest, timeout)
	if err != nil {
		return nil, err
	}
	return frame.(*wire.QueryResponse), nil
}

// CallAPI sends an API_REQUEST and waits for the matching API_RESPONSE.
func (s *Session) CallAPI(ctx context.Context, req wire.APIRequest, timeout time.Duration) (*wire.APIResponse, error) {
	frame, err := s.request(ctx, func(requestID string) any {
		req.Envelope = wire.Envelope{Type: wire.TypeAPIRequest, Timestamp: time.Now()}
		req.RequestID = requestID
		req.Timeout = int(timeout.Seconds())
		return &req
	}, wire.TypeAPIRequest, timeout)
	if err != nil {
		return nil, err
	}
	return frame.(*wire.APIResponse), nil
}

// LookupEmployee sends an EMPLOYEE_LOOKUP_REQUEST and waits for the
// matching response.
func (s *Session) LookupEmployee(ctx context.Context, identifier string, lookupType wire.LookupType, timeout time.Duration) (*wire.EmployeeLookupResponse, error) {
	frame, err := s.request(ctx, func(requestID string) any {
		return &wire.EmployeeLookupRequest{
			Envelope:   wire.Envelope{Type: wire.TypeEmployeeLookupRequest, Timestamp: time.Now()},
			RequestID:  requestID,
			Identifier: identifier,
			LookupType: lookupType,
			Timeout:    int(timeout.Seconds()),
		}
	}, wire.TypeEmployeeLookupRequest, timeout)
	if err != nil {
		return nil, err
	}
	return frame.(*wire.EmployeeLookupResponse), nil
}

// Terminate marks the Session inactive, completes every pending request
// with CONNECTION_CLOSED, and closes the socket. Safe to call more than
// once and from more than one goroutine.
func (s *Session) Terminate(reason string) {
	s.once.Do(func() {
		s.sendMu.Lock()
		s.active.Store(false)
		close(s.sendCh)
		s.sendMu.Unlock()

		close(s.done)

		s.pendingMu.Lock()
		pending := s.pending
		s.pending = make(map[string]chan pendingResult)
		s.pendingMu.Unlock()

		for _, ch := range pending {
			ch <- pendingResult{err: &wire.KindError{Kind: wire.ErrConnectionClosed, Message: "session terminated: " + reason}}
		}
		s.trackPending(-float64(len(pending)))

		_ = s.conn.Close()
		if s.metrics != nil {
			s.metrics.SessionsTerminated.WithLabelValues(reason).Inc()
		}
		s.logger.Info("session terminated", zap.String("reason", reason))
	})
}
