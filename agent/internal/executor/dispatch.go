// Package executor implements the Agent's three Local Executors: SQL,
// Local-HTTP, and Employee-Lookup. Each is invoked exactly once per
// inbound request frame and replies with the matching response type
// carrying the same request_id; all three may run concurrently with
// each other, bounded only by local resource limits.
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/agent/internal/config"
	"github.com/viaduct-io/viaduct/shared/wire"
)

// Dispatcher routes one decoded request frame to the matching Local
// Executor and returns the response frame to send back. It is the Agent
// side analog of the Gateway's Query Router: a thin, stateless hand-off
// with no retry or routing-decision logic of its own.
type Dispatcher struct {
	sql      *SQLExecutor
	http     *HTTPExecutor
	employee *EmployeeExecutor
	logger   *zap.Logger
}

// NewDispatcher builds a Dispatcher and its three Local Executors from the
// Agent's resolved configuration.
func NewDispatcher(cfg *config.Config, logger *zap.Logger) *Dispatcher {
	sqlExec := NewSQLExecutor(cfg.Database)
	return &Dispatcher{
		sql:      sqlExec,
		http:     NewHTTPExecutor(cfg.LocalHTTP),
		employee: NewEmployeeExecutor(sqlExec),
		logger:   logger.Named("executor"),
	}
}

// Close releases resources held by the Local Executors (the shared SQL
// connection pool).
func (d *Dispatcher) Close() error {
	return d.sql.Close()
}

// Dispatch runs the Local Executor matching typ and returns the response
// frame. It returns an error only for frame types no Local Executor
// handles. The caller (connection.Connection) only hands it the three
// request types, answers unknown or undecodable frames with an ERROR frame
// in its receive loop, and logs any Dispatch error without replying.
func (d *Dispatcher) Dispatch(ctx context.Context, typ wire.Type, frame any) (any, error) {
	switch typ {
	case wire.TypeQueryRequest:
		return d.sql.Query(ctx, frame.(*wire.QueryRequest)), nil
	case wire.TypeAPIRequest:
		return d.http.Call(ctx, frame.(*wire.APIRequest)), nil
	case wire.TypeEmployeeLookupRequest:
		return d.employee.Lookup(ctx, frame.(*wire.EmployeeLookupRequest)), nil
	default:
		return nil, fmt.Errorf("executor: no local executor handles frame type %q", typ)
	}
}

// HealthStatus reports the current reachability of the local back-ends
// feeding db_status/api_status on the next heartbeat.
func (d *Dispatcher) HealthStatus(ctx context.Context) (dbStatus, apiStatus wire.HealthStatus) {
	if err := d.sql.Ping(ctx); err != nil {
		dbStatus = wire.HealthError
	} else {
		dbStatus = wire.HealthConnected
	}

	// The Local-HTTP Executor has no persistent connection to probe — an
	// unconfigured base_url is reported as disconnected, a configured one
	// as connected, mirroring the NOT_CONFIGURED/SUCCESS split in Call.
	if d.http.cfg.BaseURL == "" {
		apiStatus = wire.HealthDisconnected
	} else {
		apiStatus = wire.HealthConnected
	}
	return dbStatus, apiStatus
}
