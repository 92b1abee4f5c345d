package router

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/gateway/internal/alerting"
	"github.com/viaduct-io/viaduct/gateway/internal/db"
	"github.com/viaduct-io/viaduct/gateway/internal/metrics"
	"github.com/viaduct-io/viaduct/gateway/internal/repository"
	"github.com/viaduct-io/viaduct/gateway/internal/tunnel"
	"github.com/viaduct-io/viaduct/shared/wire"
)

// SessionLookup is the subset of *tunnel.Registry the Router depends on.
// Defined as an interface so router tests can substitute a fake registry
// without standing up a real tunnel.
type SessionLookup interface {
	Lookup(databaseID uuid.UUID, tStale time.Duration) (*tunnel.Session, bool)
}

// Router is the Query Router: given a database's configured mode
// and the current tunnel state, it decides whether a query runs over the
// tunnel or against a directly reachable database.
type Router struct {
	databases repository.DatabaseRepository
	sessions  SessionLookup
	direct    *DirectExecutor
	tStale    time.Duration
	metrics   *metrics.Collectors
	alerts    alerting.Service
	logger    *zap.Logger
}

// New constructs a Router. collectors and alerts may be nil in tests.
func New(databases repository.DatabaseRepository, sessions SessionLookup, direct *DirectExecutor, tStale time.Duration, collectors *metrics.Collectors, alerts alerting.Service, logger *zap.Logger) *Router {
	return &Router{
		databases: databases,
		sessions:  sessions,
		direct:    direct,
		tStale:    tStale,
		metrics:   collectors,
		alerts:    alerts,
		logger:    logger.Named("router"),
	}
}

func (r *Router) countRouted(path string) {
	if r.metrics != nil {
		r.metrics.QueriesRouted.WithLabelValues(path).Inc()
	}
}

// ExecuteQuery routes a single SQL query according to the database's
// configured mode and live tunnel state. It never returns a bare Go error
// for a routing decision — routing failures always come back as a
// *wire.KindError the caller can map straight onto the synchronous API's
// error envelope.
func (r *Router) ExecuteQuery(ctx context.Context, databaseID uuid.UUID, sqlQuery string, timeout time.Duration, maxRows int, userID, conversationID string) (*wire.QueryResponse, error) {
	rec, err := r.databases.GetByID(ctx, databaseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, wire.NewKindError(wire.ErrNotConfigured, "database is not configured")
		}
		return nil, err
	}
	if !rec.Enabled {
		return nil, wire.NewKindError(wire.ErrNotConfigured, "database is disabled")
	}

	session, hasSession := r.sessions.Lookup(databaseID, r.tStale)

	switch rec.Mode {
	case db.RoutingModeGatewayOnly:
		if !hasSession {
			return nil, wire.NewKindError(wire.ErrGatewayNotConnected, "agent is not connected")
		}
		r.countRouted("tunnel")
		return r.viaTunnel(ctx, session, sqlQuery, timeout, maxRows, userID, conversationID)

	case db.RoutingModeDirectOnly:
		r.countRouted("direct")
		return r.direct.Query(ctx, rec, sqlQuery, timeout, maxRows)

	case db.RoutingModeAuto:
		if hasSession {
			r.countRouted("tunnel")
			return r.viaTunnel(ctx, session, sqlQuery, timeout, maxRows, userID, conversationID)
		}
		if probeErr := r.direct.Probe(ctx, rec); probeErr != nil {
			if r.alerts != nil {
				if alertErr := r.alerts.NotifyDirectConnectionFailed(ctx, rec.DatabaseID, rec.Name, probeErr.Error()); alertErr != nil {
					r.logger.Warn("failed to fire direct-connection-failed alert", zap.Error(alertErr))
				}
			}
			return nil, wire.NewKindError(wire.ErrGatewayNotConnected, "agent is not connected").WithDetail(probeErr.Error())
		}
		r.countRouted("direct")
		return r.direct.Query(ctx, rec, sqlQuery, timeout, maxRows)

	default:
		return nil, wire.NewKindError(wire.ErrNotConfigured, "database has no valid routing mode")
	}
}

// ProbeDirect exposes the Direct Executor's reachability probe for
// diagnostics endpoints (connection_status) without routing a query.
func (r *Router) ProbeDirect(ctx context.Context, rec *db.DatabaseRecord) error {
	return r.direct.Probe(ctx, rec)
}

func (r *Router) viaTunnel(ctx context.Context, session *tunnel.Session, sqlQuery string, timeout time.Duration, maxRows int, userID, conversationID string) (*wire.QueryResponse, error) {
	resp, err := session.Query(ctx, sqlQuery, timeout, maxRows, userID, conversationID)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
