// Package router implements the Query Router: the decision layer
// that picks between the tunnel and a directly reachable database for a
// given query, plus the Direct Executor that actually runs queries against
// directly reachable databases.
package router

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
	"github.com/viaduct-io/viaduct/shared/wire"
)

// probeBudget bounds how long a direct-reachability probe is allowed to
// take: a lightweight connectivity test with a bounded budget whose
// failure must not propagate as an unhandled error.
const probeBudget = 2 * time.Second

// probeCacheTTL lets the Direct Executor skip a fresh probe if one
// succeeded very recently, rather than re-probing on every call.
const probeCacheTTL = 1 * time.Second

// DirectExecutor maintains one pooled *sql.DB per directly reachable
// database and runs queries against it. It is grounded on db.New's
// driver-selection and pool-sizing pattern, generalized from "the one
// Gateway database" to "any number of customer-configured direct
// databases", each opened lazily and cached by database_id.
type DirectExecutor struct {
	logger *zap.Logger

	mu    sync.Mutex
	pools map[string]*sql.DB

	probeMu     sync.Mutex
	lastProbeOK map[string]time.Time
}

// NewDirectExecutor constructs an empty Direct Executor. Pools are opened
// on first use and kept open across calls.
func NewDirectExecutor(logger *zap.Logger) *DirectExecutor {
	return &DirectExecutor{
		logger:      logger.Named("direct_executor"),
		pools:       make(map[string]*sql.DB),
		lastProbeOK: make(map[string]time.Time),
	}
}

// pool returns the cached *sql.DB for a database record, opening and
// configuring a new one on first use.
func (d *DirectExecutor) pool(rec *db.DatabaseRecord) (*sql.DB, error) {
	key := rec.DatabaseID.String()

	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pools[key]; ok {
		return p, nil
	}

	driverName, err := sqlDriverName(rec.DirectDriver)
	if err != nil {
		return nil, err
	}

	p, err := sql.Open(driverName, string(rec.DirectDSN))
	if err != nil {
		return nil, fmt.Errorf("router: opening direct connection for %s: %w", key, err)
	}

	// Conservative defaults — a customer's on-prem database is not sized
	// for the same concurrency as the Gateway's own store.
	p.SetMaxOpenConns(5)
	p.SetMaxIdleConns(2)
	p.SetConnMaxLifetime(30 * time.Minute)

	d.pools[key] = p
	return p, nil
}

func sqlDriverName(configured string) (string, error) {
	switch configured {
	case "postgres", "":
		return "pgx", nil
	case "mysql":
		return "mysql", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("router: unsupported direct driver %q", configured)
	}
}

// Probe checks whether a database is directly reachable within
// probeBudget. A recent successful probe is reused instead of re-dialing,
// per probeCacheTTL.
func (d *DirectExecutor) Probe(ctx context.Context, rec *db.DatabaseRecord) error {
	key := rec.DatabaseID.String()

	d.probeMu.Lock()
	if last, ok := d.lastProbeOK[key]; ok && time.Since(last) < probeCacheTTL {
		d.probeMu.Unlock()
		return nil
	}
	d.probeMu.Unlock()

	p, err := d.pool(rec)
	if err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, probeBudget)
	defer cancel()

	if err := p.PingContext(pctx); err != nil {
		return fmt.Errorf("router: direct probe failed: %w", err)
	}

	d.probeMu.Lock()
	d.lastProbeOK[key] = time.Now()
	d.probeMu.Unlock()
	return nil
}

// Query runs sqlQuery directly against rec's database and shapes the
// result the same way a QUERY_RESPONSE from the tunnel would, so callers
// of the Query Router see one response shape regardless of path.
func (d *DirectExecutor) Query(ctx context.Context, rec *db.DatabaseRecord, sqlQuery string, timeout time.Duration, maxRows int) (*wire.QueryResponse, error) {
	p, err := d.pool(rec)
	if err != nil {
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rows, err := p.QueryContext(qctx, sqlQuery)
	if err != nil {
		return &wire.QueryResponse{
			Envelope:        wire.Envelope{Type: wire.TypeQueryResponse, Timestamp: time.Now()},
			Status:          wire.StatusError,
			ErrorMessage:    err.Error(),
			ErrorCode:       string(wire.ErrQuery),
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("router: reading result columns: %w", err)
	}

	var result []map[string]any
	for rows.Next() {
		if maxRows > 0 && len(result) >= maxRows {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("router: scanning result row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("router: iterating result rows: %w", err)
	}

	return &wire.QueryResponse{
		Envelope:        wire.Envelope{Type: wire.TypeQueryResponse, Timestamp: time.Now()},
		Status:          wire.StatusSuccess,
		Columns:         cols,
		Rows:            result,
		RowCount:        len(result),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// Close closes every pooled connection. Called on Gateway shutdown.
func (d *DirectExecutor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, p := range d.pools {
		if err := p.Close(); err != nil {
			d.logger.Warn("error closing direct pool", zap.String("database_id", key), zap.Error(err))
		}
	}
}
