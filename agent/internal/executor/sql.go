package executor

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/viaduct-io/viaduct/agent/internal/config"
	"github.com/viaduct-io/viaduct/shared/wire"
)

// SQLExecutor runs queries against the Agent's configured local database.
// It holds one connection pool for the lifetime of the process, opened
// lazily on the first query, and reuses it on every subsequent call.
type SQLExecutor struct {
	cfg config.Database
	db  *sql.DB
}

// NewSQLExecutor constructs a SQLExecutor. The underlying *sql.DB is not
// opened until the first Query call.
func NewSQLExecutor(cfg config.Database) *SQLExecutor {
	return &SQLExecutor{cfg: cfg}
}

// Close releases the underlying connection pool, if one was opened.
func (e *SQLExecutor) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Ping verifies the local database is reachable within the given budget. It
// is the Agent-side analog of the Gateway's direct-connect probe, used to
// compute db_status before each heartbeat.
func (e *SQLExecutor) Ping(ctx context.Context) error {
	db, err := e.connection()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func (e *SQLExecutor) connection() (*sql.DB, error) {
	if e.db != nil {
		return e.db, nil
	}

	driverName, dsn, err := driverAndDSN(e.cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("executor: opening local database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	e.db = db
	return db, nil
}

// driverAndDSN maps the Agent config's driver selection onto a
// database/sql driver name and connection string.
func driverAndDSN(cfg config.Database) (string, string, error) {
	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		return "pgx", dsn, nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		return "mysql", dsn, nil
	case "sqlite":
		return "sqlite", cfg.Name, nil
	default:
		return "", "", fmt.Errorf("executor: unsupported database driver %q", cfg.Driver)
	}
}

// Query runs sqlQuery with the given timeout and returns at most maxRows
// rows, normalized: timestamps to a canonical textual form, decimals to
// floating-point, binary to hex, columns in the order the driver reports
// them.
func (e *SQLExecutor) Query(ctx context.Context, req *wire.QueryRequest) *wire.QueryResponse {
	start := time.Now()
	resp := &wire.QueryResponse{
		Envelope:  wire.Envelope{Type: wire.TypeQueryResponse, Timestamp: time.Now()},
		RequestID: req.RequestID,
	}

	db, err := e.connection()
	if err != nil {
		resp.Status = wire.StatusConnectionError
		resp.ErrorMessage = err.Error()
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		return resp
	}

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.QueryContext(queryCtx, req.SQLQuery)
	if err != nil {
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		if queryCtx.Err() == context.DeadlineExceeded {
			resp.Status = wire.StatusTimeout
			resp.ErrorMessage = "query exceeded its deadline"
			return resp
		}
		resp.Status = wire.StatusError
		resp.ErrorMessage = err.Error()
		return resp
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		resp.Status = wire.StatusError
		resp.ErrorMessage = fmt.Sprintf("reading column names: %v", err)
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		return resp
	}

	// columnTypes drives the []byte ambiguity in normalizeScalar: both
	// pgx/stdlib and go-sql-driver/mysql hand back NUMERIC/DECIMAL columns
	// as []byte, indistinguishable from true binary without consulting the
	// driver-reported column type. ColumnTypes can fail to populate on some
	// drivers/queries; columnIsDecimal degrades to "not decimal" if so.
	colTypes, _ := rows.ColumnTypes()

	maxRows := req.MaxRows
	if maxRows <= 0 {
		maxRows = 1000
	}

	records := make([]map[string]any, 0, maxRows)
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() && len(records) < maxRows {
		if err := rows.Scan(scanTargets...); err != nil {
			resp.Status = wire.StatusError
			resp.ErrorMessage = fmt.Sprintf("scanning row: %v", err)
			resp.ExecutionTimeMs = time.Since(start).Milliseconds()
			return resp
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeScalar(values[i], columnIsDecimal(colTypes, i))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		resp.Status = wire.StatusError
		resp.ErrorMessage = fmt.Sprintf("iterating rows: %v", err)
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		return resp
	}

	resp.Status = wire.StatusSuccess
	resp.Columns = columns
	resp.Rows = records
	resp.RowCount = len(records)
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()
	return resp
}

// decimalTypeNames are the DatabaseTypeName() values pgx/stdlib and
// go-sql-driver/mysql report for fixed-point columns, both of which scan
// into an any as []byte rather than a native numeric type.
var decimalTypeNames = map[string]bool{
	"NUMERIC": true,
	"DECIMAL": true,
}

// columnIsDecimal reports whether column i of colTypes is a NUMERIC/DECIMAL
// column. colTypes may be nil (driver didn't populate it) or shorter than i
// in degenerate cases; both report false rather than panicking.
func columnIsDecimal(colTypes []*sql.ColumnType, i int) bool {
	if i < 0 || i >= len(colTypes) || colTypes[i] == nil {
		return false
	}
	return decimalTypeNames[colTypes[i].DatabaseTypeName()]
}

// normalizeScalar converts a single scanned value to the wire-safe form:
// timestamps to RFC3339Nano in UTC, decimals to float64, remaining []byte to hex,
// everything else passed through as-is (the JSON encoder handles
// int64/float64/bool/string/nil). isDecimal disambiguates a NUMERIC/DECIMAL
// column surfaced as []byte from true binary data, which both drivers
// otherwise return identically.
func normalizeScalar(v any, isDecimal bool) any {
	switch val := v.(type) {
	case []byte:
		if isDecimal {
			if f, err := strconv.ParseFloat(string(val), 64); err == nil {
				return f
			}
		}
		return hex.EncodeToString(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}
