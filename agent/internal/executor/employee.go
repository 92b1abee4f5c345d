package executor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/viaduct-io/viaduct/shared/wire"
)

// employeeTable/columns name the fixed local schema the Employee-Lookup
// Executor queries against. Real deployments vary on exact column names;
// Viaduct's Config Loader does not expose this as a setting because the
// three-strategy search itself is fixed, not its backing schema — a
// future config surface for table/column overrides is a natural follow-up,
// not implemented here.
const (
	employeeTable       = "employees"
	employeeCodeColumn  = "employee_code"
	employeeCardColumn  = "card_number"
	employeeNameColumn  = "full_name"
)

// EmployeeExecutor resolves employee identifiers against the Agent's local
// database using a fixed three-strategy search. It reuses the same
// connection pool as the SQL Executor.
type EmployeeExecutor struct {
	sql *SQLExecutor
}

// NewEmployeeExecutor constructs an EmployeeExecutor sharing sqlExec's
// connection pool.
func NewEmployeeExecutor(sqlExec *SQLExecutor) *EmployeeExecutor {
	return &EmployeeExecutor{sql: sqlExec}
}

// Lookup resolves req.Identifier in fixed strategy order: exact code
// match, then exact card match, then exact name match, then
// case-insensitive partial name match capped at five results.
func (e *EmployeeExecutor) Lookup(ctx context.Context, req *wire.EmployeeLookupRequest) *wire.EmployeeLookupResponse {
	start := time.Now()
	resp := &wire.EmployeeLookupResponse{
		Envelope:  wire.Envelope{Type: wire.TypeEmployeeLookupResponse, Timestamp: time.Now()},
		RequestID: req.RequestID,
	}

	db, err := e.sql.connection()
	if err != nil {
		resp.Status = wire.StatusConnectionError
		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		return resp
	}

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	strategies := strategiesFor(req.LookupType)
	for _, strategy := range strategies {
		matches, err := strategy(lookupCtx, db, req.Identifier)
		if err != nil {
			resp.ExecutionTimeMs = time.Since(start).Milliseconds()
			if lookupCtx.Err() == context.DeadlineExceeded {
				resp.Status = wire.StatusTimeout
				return resp
			}
			resp.Status = wire.StatusError
			return resp
		}
		if len(matches) == 0 {
			continue
		}

		resp.ExecutionTimeMs = time.Since(start).Milliseconds()
		if len(matches) == 1 {
			resp.Status = wire.StatusSuccess
			resp.Employee = &matches[0]
			return resp
		}
		resp.Status = wire.StatusMultipleFound
		resp.Employee = &matches[0]
		resp.Employees = matches
		return resp
	}

	resp.Status = wire.StatusNotFound
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()
	return resp
}

// lookupStrategy runs one identifier-matching query and returns the
// matching rows, normalized the same way the SQL Executor normalizes
// scalars.
type lookupStrategy func(ctx context.Context, db *sql.DB, identifier string) ([]wire.Employee, error)

// strategiesFor returns the ordered strategy chain for a lookup_type.
// LookupAuto runs every strategy in fixed order;
// LookupCode/LookupCard/LookupName pin the search to a single column.
func strategiesFor(lookupType wire.LookupType) []lookupStrategy {
	switch lookupType {
	case wire.LookupCode:
		return []lookupStrategy{exactMatch(employeeCodeColumn)}
	case wire.LookupCard:
		return []lookupStrategy{exactMatch(employeeCardColumn)}
	case wire.LookupName:
		return []lookupStrategy{exactMatch(employeeNameColumn), partialNameMatch}
	default: // LookupAuto and unrecognized values fall back to the full chain
		return []lookupStrategy{
			exactMatch(employeeCodeColumn),
			exactMatch(employeeCardColumn),
			exactMatch(employeeNameColumn),
			partialNameMatch,
		}
	}
}

// exactMatch returns a strategy matching identifier exactly against column,
// parameterized — no interpolation of the identifier into the statement.
func exactMatch(column string) lookupStrategy {
	return func(ctx context.Context, db *sql.DB, identifier string) ([]wire.Employee, error) {
		query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", employeeTable, column)
		return runLookupQuery(ctx, db, query, identifier)
	}
}

// partialNameMatch performs a case-insensitive partial match on the name
// column, capped at five results.
func partialNameMatch(ctx context.Context, db *sql.DB, identifier string) ([]wire.Employee, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE LOWER(%s) LIKE LOWER(?) LIMIT 5", employeeTable, employeeNameColumn)
	return runLookupQuery(ctx, db, query, "%"+identifier+"%")
}

func runLookupQuery(ctx context.Context, db *sql.DB, query string, arg any) ([]wire.Employee, error) {
	rows, err := db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("executor: employee lookup query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("executor: reading employee columns: %w", err)
	}
	colTypes, _ := rows.ColumnTypes()

	var matches []wire.Employee
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("executor: scanning employee row: %w", err)
		}
		record := make(wire.Employee, len(columns))
		for i, col := range columns {
			record[col] = normalizeScalar(values[i], columnIsDecimal(colTypes, i))
		}
		matches = append(matches, record)
	}
	return matches, rows.Err()
}
