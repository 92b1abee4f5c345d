package executor

import (
	"context"
	"testing"

	"github.com/viaduct-io/viaduct/agent/internal/config"
	"github.com/viaduct-io/viaduct/shared/wire"
)

func newSQLiteExecutor(t *testing.T) *SQLExecutor {
	t.Helper()
	exec := NewSQLExecutor(config.Database{Driver: "sqlite", Name: ":memory:"})
	t.Cleanup(func() { exec.Close() })

	db, err := exec.connection()
	if err != nil {
		t.Fatalf("connection(): %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT, created_at TIMESTAMP)`); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO widgets (id, name) VALUES (1, 'alpha'), (2, 'beta'), (3, 'gamma')`); err != nil {
		t.Fatalf("INSERT: %v", err)
	}
	return exec
}

func TestSQLExecutorQuerySuccess(t *testing.T) {
	exec := newSQLiteExecutor(t)

	resp := exec.Query(context.Background(), &wire.QueryRequest{
		RequestID: "req-1",
		SQLQuery:  "SELECT id, name FROM widgets ORDER BY id",
		Timeout:   5,
		MaxRows:   100,
	})

	if resp.Status != wire.StatusSuccess {
		t.Fatalf("Status = %q, want success (err=%q)", resp.Status, resp.ErrorMessage)
	}
	if resp.RowCount != 3 {
		t.Fatalf("RowCount = %d, want 3", resp.RowCount)
	}
	if len(resp.Columns) != 2 || resp.Columns[0] != "id" || resp.Columns[1] != "name" {
		t.Fatalf("Columns = %v, want [id name]", resp.Columns)
	}
	if resp.Rows[0]["name"] != "alpha" {
		t.Fatalf("Rows[0][name] = %v, want alpha", resp.Rows[0]["name"])
	}
}

func TestSQLExecutorQueryRespectsMaxRows(t *testing.T) {
	exec := newSQLiteExecutor(t)

	resp := exec.Query(context.Background(), &wire.QueryRequest{
		RequestID: "req-2",
		SQLQuery:  "SELECT id FROM widgets ORDER BY id",
		Timeout:   5,
		MaxRows:   2,
	})

	if resp.Status != wire.StatusSuccess {
		t.Fatalf("Status = %q, want success", resp.Status)
	}
	if resp.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2 (capped)", resp.RowCount)
	}
}

func TestSQLExecutorQuerySyntaxError(t *testing.T) {
	exec := newSQLiteExecutor(t)

	resp := exec.Query(context.Background(), &wire.QueryRequest{
		RequestID: "req-3",
		SQLQuery:  "SELEKT garbage FROM nowhere",
		Timeout:   5,
	})

	if resp.Status != wire.StatusError {
		t.Fatalf("Status = %q, want error", resp.Status)
	}
	if resp.ErrorMessage == "" {
		t.Fatal("ErrorMessage = \"\", want a message describing the failure")
	}
}

func TestSQLExecutorPing(t *testing.T) {
	exec := newSQLiteExecutor(t)
	if err := exec.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() = %v, want nil", err)
	}
}

func TestNormalizeScalarHexEncodesBinary(t *testing.T) {
	got := normalizeScalar([]byte{0xde, 0xad, 0xbe, 0xef}, false)
	if got != "deadbeef" {
		t.Fatalf("normalizeScalar([]byte, false) = %v, want deadbeef", got)
	}
}

func TestNormalizeScalarFloatsDecimalColumns(t *testing.T) {
	got := normalizeScalar([]byte("1234.50"), true)
	f, ok := got.(float64)
	if !ok {
		t.Fatalf("normalizeScalar([]byte, true) = %v (%T), want float64", got, got)
	}
	if f != 1234.5 {
		t.Fatalf("normalizeScalar([]byte, true) = %v, want 1234.5", f)
	}
}

func TestNormalizeScalarFallsBackToHexOnUnparsableDecimal(t *testing.T) {
	got := normalizeScalar([]byte{0xde, 0xad, 0xbe, 0xef}, true)
	if got != "deadbeef" {
		t.Fatalf("normalizeScalar(garbage, true) = %v, want deadbeef fallback", got)
	}
}

func TestSQLExecutorQueryNormalizesDecimalColumn(t *testing.T) {
	exec := NewSQLExecutor(config.Database{Driver: "sqlite", Name: ":memory:"})
	t.Cleanup(func() { exec.Close() })

	db, err := exec.connection()
	if err != nil {
		t.Fatalf("connection(): %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE invoices (id INTEGER PRIMARY KEY, amount DECIMAL(10,2))`); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO invoices (id, amount) VALUES (1, 1234.50)`); err != nil {
		t.Fatalf("INSERT: %v", err)
	}

	resp := exec.Query(context.Background(), &wire.QueryRequest{
		RequestID: "req-decimal",
		SQLQuery:  "SELECT amount FROM invoices WHERE id = 1",
		Timeout:   5,
		MaxRows:   10,
	})

	if resp.Status != wire.StatusSuccess {
		t.Fatalf("Status = %q, want success (err=%q)", resp.Status, resp.ErrorMessage)
	}
	if _, ok := resp.Rows[0]["amount"].(float64); !ok {
		t.Fatalf("Rows[0][amount] = %v (%T), want float64", resp.Rows[0]["amount"], resp.Rows[0]["amount"])
	}
}

func TestDriverAndDSNUnsupportedDriver(t *testing.T) {
	if _, _, err := driverAndDSN(config.Database{Driver: "oracle"}); err == nil {
		t.Fatal("driverAndDSN() with an unsupported driver, want error")
	}
}
