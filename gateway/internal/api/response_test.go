package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestOkWrapsPayloadInDataKey(t *testing.T) {
	rec := httptest.NewRecorder()
	Ok(rec, map[string]string{"name": "widgets-db"})

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v, want a \"data\" object", body)
	}
	if data["name"] != "widgets-db" {
		t.Fatalf("data[name] = %v, want widgets-db", data["name"])
	}
}

func TestCreatedUses201(t *testing.T) {
	rec := httptest.NewRecorder()
	Created(rec, map[string]string{"id": "abc"})
	if rec.Code != 201 {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
}

func TestNoContentWritesNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)
	if rec.Code != 204 {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("body length = %d, want 0", rec.Body.Len())
	}
}

func TestErrNotFoundShape(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrNotFound(rec)

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var body map[string]errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["error"].Code != "not_found" {
		t.Fatalf("error.code = %q, want not_found", body["error"].Code)
	}
}

func TestErrConflictCarriesMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrConflict(rec, "database_id already exists")

	var body map[string]errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["error"].Message != "database_id already exists" {
		t.Fatalf("error.message = %q, want the conflict detail", body["error"].Message)
	}
	if rec.Code != 409 {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestErrInternalHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrInternal(rec)

	var body map[string]errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["error"].Message != "an internal error occurred" {
		t.Fatalf("error.message = %q, want the generic internal error message", body["error"].Message)
	}
}
