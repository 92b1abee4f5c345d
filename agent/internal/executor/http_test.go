package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/viaduct-io/viaduct/agent/internal/config"
	"github.com/viaduct-io/viaduct/shared/wire"
)

func TestHTTPExecutorNotConfigured(t *testing.T) {
	exec := NewHTTPExecutor(config.LocalHTTP{})
	resp := exec.Call(context.Background(), &wire.APIRequest{RequestID: "req-1", Method: "GET", Endpoint: "/status"})
	if resp.ErrorCode != "NOT_CONFIGURED" {
		t.Fatalf("ErrorCode = %q, want NOT_CONFIGURED", resp.ErrorCode)
	}
	if resp.Status != wire.StatusError {
		t.Fatalf("Status = %q, want error", resp.Status)
	}
}

func TestHTTPExecutorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("limit") != "5" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(config.LocalHTTP{BaseURL: srv.URL, Bearer: "secret-token"})
	resp := exec.Call(context.Background(), &wire.APIRequest{
		RequestID:   "req-2",
		Method:      "GET",
		Endpoint:    "/widgets",
		QueryParams: map[string]string{"limit": "5"},
	})

	if resp.Status != wire.StatusSuccess {
		t.Fatalf("Status = %q, want success (code=%d msg=%q)", resp.Status, resp.StatusCode, resp.ErrorMessage)
	}
	body, ok := resp.Body.(map[string]any)
	if !ok {
		t.Fatalf("Body = %T, want map[string]any", resp.Body)
	}
	if body["ok"] != true {
		t.Fatalf("Body[ok] = %v, want true", body["ok"])
	}
}

func TestHTTPExecutorNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(config.LocalHTTP{BaseURL: srv.URL})
	resp := exec.Call(context.Background(), &wire.APIRequest{RequestID: "req-3", Method: "POST", Endpoint: "/explode"})

	if resp.Status != wire.StatusError {
		t.Fatalf("Status = %q, want error", resp.Status)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("StatusCode = %d, want 500", resp.StatusCode)
	}
}

func TestHTTPExecutorConnectionError(t *testing.T) {
	exec := NewHTTPExecutor(config.LocalHTTP{BaseURL: "http://127.0.0.1:1"})
	resp := exec.Call(context.Background(), &wire.APIRequest{RequestID: "req-4", Method: "GET", Endpoint: "/unreachable"})

	if resp.Status != wire.StatusConnectionError {
		t.Fatalf("Status = %q, want connection_error", resp.Status)
	}
}

func TestHTTPExecutorAPIKeyCredential(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(config.LocalHTTP{BaseURL: srv.URL, APIKey: "api-key-value"})
	exec.Call(context.Background(), &wire.APIRequest{RequestID: "req-5", Method: "GET", Endpoint: "/ping"})

	if gotKey != "api-key-value" {
		t.Fatalf("X-API-Key header = %q, want api-key-value", gotKey)
	}
}
