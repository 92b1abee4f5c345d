package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/viaduct-io/viaduct/gateway/internal/auth"
	"github.com/viaduct-io/viaduct/gateway/internal/db"
)

func newTestAdminHandler(t *testing.T, repo *fakeDatabaseRepository) *AdminHandler {
	t.Helper()
	jwtMgr, err := auth.NewJWTManagerGenerated("viaduct-gateway-test")
	if err != nil {
		t.Fatalf("NewJWTManagerGenerated() error: %v", err)
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	authenticator := auth.NewAuthenticator(key, &key.PublicKey, "viaduct-gateway-test")
	provider := auth.NewLocalAuthProvider(nil, nil, jwtMgr)
	return NewAdminHandler(provider, authenticator, repo)
}

func newTestAdminMux(h *AdminHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1/admin/databases", func(r chi.Router) {
		r.Get("/", h.ListDatabases)
		r.Post("/", h.CreateDatabase)
		r.Get("/{database_id}", h.GetDatabase)
		r.Patch("/{database_id}", h.UpdateDatabase)
		r.Delete("/{database_id}", h.DeleteDatabase)
	})
	return r
}

func TestCreateDatabaseIssuesGatewayToken(t *testing.T) {
	repo := newFakeDatabaseRepository()
	mux := newTestAdminMux(newTestAdminHandler(t, repo))

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/databases/", strings.NewReader(`{"tenant_id":"tenant-1","name":"widgets-db"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	token, ok := body["data"]["gateway_token"].(string)
	if !ok || token == "" {
		t.Fatalf("gateway_token missing or empty in response: %v", body)
	}
}

func TestCreateDatabaseDefaultsToAutoMode(t *testing.T) {
	repo := newFakeDatabaseRepository()
	mux := newTestAdminMux(newTestAdminHandler(t, repo))

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/databases/", strings.NewReader(`{"name":"no-mode-db"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(repo.records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(repo.records))
	}
	for _, rec := range repo.records {
		if rec.Mode != db.RoutingModeAuto {
			t.Fatalf("Mode = %q, want auto", rec.Mode)
		}
	}
}

func TestCreateDatabaseMissingNameReturns400(t *testing.T) {
	repo := newFakeDatabaseRepository()
	mux := newTestAdminMux(newTestAdminHandler(t, repo))

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/databases/", strings.NewReader(`{"tenant_id":"t"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetDatabaseNotFound(t *testing.T) {
	repo := newFakeDatabaseRepository()
	mux := newTestAdminMux(newTestAdminHandler(t, repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/databases/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUpdateDatabasePartialFields(t *testing.T) {
	repo := newFakeDatabaseRepository()
	dbID := uuid.Must(uuid.NewV7())
	repo.records[dbID] = &db.DatabaseRecord{DatabaseID: dbID, Name: "orig", Mode: db.RoutingModeAuto, Enabled: true}
	mux := newTestAdminMux(newTestAdminHandler(t, repo))

	req := httptest.NewRequest(http.MethodPatch, "/v1/admin/databases/"+dbID.String(), strings.NewReader(`{"enabled":false}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if repo.records[dbID].Enabled {
		t.Fatal("Enabled = true after PATCH enabled:false")
	}
	if repo.records[dbID].Name != "orig" {
		t.Fatalf("Name = %q, want unchanged \"orig\"", repo.records[dbID].Name)
	}
}

func TestDeleteDatabase(t *testing.T) {
	repo := newFakeDatabaseRepository()
	dbID := uuid.Must(uuid.NewV7())
	repo.records[dbID] = &db.DatabaseRecord{DatabaseID: dbID, Name: "to-delete"}
	mux := newTestAdminMux(newTestAdminHandler(t, repo))

	req := httptest.NewRequest(http.MethodDelete, "/v1/admin/databases/"+dbID.String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, ok := repo.records[dbID]; ok {
		t.Fatal("record still present after DeleteDatabase")
	}
}

func TestListDatabases(t *testing.T) {
	repo := newFakeDatabaseRepository()
	for i := 0; i < 2; i++ {
		id := uuid.Must(uuid.NewV7())
		repo.records[id] = &db.DatabaseRecord{DatabaseID: id, Name: "db"}
	}
	mux := newTestAdminMux(newTestAdminHandler(t, repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/databases/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
