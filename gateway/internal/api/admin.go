package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/viaduct-io/viaduct/gateway/internal/auth"
	"github.com/viaduct-io/viaduct/gateway/internal/db"
	"github.com/viaduct-io/viaduct/gateway/internal/repository"
)

// AdminHandler serves the admin console: operator login and CRUD over the
// routing config records that the Query Router reads. It is mounted under
// AuthenticateAdmin (except Login, RefreshToken and Logout), never under
// RequireAPIKey — the
// caller here is a human operator, not the chatbot platform.
type AdminHandler struct {
	authProvider  *auth.LocalAuthProvider
	authenticator *auth.Authenticator
	databases     repository.DatabaseRepository
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(authProvider *auth.LocalAuthProvider, authenticator *auth.Authenticator, databases repository.DatabaseRepository) *AdminHandler {
	return &AdminHandler{authProvider: authProvider, authenticator: authenticator, databases: databases}
}

// Login handles POST /v1/admin/login.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.authProvider.Login(r.Context(), req)
	if err != nil {
		ErrUnauthorized(w)
		return
	}
	Ok(w, pair)
}

// RefreshToken handles POST /v1/admin/refresh.
func (h *AdminHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.authProvider.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		ErrUnauthorized(w)
		return
	}
	Ok(w, pair)
}

// Logout handles POST /v1/admin/logout.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.authProvider.Logout(r.Context(), req.RefreshToken); err != nil {
		ErrInternal(w)
		return
	}
	NoContent(w)
}

type createDatabaseRequest struct {
	TenantID     string        `json:"tenant_id"`
	Name         string        `json:"name"`
	Mode         db.RoutingMode `json:"mode"`
	DirectDSN    string        `json:"direct_dsn,omitempty"`
	DirectDriver string        `json:"direct_driver,omitempty"`
}

// CreateDatabase handles POST /v1/admin/databases. The response includes a
// freshly minted, typically non-expiring gateway_token — this is the value
// an operator copies into the Agent's configuration file.
func (h *AdminHandler) CreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req createDatabaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}
	if req.Mode == "" {
		req.Mode = db.RoutingModeAuto
	}

	rec := &db.DatabaseRecord{
		DatabaseID:   uuid.New(),
		TenantID:     req.TenantID,
		Name:         req.Name,
		Mode:         req.Mode,
		DirectDSN:    db.EncryptedString(req.DirectDSN),
		DirectDriver: req.DirectDriver,
		Enabled:      true,
	}
	if err := h.databases.Create(r.Context(), rec); err != nil {
		ErrInternal(w)
		return
	}

	token, err := h.authenticator.IssueGatewayToken(rec.DatabaseID.String(), rec.TenantID, rec.Name, 0)
	if err != nil {
		ErrInternal(w)
		return
	}

	Created(w, map[string]any{
		"database":      rec,
		"gateway_token": token,
	})
}

// ListDatabases handles GET /v1/admin/databases.
func (h *AdminHandler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	recs, total, err := h.databases.List(r.Context(), repository.ListOptions{Limit: 100})
	if err != nil {
		ErrInternal(w)
		return
	}
	Ok(w, map[string]any{"databases": recs, "total": total})
}

// GetDatabase handles GET /v1/admin/databases/{database_id}.
func (h *AdminHandler) GetDatabase(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "database_id"))
	if err != nil {
		ErrBadRequest(w, "invalid database_id")
		return
	}
	rec, err := h.databases.GetByID(r.Context(), id)
	if err != nil {
		ErrNotFound(w)
		return
	}
	Ok(w, rec)
}

type updateDatabaseRequest struct {
	Name         *string        `json:"name,omitempty"`
	Mode         *db.RoutingMode `json:"mode,omitempty"`
	DirectDSN    *string        `json:"direct_dsn,omitempty"`
	DirectDriver *string        `json:"direct_driver,omitempty"`
	Enabled      *bool          `json:"enabled,omitempty"`
}

// UpdateDatabase handles PATCH /v1/admin/databases/{database_id}.
func (h *AdminHandler) UpdateDatabase(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "database_id"))
	if err != nil {
		ErrBadRequest(w, "invalid database_id")
		return
	}

	rec, err := h.databases.GetByID(r.Context(), id)
	if err != nil {
		ErrNotFound(w)
		return
	}

	var req updateDatabaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		rec.Name = *req.Name
	}
	if req.Mode != nil {
		rec.Mode = *req.Mode
	}
	if req.DirectDSN != nil {
		rec.DirectDSN = db.EncryptedString(*req.DirectDSN)
	}
	if req.DirectDriver != nil {
		rec.DirectDriver = *req.DirectDriver
	}
	if req.Enabled != nil {
		rec.Enabled = *req.Enabled
	}
	rec.UpdatedAt = time.Now()

	if err := h.databases.Update(r.Context(), rec); err != nil {
		ErrInternal(w)
		return
	}
	Ok(w, rec)
}

// DeleteDatabase handles DELETE /v1/admin/databases/{database_id}.
func (h *AdminHandler) DeleteDatabase(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "database_id"))
	if err != nil {
		ErrBadRequest(w, "invalid database_id")
		return
	}
	if err := h.databases.Delete(r.Context(), id); err != nil {
		ErrNotFound(w)
		return
	}
	NoContent(w)
}
