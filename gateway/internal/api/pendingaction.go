package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/viaduct-io/viaduct/gateway/internal/pendingaction"
)

// defaultActionTTL bounds how long a pending action waits for a decision
// before the Expirer reaps it.
const defaultActionTTL = 15 * time.Minute

// PendingActionHandler exposes the confirmation-routing surface that the
// chatbot platform relies on. Mounted under RequireAPIKey alongside the
// rest of the synchronous API — Viaduct implements none of the
// confirmation-prompt or NLU logic that decides *when* to create an
// action, only the state machine itself.
type PendingActionHandler struct {
	store *pendingaction.Store
}

// NewPendingActionHandler constructs a PendingActionHandler.
func NewPendingActionHandler(store *pendingaction.Store) *PendingActionHandler {
	return &PendingActionHandler{store: store}
}

type createActionRequest struct {
	DatabaseID  uuid.UUID `json:"database_id"`
	Description string    `json:"description"`
	Payload     any       `json:"payload,omitempty"`
}

// Create handles POST /v1/actions.
func (h *PendingActionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Description == "" {
		ErrBadRequest(w, "description is required")
		return
	}

	action := h.store.Create(req.DatabaseID, req.Description, req.Payload, defaultActionTTL)
	Created(w, action)
}

// Get handles GET /v1/actions/{action_id}.
func (h *PendingActionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "action_id"))
	if err != nil {
		ErrBadRequest(w, "invalid action_id")
		return
	}
	action, err := h.store.Get(id)
	if err != nil {
		ErrNotFound(w)
		return
	}
	Ok(w, action)
}

type decideActionRequest struct {
	Approve bool `json:"approve"`
}

// Decide handles POST /v1/actions/{action_id}/decide.
func (h *PendingActionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "action_id"))
	if err != nil {
		ErrBadRequest(w, "invalid action_id")
		return
	}
	var req decideActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	action, err := h.store.Decide(id, req.Approve)
	if err != nil {
		if errors.Is(err, pendingaction.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		ErrConflict(w, "action is not pending")
		return
	}
	Ok(w, action)
}

// MarkExecuted handles POST /v1/actions/{action_id}/executed, called by the
// chatbot layer once it has actually carried out an approved action.
func (h *PendingActionHandler) MarkExecuted(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "action_id"))
	if err != nil {
		ErrBadRequest(w, "invalid action_id")
		return
	}
	action, err := h.store.MarkExecuted(id)
	if err != nil {
		if errors.Is(err, pendingaction.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		ErrConflict(w, "action is not approved")
		return
	}
	Ok(w, action)
}
