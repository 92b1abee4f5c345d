// Package pendingaction implements a minimal confirmation-routing surface:
// an in-memory store keyed by action ID with the
// {pending, approved, rejected, executed, expired} state machine that
// confirmation routing relies on. This package gives the chatbot platform
// a concrete, narrow surface to call without implementing any of the NLU
// or confirmation-prompt logic itself — that stays strictly out of scope.
package pendingaction

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is one stage of a pending action's lifecycle.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateExecuted State = "executed"
	StateExpired  State = "expired"
)

// Action is one confirmation-gated operation awaiting an operator or
// end-user decision before the chatbot layer executes it. Viaduct does not
// interpret Payload — it is an opaque blob the caller round-trips.
type Action struct {
	ID          uuid.UUID
	DatabaseID  uuid.UUID
	Description string
	Payload     any
	State       State
	CreatedAt   time.Time
	ExpiresAt   time.Time
	DecidedAt   *time.Time
}

// ErrNotFound is returned when an action ID has no corresponding entry,
// either because it never existed or it was already reaped by the expirer.
var ErrNotFound = fmt.Errorf("pendingaction: action not found")

// ErrInvalidTransition is returned when a decision is attempted on an
// action that has already left the pending state.
var ErrInvalidTransition = fmt.Errorf("pendingaction: action is not pending")

// Store is an in-memory, process-local table of pending actions. Like
// Session state itself, nothing here survives a restart — an in-flight
// confirmation is expected to be re-issued by the chatbot layer rather
// than recovered.
type Store struct {
	mu      sync.Mutex
	actions map[uuid.UUID]*Action
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{actions: make(map[uuid.UUID]*Action)}
}

// Create registers a new pending action with the given TTL and returns it.
func (s *Store) Create(databaseID uuid.UUID, description string, payload any, ttl time.Duration) *Action {
	now := time.Now()
	a := &Action{
		ID:          uuid.New(),
		DatabaseID:  databaseID,
		Description: description,
		Payload:     payload,
		State:       StatePending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	s.mu.Lock()
	s.actions[a.ID] = a
	s.mu.Unlock()

	return a
}

// Get returns the action by ID.
func (s *Store) Get(id uuid.UUID) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// Decide transitions a pending action to approved or rejected. Only valid
// from StatePending — deciding an already-decided or expired action fails.
func (s *Store) Decide(id uuid.UUID, approve bool) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.State != StatePending {
		return nil, ErrInvalidTransition
	}

	now := time.Now()
	a.DecidedAt = &now
	if approve {
		a.State = StateApproved
	} else {
		a.State = StateRejected
	}
	return a, nil
}

// MarkExecuted transitions an approved action to executed, once the
// chatbot layer has actually carried it out.
func (s *Store) MarkExecuted(id uuid.UUID) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.State != StateApproved {
		return nil, ErrInvalidTransition
	}
	a.State = StateExecuted
	return a, nil
}

// expireOnce sweeps every still-pending action past its TTL into
// StateExpired, and drops terminal actions older than retention so the
// map does not grow without bound.
func (s *Store) expireOnce(retention time.Duration) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, a := range s.actions {
		if a.State == StatePending && now.After(a.ExpiresAt) {
			a.State = StateExpired
			continue
		}
		if a.State != StatePending && now.Sub(a.CreatedAt) > retention {
			delete(s.actions, id)
		}
	}
}
