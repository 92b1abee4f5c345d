package pendingaction

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore()
	dbID := uuid.Must(uuid.NewV7())

	action := store.Create(dbID, "delete stale rows", map[string]any{"table": "widgets"}, time.Minute)
	if action.State != StatePending {
		t.Fatalf("State = %q, want pending", action.State)
	}

	got, err := store.Get(action.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.DatabaseID != dbID {
		t.Fatalf("DatabaseID = %v, want %v", got.DatabaseID, dbID)
	}
}

func TestStoreGetMissingReturnsErrNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.Get(uuid.New())
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStoreDecideApprove(t *testing.T) {
	store := NewStore()
	action := store.Create(uuid.New(), "desc", nil, time.Minute)

	decided, err := store.Decide(action.ID, true)
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if decided.State != StateApproved {
		t.Fatalf("State = %q, want approved", decided.State)
	}
	if decided.DecidedAt == nil {
		t.Fatal("DecidedAt = nil, want set")
	}
}

func TestStoreDecideReject(t *testing.T) {
	store := NewStore()
	action := store.Create(uuid.New(), "desc", nil, time.Minute)

	decided, err := store.Decide(action.ID, false)
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if decided.State != StateRejected {
		t.Fatalf("State = %q, want rejected", decided.State)
	}
}

func TestStoreDecideTwiceFails(t *testing.T) {
	store := NewStore()
	action := store.Create(uuid.New(), "desc", nil, time.Minute)

	if _, err := store.Decide(action.ID, true); err != nil {
		t.Fatalf("first Decide() error: %v", err)
	}
	if _, err := store.Decide(action.ID, true); err != ErrInvalidTransition {
		t.Fatalf("second Decide() err = %v, want ErrInvalidTransition", err)
	}
}

func TestStoreMarkExecutedRequiresApproved(t *testing.T) {
	store := NewStore()
	action := store.Create(uuid.New(), "desc", nil, time.Minute)

	if _, err := store.MarkExecuted(action.ID); err != ErrInvalidTransition {
		t.Fatalf("MarkExecuted() on a pending action, err = %v, want ErrInvalidTransition", err)
	}

	if _, err := store.Decide(action.ID, true); err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	executed, err := store.MarkExecuted(action.ID)
	if err != nil {
		t.Fatalf("MarkExecuted() error: %v", err)
	}
	if executed.State != StateExecuted {
		t.Fatalf("State = %q, want executed", executed.State)
	}
}

func TestExpireOnceMarksPastTTLActionsExpired(t *testing.T) {
	store := NewStore()
	action := store.Create(uuid.New(), "desc", nil, -time.Second) // already expired

	store.expireOnce(time.Hour)

	got, err := store.Get(action.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != StateExpired {
		t.Fatalf("State = %q, want expired", got.State)
	}
}

func TestExpireOnceDropsOldTerminalActions(t *testing.T) {
	store := NewStore()
	action := store.Create(uuid.New(), "desc", nil, time.Minute)
	if _, err := store.Decide(action.ID, true); err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	// Force it to look old enough to be past retention.
	store.mu.Lock()
	store.actions[action.ID].CreatedAt = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	store.expireOnce(time.Hour)

	if _, err := store.Get(action.ID); err != ErrNotFound {
		t.Fatalf("Get() after retention sweep, err = %v, want ErrNotFound", err)
	}
}
