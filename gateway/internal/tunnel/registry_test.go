package tunnel

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newRegistrySession(t *testing.T, databaseID uuid.UUID) (*Session, *fakeSocket) {
	t.Helper()
	sock := newFakeSocket()
	session := NewSession(sock, databaseID, "tenant-1", "db-name", "1.0.0", "host", "linux", nil, zap.NewNop())
	go session.RunSend()
	go session.RunReceive()
	return session, sock
}

func TestRegistryInstallAndLookup(t *testing.T) {
	reg := NewRegistry(nil, zap.NewNop())
	dbID := uuid.Must(uuid.NewV7())
	session, _ := newRegistrySession(t, dbID)
	t.Cleanup(func() { session.Terminate("test cleanup") })

	reg.Install(session)

	got, ok := reg.Lookup(dbID, time.Minute)
	if !ok {
		t.Fatal("Lookup() ok = false, want true")
	}
	if got.ID() != session.ID() {
		t.Fatalf("Lookup() returned session %s, want %s", got.ID(), session.ID())
	}
}

func TestRegistryLookupMissingDatabase(t *testing.T) {
	reg := NewRegistry(nil, zap.NewNop())
	_, ok := reg.Lookup(uuid.Must(uuid.NewV7()), time.Minute)
	if ok {
		t.Fatal("Lookup() for an unregistered database_id, want ok = false")
	}
}

func TestRegistryLookupStaleSessionIsHidden(t *testing.T) {
	reg := NewRegistry(nil, zap.NewNop())
	dbID := uuid.Must(uuid.NewV7())
	session, _ := newRegistrySession(t, dbID)
	t.Cleanup(func() { session.Terminate("test cleanup") })
	reg.Install(session)

	// tStale=0 means "any elapsed time is stale", exercising the same path
	// the Liveness Monitor drives on its sweep interval.
	_, ok := reg.Lookup(dbID, 0)
	if ok {
		t.Fatal("Lookup() with tStale=0 on an idle session, want ok = false")
	}
}

func TestRegistryInstallReplacesAndTerminatesOldSession(t *testing.T) {
	reg := NewRegistry(nil, zap.NewNop())
	dbID := uuid.Must(uuid.NewV7())

	first, _ := newRegistrySession(t, dbID)
	t.Cleanup(func() { first.Terminate("test cleanup") })
	reg.Install(first)

	second, _ := newRegistrySession(t, dbID)
	t.Cleanup(func() { second.Terminate("test cleanup") })
	reg.Install(second)

	deadline := time.After(time.Second)
	for first.Active() {
		select {
		case <-deadline:
			t.Fatal("old session was never terminated after being superseded")
		case <-time.After(5 * time.Millisecond):
		}
	}

	got, ok := reg.Lookup(dbID, time.Minute)
	if !ok || got.ID() != second.ID() {
		t.Fatalf("Lookup() after replace = (%v, %v), want the new session", got, ok)
	}
	if reg.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (old session replaced in place)", reg.Count())
	}
}

func TestRegistryRemoveIsNoOpForSupersededSession(t *testing.T) {
	reg := NewRegistry(nil, zap.NewNop())
	dbID := uuid.Must(uuid.NewV7())

	first, _ := newRegistrySession(t, dbID)
	t.Cleanup(func() { first.Terminate("test cleanup") })
	reg.Install(first)

	second, _ := newRegistrySession(t, dbID)
	t.Cleanup(func() { second.Terminate("test cleanup") })
	reg.Install(second)

	// An out-of-order Remove for the stale first session must not evict the
	// live replacement.
	reg.Remove(first)

	got, ok := reg.Lookup(dbID, time.Minute)
	if !ok || got.ID() != second.ID() {
		t.Fatal("Remove() of a superseded session evicted the live replacement")
	}
}

func TestRegistrySnapshotAndCount(t *testing.T) {
	reg := NewRegistry(nil, zap.NewNop())

	var sessions []*Session
	for i := 0; i < 3; i++ {
		s, _ := newRegistrySession(t, uuid.Must(uuid.NewV7()))
		sessions = append(sessions, s)
		reg.Install(s)
	}
	t.Cleanup(func() {
		for _, s := range sessions {
			s.Terminate("test cleanup")
		}
	})

	if reg.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", reg.Count())
	}
	if len(reg.Snapshot()) != 3 {
		t.Fatalf("len(Snapshot()) = %d, want 3", len(reg.Snapshot()))
	}
}
