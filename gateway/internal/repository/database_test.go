package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
)

func TestDatabaseRepositoryCreateAndGetByID(t *testing.T) {
	repo := NewDatabaseRepository(newTestDB(t))
	dbID := uuid.Must(uuid.NewV7())

	rec := &db.DatabaseRecord{
		DatabaseID: dbID,
		TenantID:   "tenant-1",
		Name:       "widgets-db",
		Mode:       db.RoutingModeAuto,
		Enabled:    true,
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.GetByID(context.Background(), dbID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.Name != "widgets-db" || got.Mode != db.RoutingModeAuto {
		t.Fatalf("got = %+v, unexpected values", got)
	}
}

func TestDatabaseRepositoryGetByIDMissing(t *testing.T) {
	repo := NewDatabaseRepository(newTestDB(t))
	_, err := repo.GetByID(context.Background(), uuid.Must(uuid.NewV7()))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDatabaseRepositoryUpdate(t *testing.T) {
	repo := NewDatabaseRepository(newTestDB(t))
	dbID := uuid.Must(uuid.NewV7())
	rec := &db.DatabaseRecord{DatabaseID: dbID, TenantID: "tenant-1", Name: "orig", Mode: db.RoutingModeAuto, Enabled: true}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	rec.Name = "renamed"
	rec.Enabled = false
	if err := repo.Update(context.Background(), rec); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := repo.GetByID(context.Background(), dbID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.Name != "renamed" || got.Enabled {
		t.Fatalf("got = %+v, want renamed/disabled", got)
	}
}

func TestDatabaseRepositoryUpdateMissingReturnsErrNotFound(t *testing.T) {
	repo := NewDatabaseRepository(newTestDB(t))
	rec := &db.DatabaseRecord{DatabaseID: uuid.Must(uuid.NewV7()), TenantID: "t", Name: "ghost", Mode: db.RoutingModeAuto}
	if err := repo.Update(context.Background(), rec); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDatabaseRepositoryDelete(t *testing.T) {
	repo := NewDatabaseRepository(newTestDB(t))
	dbID := uuid.Must(uuid.NewV7())
	rec := &db.DatabaseRecord{DatabaseID: dbID, TenantID: "t", Name: "to-delete", Mode: db.RoutingModeAuto}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := repo.Delete(context.Background(), dbID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	_, err := repo.GetByID(context.Background(), dbID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID() after Delete, err = %v, want ErrNotFound", err)
	}
}

func TestDatabaseRepositoryDeleteMissingReturnsErrNotFound(t *testing.T) {
	repo := NewDatabaseRepository(newTestDB(t))
	if err := repo.Delete(context.Background(), uuid.Must(uuid.NewV7())); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDatabaseRepositoryList(t *testing.T) {
	repo := NewDatabaseRepository(newTestDB(t))
	for i := 0; i < 3; i++ {
		rec := &db.DatabaseRecord{DatabaseID: uuid.Must(uuid.NewV7()), TenantID: "t", Name: "db", Mode: db.RoutingModeAuto}
		if err := repo.Create(context.Background(), rec); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	recs, total, err := repo.List(context.Background(), ListOptions{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2 (limited)", len(recs))
	}
}
