package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
)

func TestAdminUserRepositoryCreateAndGet(t *testing.T) {
	repo := NewAdminUserRepository(newTestDB(t))

	user := &db.AdminUser{
		Email:       "operator@example.com",
		Password:    db.EncryptedString("hashed-password"),
		DisplayName: "Operator",
		IsActive:    true,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if user.ID == (uuid.UUID{}) {
		t.Fatal("Create() did not populate the generated ID")
	}

	byID, err := repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if byID.Email != "operator@example.com" {
		t.Fatalf("Email = %q, want operator@example.com", byID.Email)
	}

	byEmail, err := repo.GetByEmail(context.Background(), "operator@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Fatalf("GetByEmail() ID = %v, want %v", byEmail.ID, user.ID)
	}
}

func TestAdminUserRepositoryGetByEmailMissing(t *testing.T) {
	repo := NewAdminUserRepository(newTestDB(t))
	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAdminUserRepositoryUpdate(t *testing.T) {
	repo := NewAdminUserRepository(newTestDB(t))
	user := &db.AdminUser{Email: "a@example.com", Password: db.EncryptedString("x"), DisplayName: "A", IsActive: true}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	user.DisplayName = "Renamed"
	if err := repo.Update(context.Background(), user); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.DisplayName != "Renamed" {
		t.Fatalf("DisplayName = %q, want Renamed", got.DisplayName)
	}
}

func TestRefreshTokenRepositoryCreateAndGetByHash(t *testing.T) {
	database := newTestDB(t)
	admins := NewAdminUserRepository(database)
	tokens := NewRefreshTokenRepository(database)

	user := &db.AdminUser{Email: "b@example.com", Password: db.EncryptedString("x"), DisplayName: "B", IsActive: true}
	if err := admins.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() admin error: %v", err)
	}

	tok := &db.RefreshToken{
		AdminUserID: user.ID,
		TokenHash:   "hash-abc",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if err := tokens.Create(context.Background(), tok); err != nil {
		t.Fatalf("Create() token error: %v", err)
	}

	got, err := tokens.GetByHash(context.Background(), "hash-abc")
	if err != nil {
		t.Fatalf("GetByHash() error: %v", err)
	}
	if got.AdminUserID != user.ID {
		t.Fatalf("AdminUserID = %v, want %v", got.AdminUserID, user.ID)
	}
}

func TestRefreshTokenRepositoryDeleteByHash(t *testing.T) {
	database := newTestDB(t)
	admins := NewAdminUserRepository(database)
	tokens := NewRefreshTokenRepository(database)

	user := &db.AdminUser{Email: "c@example.com", Password: db.EncryptedString("x"), DisplayName: "C", IsActive: true}
	if err := admins.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() admin error: %v", err)
	}
	tok := &db.RefreshToken{AdminUserID: user.ID, TokenHash: "hash-def", ExpiresAt: time.Now().Add(time.Hour)}
	if err := tokens.Create(context.Background(), tok); err != nil {
		t.Fatalf("Create() token error: %v", err)
	}

	if err := tokens.DeleteByHash(context.Background(), "hash-def"); err != nil {
		t.Fatalf("DeleteByHash() error: %v", err)
	}

	_, err := tokens.GetByHash(context.Background(), "hash-def")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByHash() after delete, err = %v, want ErrNotFound", err)
	}
}
