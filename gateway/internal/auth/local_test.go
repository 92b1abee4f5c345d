package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
	"github.com/viaduct-io/viaduct/gateway/internal/repository"
)

// fakeAdminUserRepository is a minimal in-memory repository.AdminUserRepository.
type fakeAdminUserRepository struct {
	byID map[uuid.UUID]*db.AdminUser
}

func newFakeAdminUserRepository() *fakeAdminUserRepository {
	return &fakeAdminUserRepository{byID: make(map[uuid.UUID]*db.AdminUser)}
}

func (f *fakeAdminUserRepository) Create(_ context.Context, user *db.AdminUser) error {
	if user.ID == (uuid.UUID{}) {
		user.ID = uuid.New()
	}
	f.byID[user.ID] = user
	return nil
}

func (f *fakeAdminUserRepository) GetByID(_ context.Context, id uuid.UUID) (*db.AdminUser, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeAdminUserRepository) GetByEmail(_ context.Context, email string) (*db.AdminUser, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAdminUserRepository) Update(_ context.Context, user *db.AdminUser) error {
	if _, ok := f.byID[user.ID]; !ok {
		return repository.ErrNotFound
	}
	f.byID[user.ID] = user
	return nil
}

// fakeRefreshTokenRepository is a minimal in-memory repository.RefreshTokenRepository.
type fakeRefreshTokenRepository struct {
	byHash map[string]*db.RefreshToken
}

func newFakeRefreshTokenRepository() *fakeRefreshTokenRepository {
	return &fakeRefreshTokenRepository{byHash: make(map[string]*db.RefreshToken)}
}

func (f *fakeRefreshTokenRepository) Create(_ context.Context, token *db.RefreshToken) error {
	f.byHash[token.TokenHash] = token
	return nil
}

func (f *fakeRefreshTokenRepository) GetByHash(_ context.Context, hash string) (*db.RefreshToken, error) {
	tok, ok := f.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return tok, nil
}

func (f *fakeRefreshTokenRepository) DeleteByHash(_ context.Context, hash string) error {
	delete(f.byHash, hash)
	return nil
}

func (f *fakeRefreshTokenRepository) DeleteExpired(_ context.Context) error {
	for hash, tok := range f.byHash {
		if time.Now().After(tok.ExpiresAt) {
			delete(f.byHash, hash)
		}
	}
	return nil
}

func newTestLocalAuthProvider(t *testing.T) (*LocalAuthProvider, *fakeAdminUserRepository, *fakeRefreshTokenRepository) {
	t.Helper()
	jwtMgr, err := NewJWTManagerGenerated("viaduct-gateway-test")
	if err != nil {
		t.Fatalf("NewJWTManagerGenerated() error: %v", err)
	}
	users := newFakeAdminUserRepository()
	tokens := newFakeRefreshTokenRepository()
	return NewLocalAuthProvider(users, tokens, jwtMgr), users, tokens
}

func TestLoginSuccess(t *testing.T) {
	provider, users, _ := newTestLocalAuthProvider(t)

	hashed, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	user := &db.AdminUser{Email: "op@example.com", Password: db.EncryptedString(hashed), DisplayName: "Op", IsActive: true}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	pair, err := provider.Login(context.Background(), LoginRequest{Email: "op@example.com", Password: "correct horse battery staple"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("Login() returned an empty token pair")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	provider, users, _ := newTestLocalAuthProvider(t)

	hashed, err := HashPassword("correct-password")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	user := &db.AdminUser{Email: "op@example.com", Password: db.EncryptedString(hashed), DisplayName: "Op", IsActive: true}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	_, err = provider.Login(context.Background(), LoginRequest{Email: "op@example.com", Password: "wrong-password"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownEmailReturnsInvalidCredentials(t *testing.T) {
	provider, _, _ := newTestLocalAuthProvider(t)

	_, err := provider.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "whatever"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials (not ErrUserNotFound, to avoid user enumeration)", err)
	}
}

func TestLoginDisabledUser(t *testing.T) {
	provider, users, _ := newTestLocalAuthProvider(t)

	hashed, err := HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	user := &db.AdminUser{Email: "disabled@example.com", Password: db.EncryptedString(hashed), DisplayName: "D", IsActive: false}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	_, err = provider.Login(context.Background(), LoginRequest{Email: "disabled@example.com", Password: "pw"})
	if !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("err = %v, want ErrUserDisabled", err)
	}
}

func TestRefreshTokenRotatesAndIssuesNewPair(t *testing.T) {
	provider, users, _ := newTestLocalAuthProvider(t)

	hashed, err := HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	user := &db.AdminUser{Email: "op@example.com", Password: db.EncryptedString(hashed), DisplayName: "Op", IsActive: true}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	first, err := provider.Login(context.Background(), LoginRequest{Email: "op@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	second, err := provider.RefreshToken(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken() error: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("RefreshToken() returned the same refresh token, want rotation")
	}

	// The old token must no longer work after rotation.
	if _, err := provider.RefreshToken(context.Background(), first.RefreshToken); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("RefreshToken() with the rotated-out token, err = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestRefreshTokenUnknownReturnsNotFound(t *testing.T) {
	provider, _, _ := newTestLocalAuthProvider(t)
	_, err := provider.RefreshToken(context.Background(), "never-issued")
	if !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("err = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestLogoutIsNoOpForUnknownToken(t *testing.T) {
	provider, _, _ := newTestLocalAuthProvider(t)
	if err := provider.Logout(context.Background(), "never-issued"); err != nil {
		t.Fatalf("Logout() error: %v, want nil for an unknown token", err)
	}
}

func TestHashPasswordThenVerifyPassword(t *testing.T) {
	hashed, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if !verifyPassword("s3cret!", hashed) {
		t.Fatal("verifyPassword() = false for the correct password")
	}
	if verifyPassword("wrong", hashed) {
		t.Fatal("verifyPassword() = true for an incorrect password")
	}
}
