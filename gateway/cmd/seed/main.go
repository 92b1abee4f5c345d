// Package main implements a one-shot seed command that creates an admin
// console operator account directly in the Gateway database. It lives
// inside the gateway module so it can access gateway/internal/* packages.
//
// Usage:
//
//	go run ./gateway/cmd/seed \
//	  --email admin@example.com \
//	  --password secret \
//	  --name "Admin User"
//
// Environment variables:
//
//	VIADUCT_DB_DSN      SQLite file path (default: ./viaduct.db); the seed command
//	                    always opens SQLite and does not accept a Postgres DSN
//	VIADUCT_SECRET_KEY  Master encryption key — must match the value used by the Gateway
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/viaduct-io/viaduct/gateway/internal/auth"
	"github.com/viaduct-io/viaduct/gateway/internal/db"
	"github.com/viaduct-io/viaduct/gateway/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	email := flag.String("email", "", "Operator email (required)")
	password := flag.String("password", "", "Plain-text password (required)")
	name := flag.String("name", "Admin User", "Display name")
	flag.Parse()

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if *password == "" {
		return fmt.Errorf("--password is required")
	}

	dsn := envOrDefault("VIADUCT_DB_DSN", "./viaduct.db")

	secretKey := os.Getenv("VIADUCT_SECRET_KEY")
	if secretKey == "" {
		return fmt.Errorf(
			"VIADUCT_SECRET_KEY is not set\n" +
				"  Set it to the same value used by the gateway, otherwise the\n" +
				"  encrypted password will be unreadable at login time.",
		)
	}

	// InitEncryption must be called before any DB operation so that
	// EncryptedString fields are encoded correctly on write.
	// The key is padded or truncated to 32 bytes exactly as the Gateway does.
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	logger, _ := zap.NewDevelopment()

	database, err := db.New(db.Config{
		Driver:   "sqlite",
		DSN:      dsn,
		Logger:   logger,
		LogLevel: gormlogger.Silent, // suppress GORM query logs in seed output
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	hashed, err := auth.HashPassword(*password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	userRepo := repository.NewAdminUserRepository(database)

	user := &db.AdminUser{
		Email:       *email,
		DisplayName: *name,
		Password:    db.EncryptedString(hashed),
		IsActive:    true,
	}

	if err := userRepo.Create(context.Background(), user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("an operator with email %q already exists", *email)
		}
		return fmt.Errorf("create admin user: %w", err)
	}

	fmt.Printf("operator created\n")
	fmt.Printf("  ID:    %s\n", user.ID)
	fmt.Printf("  Email: %s\n", user.Email)
	fmt.Printf("  Name:  %s\n", user.DisplayName)

	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
