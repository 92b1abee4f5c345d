package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"testing"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

func TestEnvOrDefaultUsesEnvWhenSet(t *testing.T) {
	t.Setenv("VIADUCT_TEST_KEY", "from-env")
	if got := envOrDefault("VIADUCT_TEST_KEY", "fallback"); got != "from-env" {
		t.Fatalf("envOrDefault() = %q, want %q", got, "from-env")
	}
}

func TestEnvOrDefaultFallsBackWhenUnset(t *testing.T) {
	os.Unsetenv("VIADUCT_TEST_KEY_UNSET")
	if got := envOrDefault("VIADUCT_TEST_KEY_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("envOrDefault() = %q, want %q", got, "fallback")
	}
}

func TestEnvDurationOrDefaultParsesValidDuration(t *testing.T) {
	t.Setenv("VIADUCT_TEST_DURATION", "5s")
	if got := envDurationOrDefault("VIADUCT_TEST_DURATION", time.Minute); got != 5*time.Second {
		t.Fatalf("envDurationOrDefault() = %v, want 5s", got)
	}
}

func TestEnvDurationOrDefaultFallsBackOnGarbage(t *testing.T) {
	t.Setenv("VIADUCT_TEST_DURATION_BAD", "not-a-duration")
	if got := envDurationOrDefault("VIADUCT_TEST_DURATION_BAD", time.Minute); got != time.Minute {
		t.Fatalf("envDurationOrDefault() = %v, want 1m fallback", got)
	}
}

func TestEnvDurationOrDefaultFallsBackWhenUnset(t *testing.T) {
	os.Unsetenv("VIADUCT_TEST_DURATION_UNSET")
	if got := envDurationOrDefault("VIADUCT_TEST_DURATION_UNSET", time.Minute); got != time.Minute {
		t.Fatalf("envDurationOrDefault() = %v, want 1m fallback", got)
	}
}

func TestGormLogLevelMapping(t *testing.T) {
	cases := map[string]gormlogger.LogLevel{
		"debug":   gormlogger.Info,
		"info":    gormlogger.Warn,
		"warn":    gormlogger.Error,
		"error":   gormlogger.Error,
		"unknown": gormlogger.Error,
	}
	for level, want := range cases {
		if got := gormLogLevel(level); got != want {
			t.Fatalf("gormLogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}

func TestBuildLoggerAcceptsEveryLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		if _, err := buildLogger(level); err != nil {
			t.Fatalf("buildLogger(%q) error: %v", level, err)
		}
	}
}

func TestBuildAuthenticatorFromKeysRoundTrip(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	pubBytes, err := x509MarshalPKIXPublicKeyPEM(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}

	authenticator, err := buildAuthenticatorFromKeys(privateKey, pubBytes)
	if err != nil {
		t.Fatalf("buildAuthenticatorFromKeys() error: %v", err)
	}
	if authenticator == nil {
		t.Fatal("buildAuthenticatorFromKeys() returned nil authenticator")
	}
}

func TestBuildAuthenticatorFromKeysRejectsGarbagePEM(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	if _, err := buildAuthenticatorFromKeys(privateKey, []byte("not pem")); err == nil {
		t.Fatal("buildAuthenticatorFromKeys() with garbage PEM: want error, got nil")
	}
}

func x509MarshalPKIXPublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: derBytes}), nil
}
