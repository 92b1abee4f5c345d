package main

import (
	"os"
	"testing"
)

func TestEnvOrDefaultUsesEnvWhenSet(t *testing.T) {
	t.Setenv("VIADUCT_TEST_SEED_KEY", "from-env")
	if got := envOrDefault("VIADUCT_TEST_SEED_KEY", "fallback"); got != "from-env" {
		t.Fatalf("envOrDefault() = %q, want %q", got, "from-env")
	}
}

func TestEnvOrDefaultFallsBackWhenUnset(t *testing.T) {
	os.Unsetenv("VIADUCT_TEST_SEED_KEY_UNSET")
	if got := envOrDefault("VIADUCT_TEST_SEED_KEY_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("envOrDefault() = %q, want %q", got, "fallback")
	}
}
