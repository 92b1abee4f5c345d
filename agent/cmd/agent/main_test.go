package main

import (
	"os"
	"strings"
	"testing"
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

func TestDefaultConfigPathEndsInAgentYAML(t *testing.T) {
	if got := defaultConfigPath(); !strings.HasSuffix(got, ".viaduct/agent.yaml") {
		t.Fatalf("defaultConfigPath() = %q, want suffix .viaduct/agent.yaml", got)
	}
}

func TestBuildLoggerAcceptsEveryLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		if _, err := buildLogger(level); err != nil {
			t.Fatalf("buildLogger(%q) error: %v", level, err)
		}
	}
}
