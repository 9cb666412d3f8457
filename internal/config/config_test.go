package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg := Load()

	if cfg.Env != "dev" {
		t.Errorf("expected default env 'dev', got %q", cfg.Env)
	}
	if cfg.DefaultConfidence != 0.8 {
		t.Errorf("expected default confidence 0.8, got %g", cfg.DefaultConfidence)
	}
	if cfg.DefaultLiveness != 0.6 {
		t.Errorf("expected default liveness 0.6, got %g", cfg.DefaultLiveness)
	}
	if cfg.DefaultMaxTries != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.DefaultMaxTries)
	}
	if cfg.ExtractTimeout != 10*time.Second {
		t.Errorf("expected extract timeout 10s, got %s", cfg.ExtractTimeout)
	}
}

func TestFloatEnv(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.35")
	if got := floatEnv("TEST_FLOAT", 0.9); got != 0.35 {
		t.Errorf("expected 0.35, got %g", got)
	}

	t.Setenv("TEST_FLOAT", "not-a-number")
	if got := floatEnv("TEST_FLOAT", 0.9); got != 0.9 {
		t.Errorf("expected fallback 0.9, got %g", got)
	}
}

func TestDurationEnv_Invalid(t *testing.T) {
	t.Setenv("TEST_DUR", "soon")
	if got := durationEnv("TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("expected fallback 1m, got %s", got)
	}
}

func TestBoolEnv(t *testing.T) {
	cases := []struct {
		val      string
		fallback bool
		want     bool
	}{
		{"1", false, true},
		{"true", false, true},
		{"0", true, false},
		{"FALSE", true, false},
		{"maybe", true, true},
	}
	for _, tc := range cases {
		t.Setenv("TEST_BOOL", tc.val)
		if got := boolEnv("TEST_BOOL", tc.fallback); got != tc.want {
			t.Errorf("boolEnv(%q) = %v, want %v", tc.val, got, tc.want)
		}
	}
}
