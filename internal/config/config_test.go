package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("GESTURE_TEST_STR", "  value ")
	if got := GetEnv("GESTURE_TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnv = %q, want value", got)
	}
	if got := GetEnv("GESTURE_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnv unset = %q, want fallback", got)
	}
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("GESTURE_TEST_INT", "42")
	t.Setenv("GESTURE_TEST_BAD_INT", "forty")
	t.Setenv("GESTURE_TEST_BOOL", "true")
	t.Setenv("GESTURE_TEST_DUR", "250ms")

	if got := GetEnvInt("GESTURE_TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvInt = %d, want 42", got)
	}
	if got := GetEnvInt("GESTURE_TEST_BAD_INT", 1); got != 1 {
		t.Errorf("GetEnvInt invalid = %d, want 1", got)
	}
	if !GetEnvBool("GESTURE_TEST_BOOL", false) {
		t.Error("GetEnvBool should be true")
	}
	if got := GetEnvDuration("GESTURE_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("GetEnvDuration = %v, want 250ms", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("GESTURE_TEST_FROM_FILE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("GESTURE_TEST_FROM_FILE") })

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("GESTURE_TEST_FROM_FILE"); got != "loaded" {
		t.Errorf("env = %q, want loaded", got)
	}

	if err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("Load of missing file should fail")
	}
}
