package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("CORA_TEST_BOOL", "yes")
	if !ParseBoolEnv("CORA_TEST_BOOL", false) {
		t.Error("expected 'yes' to parse as true")
	}
	t.Setenv("CORA_TEST_BOOL", "off")
	if ParseBoolEnv("CORA_TEST_BOOL", true) {
		t.Error("expected 'off' to parse as false")
	}
	t.Setenv("CORA_TEST_BOOL", "maybe")
	if !ParseBoolEnv("CORA_TEST_BOOL", true) {
		t.Error("expected invalid value to return default")
	}
	if ParseBoolEnv("CORA_TEST_BOOL_UNSET", false) {
		t.Error("expected unset variable to return default")
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("CORA_TEST_INT", "42")
	if got := ParseIntEnv("CORA_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("CORA_TEST_INT", "not-a-number")
	if got := ParseIntEnv("CORA_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
	if got := ParseIntEnv("CORA_TEST_INT_UNSET", 20); got != 20 {
		t.Errorf("expected default 20, got %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("CORA_TEST_DUR", "90s")
	if got := ParseDurationEnv("CORA_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
	t.Setenv("CORA_TEST_DUR", "soon")
	if got := ParseDurationEnv("CORA_TEST_DUR", time.Hour); got != time.Hour {
		t.Errorf("expected default 1h, got %v", got)
	}
}
