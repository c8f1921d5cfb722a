package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelsFilterOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(&buf, "warning"); err != nil {
		t.Fatal(err)
	}
	defer Init(&bytes.Buffer{}, "info")

	Debug("hidden %d", 1)
	Info("hidden %d", 2)
	Warning("shown %d", 3)
	Error("shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[warn] shown 3") || !strings.Contains(out, "[error] shown 4") {
		t.Errorf("expected warning and error lines, got %q", out)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
	lvl, err := ParseLevel(" DEBUG ")
	if err != nil || lvl != DebugLevel {
		t.Errorf("expected DebugLevel, got %v %v", lvl, err)
	}
}

func TestInitEmptyLevelKeepsCurrent(t *testing.T) {
	Init(&bytes.Buffer{}, "error")
	defer Init(&bytes.Buffer{}, "info")
	if err := Init(&bytes.Buffer{}, ""); err != nil {
		t.Fatal(err)
	}
	if CurrentLevel() != ErrorLevel {
		t.Errorf("expected level to stay at error, got %v", CurrentLevel())
	}
}
