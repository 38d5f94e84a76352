package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func reset() {
	logger = nil
	once = *new(sync.Once)
}

func TestSetup(t *testing.T) {
	reset()
	t.Cleanup(reset)

	Setup("DEBUG")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupTextFormat(t *testing.T) {
	reset()
	t.Cleanup(reset)

	var buf bytes.Buffer
	SetupWithOptions(Options{Level: "info", Format: "text", Writer: &buf})
	Info("hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "k=v") {
		t.Fatalf("expected text output, got %q", out)
	}
}

func TestSetupWritesLogFile(t *testing.T) {
	reset()
	t.Cleanup(reset)

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "scenebridge.log")
	SetupWithOptions(Options{Level: "info", Writer: &buf, File: path, MaxSizeMB: 1})
	Info("to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file missing record: %q", data)
	}
	if !strings.Contains(buf.String(), "to file") {
		t.Fatalf("writer missing record: %q", buf.String())
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(reset)

	WithComponent("test-comp").Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["component"] != "test-comp" {
		t.Errorf("Expected component 'test-comp', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithCommand(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(reset)

	WithCommand("cmd-123").Info("command msg")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["command_id"] != "cmd-123" {
		t.Errorf("Expected command_id 'cmd-123', got %v", out["command_id"])
	}
}

func TestWithGeneration(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(reset)

	WithGeneration(7).Info("gen msg")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["generation"] != float64(7) {
		t.Errorf("Expected generation 7, got %v", out["generation"])
	}
}
