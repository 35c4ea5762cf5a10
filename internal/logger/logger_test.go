package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestJSONOutputFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn", "json")
	defer func() { defaultLogger = nil }()

	Info("dropped %d", 1)
	Warn("kept %d", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	if entry["msg"] != "kept 2" {
		t.Errorf("Unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("Unexpected level: %v", entry["level"])
	}
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", "text")
	defer func() { defaultLogger = nil }()

	Debug("sample %s", "accepted")

	if !strings.Contains(buf.String(), "sample accepted") {
		t.Errorf("Expected message in text output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "logger_test.go") {
		t.Errorf("Expected caller source in text output, got %q", buf.String())
	}
}

func TestUninitializedIsSilent(t *testing.T) {
	defaultLogger = nil
	Info("nothing %d", 1)
	Error("nothing %d", 2)
}
