package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterLoggerEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)
	l.Info("progress.saved", map[string]any{"highest": 4})
	l.Error("progress.save_failed", map[string]any{"error": errors.New("disk full")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if first["msg"] != "progress.saved" {
		t.Fatalf("unexpected msg: %v", first["msg"])
	}
	if first["highest"] != float64(4) {
		t.Fatalf("expected highest=4, got %v", first["highest"])
	}
	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode second line: %v", err)
	}
	if second["error"] != "disk full" {
		t.Fatalf("expected error text, got %v", second["error"])
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breachlab.log")
	l, err := NewJSONLogger(path)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.Info("app.start", nil)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(body), "app.start") {
		t.Fatalf("expected event in log file, got %q", body)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *JSONLogger
	l.Info("ignored", map[string]any{"x": 1})
	if err := l.Close(); err != nil {
		t.Fatalf("expected nil close error, got %v", err)
	}
}
