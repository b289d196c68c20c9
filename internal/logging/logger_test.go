package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"warn", "WARN", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
		{"error filters info", "error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, "text", &buf)

			logger.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", got, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			if got := strings.Contains(buf.String(), "info message"); got != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", got, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", "text", &buf)
	logger.Log(context.Background(), LevelTrace, "trial finished")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE label, got %q", buf.String())
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", "json", &buf)
	logger.Info("run finished", "trials", 10)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "run finished" || entry["trials"] != float64(10) {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewTrialLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTrialLogger(dir, "info")
	if tl != nil {
		t.Error("expected nil TrialLogger at info level")
	}

	// Nil logger should still be safe to use
	tl.Log(map[string]any{"trial": 0})
	tl.Close()

	if _, err := os.Stat(filepath.Join(dir, TrialLogFile)); err == nil {
		t.Error("trials.jsonl should not exist at info level")
	}
}

func TestNewTrialLogger_DebugLevel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	tl := NewTrialLogger(dir, "debug")
	if tl == nil {
		t.Fatal("expected TrialLogger at debug level")
	}
	defer tl.Close()

	record := map[string]any{"trial": 3, "protected_fraction": 0.42}
	tl.Log(record)

	if _, ok := record["time"]; ok {
		t.Error("Log must not mutate the caller's map")
	}

	data, err := os.ReadFile(filepath.Join(dir, TrialLogFile))
	if err != nil {
		t.Fatalf("read trials.jsonl: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("parse entry: %v", err)
	}
	if entry["trial"] != float64(3) || entry["protected_fraction"] != 0.42 {
		t.Errorf("unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected time field")
	}

	info, err := os.Stat(filepath.Join(dir, TrialLogFile))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestTrialLogger_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	tl := NewTrialLogger(dir, "trace")
	defer tl.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tl.Log(map[string]any{"trial": i})
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(filepath.Join(dir, TrialLogFile))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want 20", len(lines))
	}
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("interleaved line %q: %v", line, err)
		}
	}
}

func TestTrialLogger_LogAfterClose(t *testing.T) {
	tl := NewTrialLogger(t.TempDir(), "debug")
	tl.Log(map[string]any{"trial": 0})
	tl.Close()
	tl.Log(map[string]any{"trial": 1})
	tl.Close()
}
