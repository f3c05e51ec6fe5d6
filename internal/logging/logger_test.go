package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger_CreatesDirAndLogger(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(dir, "info")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("log dir missing: %v", err)
	}

	log.Info("test_message_from_logging_test")

	// Best-effort: lumberjack opens the file lazily on first write.
	if entries, _ := os.ReadDir(dir); len(entries) == 0 {
		t.Logf("no files yet in %s (ok; writer may delay)", dir)
	}
}

func TestNewLogger_ConsoleLineFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(t.TempDir(), "info", &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	log.Warn("OFFLINE 192.0.2.10",
		zap.Any("checks", map[string]bool{"ping": false, "ssh": false}),
		zap.Int("consecutive_failures", 2),
	)
	_ = log.Sync()

	line := strings.TrimSpace(buf.String())
	parts := strings.SplitN(line, " - ", 4)
	if len(parts) != 4 {
		t.Fatalf("want 4 ' - ' separated parts, got %d: %q", len(parts), line)
	}
	if parts[1] != "WARN" {
		t.Fatalf("level part=%q", parts[1])
	}
	if parts[2] != "OFFLINE 192.0.2.10" {
		t.Fatalf("summary part=%q", parts[2])
	}
	if !strings.HasPrefix(parts[3], "{") ||
		!strings.Contains(parts[3], `"checks"`) ||
		!strings.Contains(parts[3], `"ping":false`) ||
		!strings.Contains(parts[3], `"consecutive_failures"`) {
		t.Fatalf("fields part=%q", parts[3])
	}
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(t.TempDir(), "warn", &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Info("hidden")
	log.Error("shown")
	_ = log.Sync()
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level filter not applied: %q", buf.String())
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, err := NewLogger(t.TempDir(), "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
