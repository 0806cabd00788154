package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vellum/internal/logging"
)

func TestNewWritesConsoleFormat(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "vellum.log")

	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	scoped := logging.WithComponent(logger, "producer")
	scoped.Info("pass complete", logging.Int("units", 3), logging.String("phase", "references"))
	scoped.Debug("suppressed at info level")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "INFO producer: pass complete") {
		t.Fatalf("unexpected log content: %q", content)
	}
	if !strings.Contains(content, "units=3") || !strings.Contains(content, "phase=references") {
		t.Fatalf("missing attrs in log content: %q", content)
	}
	if strings.Contains(content, "suppressed") {
		t.Fatalf("debug record should be filtered: %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewJSONFormat(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "vellum.json")

	logger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("claimed", logging.Int("unit_id", 7))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"unit_id":7`) {
		t.Fatalf("expected json attrs, got %q", string(data))
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	// Must not panic or write anywhere.
	logger.Error("ignored", logging.Error(os.ErrNotExist))
}
