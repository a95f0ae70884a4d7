package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vitrine/internal/logging"
	"vitrine/internal/services"
	"vitrine/internal/testsupport"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("startup complete")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "vitrine.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "startup complete") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleHandlerFormatsComponentPrefix(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	runLogger := logging.NewComponentLogger(logger, "runner")
	runLogger.Info("item selected",
		logging.String(logging.FieldItemKey, "bag-001"),
		logging.Int("post_count", 3),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := strings.TrimSpace(string(content))
	if !strings.Contains(line, " INFO runner: item selected") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "item_key=bag-001") || !strings.Contains(line, "post_count=3") {
		t.Fatalf("expected attrs on line, got %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component must fold into the prefix, got %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Warn("hosting failed", logging.String("detail", "upload rejected by host"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `detail="upload rejected by host"`) {
		t.Fatalf("expected quoted value, got %q", content)
	}
}

func TestLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "filtered.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "warn",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("should not appear")
	logger.Warn("should appear")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "should not appear") {
		t.Fatalf("info line leaked through warn level: %q", content)
	}
	if !strings.Contains(string(content), "should appear") {
		t.Fatalf("warn line missing: %q", content)
	}
}

func TestJSONHandlerEmitsParsableLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "log.json")
	logger, err := logging.New(logging.Options{
		Format:      "json",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("published", logging.String(logging.FieldRunID, "run-1"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &payload); err != nil {
		t.Fatalf("parse json line: %v", err)
	}
	if payload["msg"] != "published" {
		t.Fatalf("unexpected msg %v", payload["msg"])
	}
	if payload["level"] != "info" {
		t.Fatalf("unexpected level %v", payload["level"])
	}
	if payload["run_id"] != "run-1" {
		t.Fatalf("unexpected run_id %v", payload["run_id"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatal("expected ts field")
	}
}

func TestWithContextTagsRunCorrelation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithItemKey(services.WithRunID(context.Background(), "run-9"), "bag-001")
	logging.WithContext(ctx, logger).Info("stage done")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := strings.TrimSpace(string(content))
	if !strings.Contains(line, "run_id=run-9") || !strings.Contains(line, "item_key=bag-001") {
		t.Fatalf("expected correlation attrs, got %q", line)
	}

	if got := logging.WithContext(context.Background(), logger); got != logger {
		t.Fatal("expected the logger back unchanged for a bare context")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("nothing happens")
	if logger.Enabled(context.Background(), 0) {
		t.Fatal("nop logger must report disabled")
	}
}
