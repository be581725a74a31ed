package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("round trip of %v gave %v, %v", level, parsed, err)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.MaxSizeMB <= 0 || cfg.MaxAgeDays <= 0 || cfg.MaxBackups <= 0 {
		t.Errorf("expected positive rotation settings, got %+v", cfg)
	}
	if !strings.HasSuffix(cfg.FilePath, filepath.Join("chatproofd", "chatproofd.log")) {
		t.Errorf("unexpected default log path %s", cfg.FilePath)
	}
}

func newBufferLogger(t *testing.T, level Level) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:     level,
		Format:    FormatJSON,
		Writer:    &buf,
		Component: "test",
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return logger, &buf
}

func TestJSONFormat(t *testing.T) {
	logger, buf := newBufferLogger(t, LevelInfo)

	logger.Info("checkpoint closed", "timestamp", 108)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "checkpoint closed" {
		t.Errorf("unexpected msg %v", record["msg"])
	}
	if record["component"] != "test" {
		t.Errorf("unexpected component %v", record["component"])
	}
}

func TestRedaction(t *testing.T) {
	logger, buf := newBufferLogger(t, LevelInfo)

	logger.Info("bootstrap", "bot_token", "123:abc", "base_url", "https://example.org")

	out := buf.String()
	if strings.Contains(out, "123:abc") {
		t.Errorf("token leaked into log output: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("expected redaction marker")
	}
	if !strings.Contains(out, "https://example.org") {
		t.Error("non-sensitive attributes should be kept")
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"token", true},
		{"bot_token", true},
		{"TOKEN", true},
		{"password", true},
		{"redis_password", true},
		{"secret", true},
		{"api_key", true},
		{"bearer", true},
		{"sender", false},
		{"chat_id", false},
		{"timestamp", false},
		{"hash", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			if got := shouldRedact(test.key); got != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, got, test.expected)
			}
		})
	}
}

func TestSetLevelAppliesToDerivedLoggers(t *testing.T) {
	logger, buf := newBufferLogger(t, LevelInfo)
	child := logger.WithComponent("engine")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug record should be filtered, got %s", buf.String())
	}

	logger.SetLevel(LevelDebug)
	child.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("level change should reach derived loggers")
	}
	if logger.GetLevel() != LevelDebug {
		t.Errorf("expected debug level, got %v", logger.GetLevel())
	}
}

func TestWithContextRequestID(t *testing.T) {
	logger, buf := newBufferLogger(t, LevelInfo)

	ctx := ContextWithRequestID(context.Background(), "req-789")
	logger.WithContext(ctx).Info("handled")

	if !strings.Contains(buf.String(), `"request_id":"req-789"`) {
		t.Errorf("expected request id in output, got %s", buf.String())
	}
}

func TestRequestIDFromEmptyContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := RequestIDFromContext(nil); got != "" { //nolint:staticcheck
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestNewRequestID(t *testing.T) {
	logger, _ := newBufferLogger(t, LevelInfo)

	id1 := logger.NewRequestID()
	id2 := logger.NewRequestID()

	if id1 == id2 {
		t.Error("NewRequestID returned duplicate IDs")
	}
	if !strings.HasPrefix(id1, "test-") {
		t.Errorf("NewRequestID should start with component name, got %q", id1)
	}
}

func TestFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "chatproofd.log")

	logger, err := New(&Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "file",
		FilePath:   logPath,
		MaxSizeMB:  1,
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.Info("written to file")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("unexpected file content: %s", data)
	}

	if err := logger.Rotate(); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(logPath))
	if len(entries) < 2 {
		t.Errorf("expected a rotated backup, got %d files", len(entries))
	}
}

func TestFileOutputRequiresPath(t *testing.T) {
	if _, err := New(&Config{Output: "file"}); err == nil {
		t.Error("expected error for file output without path")
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("dropped")
	if l.Logger == nil {
		t.Fatal("Discard returned nil logger")
	}
}

// =============================================================================
// Audit logger
// =============================================================================

func TestAuditLoggerDisabled(t *testing.T) {
	a, err := NewAuditLogger(&AuditLoggerConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != nil {
		t.Fatal("expected nil audit logger without a path")
	}
	if err := a.LogShutdown(context.Background(), "test"); err != nil {
		t.Errorf("nil audit logger should discard: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("nil Close failed: %v", err)
	}
}

func TestAuditLogger(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.log")

	cfg := DefaultAuditConfig()
	cfg.FilePath = auditPath
	cfg.Compress = false
	cfg.Component = "test"

	a, err := NewAuditLogger(cfg)
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}
	defer a.Close()

	ctx := ContextWithRequestID(context.Background(), "req-1")

	steps := []func() error{
		func() error { return a.LogStartup(ctx, "dev", nil) },
		func() error { return a.LogCheckpoint(ctx, 108, "abcd", 2) },
		func() error { return a.LogProofRequested(ctx, 42, 1) },
		func() error { return a.LogProofFailed(ctx, 42, errors.New("prover exited 1")) },
		func() error { return a.LogArtifactPublished(ctx, 42, "https://example.org/bot/id", 10) },
		func() error { return a.LogConfigChange(ctx, "logging.level", "info", "debug") },
		func() error { return a.LogShutdown(ctx, "signal") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("failed to read audit log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != len(steps) {
		t.Fatalf("expected %d lines, got %d", len(steps), len(lines))
	}

	var failed AuditEvent
	if err := json.Unmarshal([]byte(lines[3]), &failed); err != nil {
		t.Fatalf("line 4 is not valid JSON: %v", err)
	}
	if failed.EventType != AuditEventProofFailed || failed.Result != "failure" {
		t.Errorf("unexpected event %+v", failed)
	}
	if failed.ChatID != 42 || failed.RequestID != "req-1" || failed.Component != "test" {
		t.Errorf("defaults not filled in: %+v", failed)
	}
}
