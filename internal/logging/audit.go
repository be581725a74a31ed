package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditEventStartup           AuditEventType = "startup"
	AuditEventShutdown          AuditEventType = "shutdown"
	AuditEventCheckpointClosed  AuditEventType = "checkpoint_closed"
	AuditEventProofRequested    AuditEventType = "proof_requested"
	AuditEventProofFailed       AuditEventType = "proof_failed"
	AuditEventArtifactPublished AuditEventType = "artifact_published"
	AuditEventConfigChange      AuditEventType = "config_change"
)

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Component string         `json:"component"`
	ChatID    int64          `json:"chat_id,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Result    string         `json:"result"` // "success" or "failure"
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the audit log file. Empty disables auditing.
	FilePath string

	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool

	Component string
}

// DefaultAuditConfig returns default audit logger configuration with
// auditing disabled.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		MaxSizeMB:  50,
		MaxAgeDays: 90,
		MaxBackups: 10,
		Compress:   true,
		Component:  "chatproofd",
	}
}

// AuditLogger writes JSON lines for security-relevant events.
// A nil *AuditLogger is valid and discards everything.
type AuditLogger struct {
	config *AuditLoggerConfig
	mu     sync.Mutex
	w      io.WriteCloser
	now    func() time.Time
}

// NewAuditLogger creates a new AuditLogger. It returns nil, nil when no
// file path is configured.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}
	if cfg.FilePath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o750); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	return &AuditLogger{
		config: cfg,
		w:      NewRotatingFile(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays, cfg.Compress),
		now:    time.Now,
	}, nil
}

// Log writes an audit event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Component == "" {
		event.Component = a.config.Component
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	data = append(data, '\n')
	if _, err := a.w.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogStartup logs a daemon startup event.
func (a *AuditLogger) LogStartup(ctx context.Context, version string, details map[string]any) error {
	if details == nil {
		details = make(map[string]any)
	}
	details["version"] = version
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventStartup,
		Action:    "daemon_started",
		Result:    "success",
		Details:   details,
	})
}

// LogShutdown logs a daemon shutdown event.
func (a *AuditLogger) LogShutdown(ctx context.Context, reason string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventShutdown,
		Action:    "daemon_stopped",
		Result:    "success",
		Details:   map[string]any{"reason": reason},
	})
}

// LogCheckpoint logs a checkpoint closure.
func (a *AuditLogger) LogCheckpoint(ctx context.Context, timestamp uint64, hashHex string, messages int) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventCheckpointClosed,
		Action:    "checkpoint_closed",
		Resource:  hashHex,
		Result:    "success",
		Details: map[string]any{
			"timestamp": timestamp,
			"messages":  messages,
		},
	})
}

// LogProofRequested logs a proof command being accepted.
func (a *AuditLogger) LogProofRequested(ctx context.Context, chatID int64, candidates int) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventProofRequested,
		ChatID:    chatID,
		Action:    "proof_requested",
		Result:    "success",
		Details:   map[string]any{"candidates": candidates},
	})
}

// LogProofFailed logs a failed proof request.
func (a *AuditLogger) LogProofFailed(ctx context.Context, chatID int64, err error) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventProofFailed,
		ChatID:    chatID,
		Action:    "proof_requested",
		Result:    "failure",
		Error:     err.Error(),
	})
}

// LogArtifactPublished logs a published proof artifact.
func (a *AuditLogger) LogArtifactPublished(ctx context.Context, chatID int64, link string, size int) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventArtifactPublished,
		ChatID:    chatID,
		Action:    "artifact_published",
		Resource:  link,
		Result:    "success",
		Details:   map[string]any{"bytes": size},
	})
}

// LogConfigChange logs a configuration change applied at runtime.
func (a *AuditLogger) LogConfigChange(ctx context.Context, setting, oldValue, newValue string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventConfigChange,
		Action:    "config_changed",
		Resource:  setting,
		Result:    "success",
		Details: map[string]any{
			"old_value": oldValue,
			"new_value": newValue,
		},
	})
}

// Close closes the audit log file.
func (a *AuditLogger) Close() error {
	if a == nil || a.w == nil {
		return nil
	}
	return a.w.Close()
}
