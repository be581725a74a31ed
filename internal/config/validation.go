package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is reports ErrInvalidConfig for any non-empty collection.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && len(e) > 0
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateBot(&c.Bot)...)
	errs = append(errs, validateLinks(&c.Links)...)
	errs = append(errs, validateCheckpoint(&c.Checkpoint)...)
	errs = append(errs, validateProver(&c.Prover)...)
	errs = append(errs, validatePublish(&c.Publish)...)
	errs = append(errs, validateServer(&c.Server)...)
	errs = append(errs, validateJournal(&c.Journal)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateBot(b *BotConfig) ValidationErrors {
	var errs ValidationErrors

	if b.APIURL == "" || !isValidURL(b.APIURL) {
		errs = append(errs, ValidationError{
			Field:   "bot.api_url",
			Message: fmt.Sprintf("invalid API URL: %q", b.APIURL),
		})
	}
	if b.PollTimeoutSec < 0 || b.PollTimeoutSec > 600 {
		errs = append(errs, *RangeError("bot.poll_timeout_sec", 0, 600))
	}
	if b.RetryDelayMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "bot.retry_delay_ms",
			Message: "retry delay cannot be negative",
		})
	}

	return errs
}

func validateLinks(l *LinksConfig) ValidationErrors {
	var errs ValidationErrors

	// Empty base URL is allowed; the handshake asks for it.
	if l.BaseURL != "" && !isValidURL(l.BaseURL) {
		errs = append(errs, ValidationError{
			Field:   "links.base_url",
			Message: fmt.Sprintf("base URL must be absolute http(s): %q", l.BaseURL),
		})
	}
	if strings.Contains(l.Identity, "/") {
		errs = append(errs, ValidationError{
			Field:   "links.identity",
			Message: "identity must be a single path segment",
		})
	}

	return errs
}

func validateCheckpoint(c *CheckpointConfig) ValidationErrors {
	var errs ValidationErrors

	if c.GapSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "checkpoint.gap_sec",
			Message: "gap must be at least 1 second",
		})
	}
	if c.CommandPrefix == "" {
		errs = append(errs, *RequiredFieldError("checkpoint.command_prefix"))
	}

	return errs
}

func validateProver(p *ProverConfig) ValidationErrors {
	var errs ValidationErrors

	switch p.Mode {
	case "exec":
		if p.Command == "" {
			errs = append(errs, ValidationError{
				Field:   "prover.command",
				Message: "command is required when mode is 'exec'",
			})
		}
	case "http":
		if !isValidURL(p.URL) {
			errs = append(errs, ValidationError{
				Field:   "prover.url",
				Message: fmt.Sprintf("absolute http(s) URL is required when mode is 'http': %q", p.URL),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "prover.mode",
			Message: fmt.Sprintf("invalid prover mode: %s (valid: exec, http)", p.Mode),
		})
	}

	if p.TimeoutSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "prover.timeout_sec",
			Message: "timeout cannot be negative",
		})
	}

	return errs
}

func validatePublish(p *PublishConfig) ValidationErrors {
	var errs ValidationErrors

	switch p.Backend {
	case "memory":
	case "redis":
		if p.Redis.Addr == "" {
			errs = append(errs, ValidationError{
				Field:   "publish.redis.addr",
				Message: "address is required when backend is 'redis'",
			})
		}
		if p.Redis.DialTimeoutMs < 0 {
			errs = append(errs, ValidationError{
				Field:   "publish.redis.dial_timeout_ms",
				Message: "dial timeout cannot be negative",
			})
		}
		if p.Redis.DB < 0 {
			errs = append(errs, ValidationError{
				Field:   "publish.redis.db",
				Message: "database index cannot be negative",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "publish.backend",
			Message: fmt.Sprintf("invalid publish backend: %s (valid: memory, redis)", p.Backend),
		})
	}

	if p.TTLHours < 1 {
		errs = append(errs, ValidationError{
			Field:   "publish.ttl_hours",
			Message: "artifact TTL must be at least 1 hour",
		})
	}
	if p.MaxArtifactBytes < 1 {
		errs = append(errs, ValidationError{
			Field:   "publish.max_artifact_bytes",
			Message: "artifact size limit must be positive",
		})
	}
	if p.MaxCacheMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "publish.max_cache_mb",
			Message: "cache cap cannot be negative",
		})
	} else if p.MaxCacheMB > 0 && p.MaxCacheMB<<20 <= p.MaxArtifactBytes {
		errs = append(errs, ValidationError{
			Field:   "publish.max_cache_mb",
			Message: fmt.Sprintf("cache cap of %d MB cannot hold one artifact of %d bytes", p.MaxCacheMB, p.MaxArtifactBytes),
		})
	}

	return errs
}

func validateServer(s *ServerConfig) ValidationErrors {
	if !s.Enabled {
		return nil
	}

	var errs ValidationErrors
	if _, _, err := net.SplitHostPort(s.ListenAddr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "server.listen_addr",
			Message: fmt.Sprintf("invalid listen address %q: %v", s.ListenAddr, err),
		})
	}
	return errs
}

func validateJournal(j *JournalConfig) ValidationErrors {
	if j.Enabled && j.Path == "" {
		return ValidationErrors{*RequiredFieldError("journal.path")}
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output includes 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func isValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
