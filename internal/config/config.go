// Package config handles configuration loading, validation, and management for chatproofd.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Bot holds the Telegram Bot API connection settings.
	Bot BotConfig `toml:"bot" json:"bot" yaml:"bot"`

	// Links controls how shareable proof links are built.
	Links LinksConfig `toml:"links" json:"links" yaml:"links"`

	Checkpoint CheckpointConfig `toml:"checkpoint" json:"checkpoint" yaml:"checkpoint"`

	Prover ProverConfig `toml:"prover" json:"prover" yaml:"prover"`

	// Publish selects where proof artifacts are stored.
	Publish PublishConfig `toml:"publish" json:"publish" yaml:"publish"`

	// Server exposes artifacts, health, metrics and the checkpoint feed.
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	// Journal is the write-only sqlite record of checkpoints and proofs.
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`

	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// BotConfig holds the Telegram Bot API settings.
type BotConfig struct {
	// Token may be left empty; the bootstrap handshake then asks for it.
	Token          string `toml:"token" json:"token" yaml:"token"`
	APIURL         string `toml:"api_url" json:"api_url" yaml:"api_url"`
	PollTimeoutSec int    `toml:"poll_timeout_sec" json:"poll_timeout_sec" yaml:"poll_timeout_sec"`
	RetryDelayMs   int    `toml:"retry_delay_ms" json:"retry_delay_ms" yaml:"retry_delay_ms"`
}

// LinksConfig controls shareable link construction.
type LinksConfig struct {
	// BaseURL may be left empty; the bootstrap handshake then asks for it.
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`

	// Identity is the path segment between the base URL and the artifact id.
	Identity string `toml:"identity" json:"identity" yaml:"identity"`
}

// CheckpointConfig holds the checkpoint closure settings.
type CheckpointConfig struct {
	// GapSec is the silence, in seconds, that closes the open buffer.
	GapSec        int    `toml:"gap_sec" json:"gap_sec" yaml:"gap_sec"`
	CommandPrefix string `toml:"command_prefix" json:"command_prefix" yaml:"command_prefix"`
}

// ProverConfig selects and configures the proof backend.
type ProverConfig struct {
	// Mode is "exec" or "http".
	Mode    string   `toml:"mode" json:"mode" yaml:"mode"`
	Command string   `toml:"command" json:"command" yaml:"command"`
	Args    []string `toml:"args" json:"args" yaml:"args"`
	URL     string   `toml:"url" json:"url" yaml:"url"`

	// TimeoutSec bounds one proof request. Zero means no deadline: the
	// prover runs to completion or failure, and only shutdown stops it.
	TimeoutSec     int  `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
	ValidateOutput bool `toml:"validate_output" json:"validate_output" yaml:"validate_output"`
}

// PublishConfig selects the artifact publisher backend.
type PublishConfig struct {
	// Backend is "memory" or "redis".
	Backend          string `toml:"backend" json:"backend" yaml:"backend"`
	TTLHours         int    `toml:"ttl_hours" json:"ttl_hours" yaml:"ttl_hours"`
	MaxArtifactBytes int    `toml:"max_artifact_bytes" json:"max_artifact_bytes" yaml:"max_artifact_bytes"`

	// MaxCacheMB caps the memory backend. The oldest artifacts are evicted
	// first. Zero means unbounded.
	MaxCacheMB int `toml:"max_cache_mb" json:"max_cache_mb" yaml:"max_cache_mb"`

	Redis RedisConfig `toml:"redis" json:"redis" yaml:"redis"`
}

// RedisConfig holds the redis publisher connection settings.
type RedisConfig struct {
	Addr          string `toml:"addr" json:"addr" yaml:"addr"`
	Password      string `toml:"password" json:"password" yaml:"password"`
	DB            int    `toml:"db" json:"db" yaml:"db"`
	KeyPrefix     string `toml:"key_prefix" json:"key_prefix" yaml:"key_prefix"`
	DialTimeoutMs int    `toml:"dial_timeout_ms" json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Enabled        bool     `toml:"enabled" json:"enabled" yaml:"enabled"`
	ListenAddr     string   `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// JournalConfig holds the sqlite journal settings.
type JournalConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is one of: text, json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is one of: stdout, stderr, file, both.
	Output string `toml:"output" json:"output" yaml:"output"`

	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`

	// AuditPath enables the audit trail when non-empty.
	AuditPath string `toml:"audit_path" json:"audit_path" yaml:"audit_path"`
}

// MetricsConfig toggles the Prometheus collectors.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Version: Version,
		Bot: BotConfig{
			APIURL:         "https://api.telegram.org",
			PollTimeoutSec: 30,
			RetryDelayMs:   1000,
		},
		Links: LinksConfig{
			Identity: "chatproof",
		},
		Checkpoint: CheckpointConfig{
			GapSec:        5,
			CommandPrefix: "/prove ",
		},
		Prover: ProverConfig{
			Mode:           "exec",
			ValidateOutput: true,
		},
		Publish: PublishConfig{
			Backend:          "memory",
			TTLHours:         24 * 7,
			MaxArtifactBytes: 16 << 20,
			MaxCacheMB:       512,
			Redis: RedisConfig{
				Addr:          "localhost:6379",
				KeyPrefix:     "chatproof:artifact:",
				DialTimeoutMs: 5000,
			},
		},
		Server: ServerConfig{
			Enabled:        true,
			ListenAddr:     "127.0.0.1:8080",
			AllowedOrigins: []string{"*"},
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "journal.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(LogDir(), "chatproofd.log"),
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Journal.Enabled {
		dirs = append(dirs, filepath.Dir(c.Journal.Path))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	if c.Logging.AuditPath != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.AuditPath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with CHATPROOF_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Data dir first so the explicit path overrides below win.
	if v := os.Getenv("CHATPROOF_DATA_DIR"); v != "" {
		c.Journal.Path = filepath.Join(v, "journal.db")
	}

	// Credentials from env keep them out of config files.
	if v := os.Getenv("CHATPROOF_BOT_TOKEN"); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv("CHATPROOF_BASE_URL"); v != "" {
		c.Links.BaseURL = v
	}
	if v := os.Getenv("CHATPROOF_IDENTITY"); v != "" {
		c.Links.Identity = v
	}

	if v := os.Getenv("CHATPROOF_PROVER_COMMAND"); v != "" {
		c.Prover.Mode = "exec"
		c.Prover.Command = v
	}
	if v := os.Getenv("CHATPROOF_PROVER_URL"); v != "" {
		c.Prover.Mode = "http"
		c.Prover.URL = v
	}

	if v := os.Getenv("CHATPROOF_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}

	if v := os.Getenv("CHATPROOF_REDIS_ADDR"); v != "" {
		c.Publish.Backend = "redis"
		c.Publish.Redis.Addr = v
	}
	if v := os.Getenv("CHATPROOF_REDIS_PASSWORD"); v != "" {
		c.Publish.Redis.Password = v
	}

	if v := os.Getenv("CHATPROOF_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CHATPROOF_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	if v := os.Getenv("CHATPROOF_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:    c.Version,
		Bot:        c.Bot,
		Links:      c.Links,
		Checkpoint: c.Checkpoint,
		Prover:     c.Prover,
		Publish:    c.Publish,
		Server:     c.Server,
		Journal:    c.Journal,
		Logging:    c.Logging,
		Metrics:    c.Metrics,
	}
	clone.Prover.Args = append([]string(nil), c.Prover.Args...)
	clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)

	return clone
}

// Redacted returns a copy with credentials masked, suitable for display.
func (c *Config) Redacted() *Config {
	r := c.Clone()
	if r.Bot.Token != "" {
		r.Bot.Token = redactedValue
	}
	if r.Publish.Redis.Password != "" {
		r.Publish.Redis.Password = redactedValue
	}
	return r
}

const redactedValue = "[REDACTED]"

// Gap returns the checkpoint gap as unsigned seconds.
func (c *Config) Gap() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Checkpoint.GapSec < 1 {
		return 0
	}
	return uint64(c.Checkpoint.GapSec)
}

// PollTimeout returns the long-poll timeout.
func (c *Config) PollTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Bot.PollTimeoutSec) * time.Second
}

// RetryDelay returns the pause after a failed poll.
func (c *Config) RetryDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Bot.RetryDelayMs) * time.Millisecond
}

// ProverTimeout returns the deadline for a single proof request. Zero
// means none.
func (c *Config) ProverTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Prover.TimeoutSec) * time.Second
}

// ArtifactTTL returns how long published artifacts stay fetchable.
func (c *Config) ArtifactTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Publish.TTLHours) * time.Hour
}

// RedisDialTimeout returns the redis connect timeout.
func (c *Config) RedisDialTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Publish.Redis.DialTimeoutMs) * time.Millisecond
}

// Encode serializes the configuration as "toml", "yaml" or "json".
func Encode(cfg *Config, format string) ([]byte, error) {
	switch format {
	case "", "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encode TOML: %w", err)
		}
		return buf.Bytes(), nil
	case "yaml", "yml":
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode YAML: %w", err)
		}
		return out, nil
	case "json":
		return encodeJSON(cfg)
	default:
		return nil, fmt.Errorf("unknown config format %s", strconv.Quote(format))
	}
}

// SaveConfig writes the configuration to path, choosing the format by extension.
func SaveConfig(cfg *Config, path string) error {
	data, err := Encode(cfg, formatFor(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
