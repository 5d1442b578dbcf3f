// Package config provides TOML configuration file loading for the listener
// process. The configuration file lives at ~/.telemux/config.toml by default,
// but can be overridden with the --config flag. CLI flags always take
// precedence over file values.
//
// Note that per-session files under SessionsDir are NOT TOML: they are
// whitelisted key=value files parsed by the registry package. The TOML file
// configures the process itself, not individual sessions.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/telemux/telemux/internal/errors"
)

// Defaults applied by ApplyDefaults when the corresponding field is unset.
const (
	DefaultPollTimeoutSeconds    = 10
	DefaultReloadIntervalSeconds = 60
	DefaultDebounceSeconds       = 20
	DefaultMaxFileSizeMB         = 20
)

// Config represents the listener configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML
// files via struct tags.
type Config struct {
	// SessionsDir is the directory scanned for per-session *.conf files.
	// Default: ~/.telemux/sessions
	SessionsDir string `toml:"sessions_dir"`

	// ScratchDir is where downloaded attachments are written.
	// Default: os.TempDir()/telemux
	ScratchDir string `toml:"scratch_dir"`

	// StateDB is the path to the SQLite database for runtime state
	// (notify-enabled flags, attachment cleanup registry).
	// Default: ~/.telemux/telemux.db
	StateDB string `toml:"state_db"`

	// PollTimeoutSeconds is the long-poll timeout passed to getUpdates.
	// Default: 10
	PollTimeoutSeconds int `toml:"poll_timeout_seconds"`

	// ReloadIntervalSeconds is how often the sessions directory is rescanned.
	// Default: 60
	ReloadIntervalSeconds int `toml:"reload_interval_seconds"`

	// DebounceSeconds is the default notification debounce window for
	// sessions that don't set NOTIFY_DEBOUNCE in their own config.
	// Default: 20
	DebounceSeconds int `toml:"debounce_seconds"`

	// MaxFileSizeMB caps attachment downloads. Default: 20 (the Bot API
	// limit for files fetched via getFile).
	MaxFileSizeMB int `toml:"max_file_size_mb"`

	// LogFile is an optional path to tee log output to. Empty means
	// stderr only.
	LogFile string `toml:"log_file"`

	// APIBaseURL overrides the Bot API endpoint, for self-hosted Bot API
	// servers. Empty means the public endpoint.
	APIBaseURL string `toml:"api_base_url"`
}

// DefaultConfigPath returns the default config file location:
// ~/.telemux/config.toml. Returns an error only if the user's home
// directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".telemux", "config.toml"), nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location.
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			// Can't determine home dir, return empty config
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			// Default config doesn't exist, that's fine
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigReadFailed, fmt.Sprintf("config file not found: %s", path))
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrap(errors.CodeConfigParseFailed, fmt.Sprintf("failed to parse config file %s", path), err)
	}

	return cfg, nil
}

// ApplyDefaults fills in zero-valued fields. It is separate from Load so
// tests can distinguish "unset" from "explicitly zero".
func (c *Config) ApplyDefaults() {
	if c.SessionsDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.SessionsDir = filepath.Join(home, ".telemux", "sessions")
		}
	}
	if c.ScratchDir == "" {
		c.ScratchDir = filepath.Join(os.TempDir(), "telemux")
	}
	if c.StateDB == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.StateDB = filepath.Join(home, ".telemux", "telemux.db")
		}
	}
	if c.PollTimeoutSeconds <= 0 {
		c.PollTimeoutSeconds = DefaultPollTimeoutSeconds
	}
	if c.ReloadIntervalSeconds <= 0 {
		c.ReloadIntervalSeconds = DefaultReloadIntervalSeconds
	}
	if c.DebounceSeconds <= 0 {
		c.DebounceSeconds = DefaultDebounceSeconds
	}
	if c.MaxFileSizeMB <= 0 {
		c.MaxFileSizeMB = DefaultMaxFileSizeMB
	}
}

// MaxFileSizeBytes returns the attachment size cap in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}
