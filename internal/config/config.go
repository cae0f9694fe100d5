// Package config handles XDG configuration directory and file paths.
package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// AppName is the application directory name.
	AppName = "gtasksync"

	// OAuthClientFile is the OAuth client credentials filename.
	OAuthClientFile = "oauth_client.json"

	// TokenFile is the stored OAuth token filename.
	TokenFile = "token.json"

	// SettingsFile is the sync settings filename.
	SettingsFile = "config.yaml"

	// CacheFile is the local cache database filename.
	CacheFile = "cache.db"

	// BackupDir is the directory cache backups are written to.
	BackupDir = "backups"
)

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// VaultPath overrides vault_path from the settings file when set.
	VaultPath string
}

// New creates a new Config with the default or specified config directory.
// If configDir is empty, uses XDG_CONFIG_HOME/gtasksync or $HOME/.config/gtasksync.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	return &Config{Dir: dir}, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// OAuthClientPath returns the path to the OAuth client credentials file.
func (c *Config) OAuthClientPath() string {
	return filepath.Join(c.Dir, OAuthClientFile)
}

// TokenPath returns the path to the stored OAuth token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// SettingsPath returns the path to the sync settings file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Dir, SettingsFile)
}

// CachePath returns the path to the local cache database.
func (c *Config) CachePath() string {
	return filepath.Join(c.Dir, CacheFile)
}

// BackupPath returns the directory cache backups are written to.
func (c *Config) BackupPath() string {
	return filepath.Join(c.Dir, BackupDir)
}

// Logger returns a text logger writing to w. Debug enables debug level;
// otherwise level names the minimum level ("info" when empty). Quiet
// raises the minimum to warn.
func (c *Config) Logger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil || level == "" {
		lvl = slog.LevelInfo
	}
	if c.Quiet && lvl < slog.LevelWarn {
		lvl = slog.LevelWarn
	}
	if c.Debug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// LoadSettings reads the settings file and applies the VaultPath override.
func (c *Config) LoadSettings() (Settings, error) {
	s, err := LoadSettings(c.SettingsPath())
	if err != nil {
		return Settings{}, err
	}
	if c.VaultPath != "" {
		s.VaultPath = c.VaultPath
	}
	return s, nil
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasOAuthClient checks if the OAuth client credentials file exists.
func (c *Config) HasOAuthClient() bool {
	_, err := os.Stat(c.OAuthClientPath())
	return err == nil
}

// HasToken checks if the token file exists.
func (c *Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// RemoveToken deletes the token file.
func (c *Config) RemoveToken() error {
	return os.Remove(c.TokenPath())
}
