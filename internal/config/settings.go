package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. GTASKSYNC_VAULT_PATH.
const EnvPrefix = "GTASKSYNC"

// ErrNoVault is returned when no vault path is configured.
var ErrNoVault = errors.New("vault_path is not set")

// RetrySettings bounds retries of transient remote failures.
type RetrySettings struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// Settings controls synchronization.
type Settings struct {
	// VaultPath is the root folder of the markdown documents.
	VaultPath string `yaml:"vault_path" mapstructure:"vault_path"`

	// SyncInterval is the period of scheduled whole-vault passes; zero disables them.
	SyncInterval time.Duration `yaml:"sync_interval" mapstructure:"sync_interval"`

	// PollInterval is how often the watcher scans the vault for changed documents.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// FullVaultSync also syncs untracked documents that contain tagged tasks.
	FullVaultSync bool `yaml:"full_vault_sync" mapstructure:"full_vault_sync"`

	DefaultProjectID string `yaml:"default_project_id" mapstructure:"default_project_id"`
	LogLevel         string `yaml:"log_level" mapstructure:"log_level"`
	SkipBackup       bool   `yaml:"skip_backup" mapstructure:"skip_backup"`

	Retry RetrySettings `yaml:"retry" mapstructure:"retry"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		SyncInterval: 5 * time.Minute,
		PollInterval: 2 * time.Second,
		LogLevel:     "info",
		Retry: RetrySettings{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
	}
}

// LoadSettings reads settings from path, falling back to defaults for
// missing keys. A missing file is not an error. Environment variables
// prefixed with EnvPrefix override the file.
func LoadSettings(path string) (Settings, error) {
	def := DefaultSettings()

	v := viper.New()
	v.SetDefault("vault_path", def.VaultPath)
	v.SetDefault("sync_interval", def.SyncInterval)
	v.SetDefault("poll_interval", def.PollInterval)
	v.SetDefault("full_vault_sync", def.FullVaultSync)
	v.SetDefault("default_project_id", def.DefaultProjectID)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("skip_backup", def.SkipBackup)
	v.SetDefault("retry.max_attempts", def.Retry.MaxAttempts)
	v.SetDefault("retry.initial_backoff", def.Retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", def.Retry.MaxBackoff)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, s.Validate()
}

// Validate rejects settings the sync engine cannot run with.
func (s Settings) Validate() error {
	if s.SyncInterval < 0 {
		return fmt.Errorf("sync_interval must not be negative")
	}
	if s.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative")
	}
	if s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if s.Retry.MaxBackoff < s.Retry.InitialBackoff {
		return fmt.Errorf("retry.max_backoff must not be below retry.initial_backoff")
	}
	return nil
}

// Vault returns the absolute vault root, expanding a leading ~.
func (s Settings) Vault() (string, error) {
	path := s.VaultPath
	if path == "" {
		return "", ErrNoVault
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// WriteDefaultSettings writes the default settings to path. It refuses to
// overwrite an existing file.
func WriteDefaultSettings(path string, vaultPath string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, os.ErrExist)
	}
	s := DefaultSettings()
	s.VaultPath = vaultPath

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	header := "# gtasksync settings. Environment variables prefixed with " + EnvPrefix + "_ override these.\n"
	return os.WriteFile(path, append([]byte(header), data...), 0600)
}
