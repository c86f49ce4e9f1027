package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load merges the defaults, the global config, the project config and
// TASKSYNC_* environment variables, in that order.
func Load() (*Config, error) {
	return LoadFrom(GlobalConfigPath(), ProjectConfigPath())
}

// LoadFrom is Load with explicit file paths. Missing files are skipped.
func LoadFrom(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := loadFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := loadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return err
	}

	return v.Unmarshal(cfg)
}

// envKeys are the settings that can be overridden from the environment.
var envKeys = []string{
	"db_path",
	"snapshot_path",
	"sync_interval",
	"http_timeout",
	"sync_workers",
	"web.host",
	"web.port",
	"verbose",
}

func loadEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(appName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	// Only keys present in the environment are set, so Unmarshal leaves
	// the rest of cfg untouched.
	set := make(map[string]any)
	for _, key := range envKeys {
		if v.IsSet(key) {
			set[key] = v.Get(key)
		}
	}
	if len(set) == 0 {
		return nil
	}

	merged := viper.New()
	for key, val := range set {
		merged.Set(key, val)
	}
	if err := merged.Unmarshal(cfg); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

// Save writes cfg as YAML, creating the directory if needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// GlobalConfigPath returns the path to the per-user config file
func GlobalConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, "config.yaml")
}

// ProjectConfigPath returns the path to the config file in the working directory
func ProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, "."+appName, "config.yaml")
}
