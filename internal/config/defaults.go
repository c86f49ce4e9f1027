package config

import (
	"os"
	"path/filepath"
	"time"
)

const appName = "tasksync"

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DBPath:       DefaultDBPath(),
		SyncInterval: 5 * time.Minute,
		SyncWorkers:  2,
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
	}
}

// DefaultDBPath places the database in the user config directory, falling
// back to the working directory.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return appName + ".db"
	}
	return filepath.Join(dir, appName, appName+".db")
}
