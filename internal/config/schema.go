package config

import "time"

// Config is the full tasksync configuration.
type Config struct {
	// SQLite database file
	DBPath string `yaml:"db_path" mapstructure:"db_path"`

	// When set, a snapshot is rewritten here after every change
	SnapshotPath string `yaml:"snapshot_path,omitempty" mapstructure:"snapshot_path"`

	// Interval of the background sync; 0 disables it
	SyncInterval time.Duration `yaml:"sync_interval" mapstructure:"sync_interval"`

	// Timeout of each CalDAV request; 0 means none
	HTTPTimeout time.Duration `yaml:"http_timeout" mapstructure:"http_timeout"`

	// Number of calendars synced in parallel
	SyncWorkers int `yaml:"sync_workers" mapstructure:"sync_workers"`

	Web WebConfig `yaml:"web" mapstructure:"web"`

	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

type WebConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}
