// Package config loads citypulse.json and environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// FileName is the name of the configuration file.
	FileName = "citypulse.json"

	// DefaultAddress is the default listen address.
	DefaultAddress = ":4005"

	// DefaultDatabasePath is the default SQLite database location.
	DefaultDatabasePath = "data/citypulse.db"

	// DefaultUploadDir is the default attachment directory.
	DefaultUploadDir = "data/attachments"

	// DefaultUploadMaxSize is the default attachment size limit (10 MiB).
	DefaultUploadMaxSize = 10 << 20
)

// Config is the complete citypulse.json configuration.
type Config struct {
	// Name is the deployment name, used in logs.
	Name string `json:"name,omitempty"`

	// Address is the HTTP listen address.
	Address string `json:"address,omitempty"`

	// Database configures the database connection.
	Database DatabaseConfig `json:"database,omitempty"`

	// Toasts configures the notification store.
	Toasts ToastConfig `json:"toasts,omitempty"`

	// Uploads configures complaint attachment storage.
	Uploads UploadConfig `json:"uploads,omitempty"`
}

// DatabaseConfig configures the database connection.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `json:"path,omitempty"`

	// RequireWritable aborts startup if the database stays read-only
	// after the recovery reconnect.
	RequireWritable bool `json:"requireWritable,omitempty"`
}

// ToastConfig configures the notification store.
type ToastConfig struct {
	// Limit is the maximum number of visible toasts. Default 1.
	Limit int `json:"limit,omitempty"`

	// RemoveDelay is how long a dismissed toast stays in state, as a
	// Go duration string (e.g. "5m"). Default 5m.
	RemoveDelay string `json:"removeDelay,omitempty"`
}

// UploadConfig configures attachment storage.
type UploadConfig struct {
	// Dir is the local attachment directory (disk backend).
	Dir string `json:"dir,omitempty"`

	// MaxSizeBytes is the per-file size limit. 0 means the default.
	MaxSizeBytes int64 `json:"maxSizeBytes,omitempty"`

	// S3Bucket switches attachment storage to S3 when non-empty.
	S3Bucket string `json:"s3Bucket,omitempty"`

	// S3Prefix is the key prefix used with S3Bucket.
	S3Prefix string `json:"s3Prefix,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name:    "citypulse",
		Address: DefaultAddress,
		Database: DatabaseConfig{
			Path:            DefaultDatabasePath,
			RequireWritable: true,
		},
		Toasts: ToastConfig{
			Limit:       1,
			RemoveDelay: "5m",
		},
		Uploads: UploadConfig{
			Dir:          DefaultUploadDir,
			MaxSizeBytes: DefaultUploadMaxSize,
		},
	}
}

// Load reads the configuration file at path, falling back to defaults if it
// does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// applyEnv applies CITYPULSE_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("CITYPULSE_ADDR"); v != "" {
		c.Address = v
	}
	if v := os.Getenv("CITYPULSE_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CITYPULSE_REQUIRE_WRITABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Database.RequireWritable = b
		}
	}
	if v := os.Getenv("CITYPULSE_UPLOAD_DIR"); v != "" {
		c.Uploads.Dir = v
	}
}

// fillDefaults fills any unset fields after file and env merging.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.Database.Path == "" {
		c.Database.Path = d.Database.Path
	}
	if c.Toasts.Limit <= 0 {
		c.Toasts.Limit = d.Toasts.Limit
	}
	if c.Toasts.RemoveDelay == "" {
		c.Toasts.RemoveDelay = d.Toasts.RemoveDelay
	}
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = d.Uploads.Dir
	}
	if c.Uploads.MaxSizeBytes <= 0 {
		c.Uploads.MaxSizeBytes = d.Uploads.MaxSizeBytes
	}
}

// ToastRemoveDelay parses Toasts.RemoveDelay, falling back to the default
// on a malformed value.
func (c *Config) ToastRemoveDelay() time.Duration {
	d, err := time.ParseDuration(c.Toasts.RemoveDelay)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Warnings returns non-fatal configuration problems for startup logging.
func (c *Config) Warnings() []string {
	var warnings []string
	if _, err := time.ParseDuration(c.Toasts.RemoveDelay); err != nil {
		warnings = append(warnings, fmt.Sprintf("toasts.removeDelay %q is not a duration, using default", c.Toasts.RemoveDelay))
	}
	if c.Toasts.Limit > 10 {
		warnings = append(warnings, fmt.Sprintf("toasts.limit %d is unusually high for an alert-style UI", c.Toasts.Limit))
	}
	if c.Uploads.S3Bucket != "" && c.Uploads.S3Prefix == "" {
		warnings = append(warnings, "uploads.s3Bucket set without uploads.s3Prefix, attachments land at the bucket root")
	}
	return warnings
}
