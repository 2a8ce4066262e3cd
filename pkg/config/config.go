// Package config loads and persists server and client configuration,
// modeled on the infrastructure config package: a struct of nested
// sections, a DefaultConfig constructor, and JSON load/save.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all settings shared by the server and client binaries.
// A single file format serves both; each side only reads the sections it
// cares about.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Transport TransportConfig `json:"transport"`
	Sync      SyncConfig      `json:"sync"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig holds the confinement root and listen port.
type ServerConfig struct {
	Root string `json:"root"`
	Port int    `json:"port"`
}

// TransportConfig holds the stop-and-wait retry parameters.
type TransportConfig struct {
	TimeoutSeconds float64 `json:"timeout_seconds"`
	Retries        int     `json:"retries"`
}

// SyncConfig holds sync-session defaults.
type SyncConfig struct {
	ChunkBytes       int `json:"chunk_bytes"`
	IntervalSeconds  int `json:"interval_seconds"`
	BulkIdleMinutes  int `json:"bulk_idle_minutes"`
	LockIdleMinutes  int `json:"lock_idle_minutes"`
	UploadIdleMinutes int `json:"upload_idle_minutes"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// DefaultConfig returns the configuration assumed when nothing is
// overridden: control port 51234, T=1s, N=5 retries, 1024-byte sync
// chunks, 30/5-minute session expiry.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Root: "./server_root",
			Port: 51234,
		},
		Transport: TransportConfig{
			TimeoutSeconds: 1.0,
			Retries:        5,
		},
		Sync: SyncConfig{
			ChunkBytes:        1024,
			IntervalSeconds:   3,
			BulkIdleMinutes:   30,
			LockIdleMinutes:   5,
			UploadIdleMinutes: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Timeout returns the transport timeout as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Transport.TimeoutSeconds * float64(time.Second))
}

// Load reads a JSON config file, falling back to defaults for any section
// not present. A missing file is not an error: DefaultConfig is returned
// unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON, creating parent directories as
// needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
