// Package config loads the TOML configuration document filedrop is started
// with: bind address, the service token, the backing-store selection
// (local or ssh), storage/upload limits and the abandoned-upload timeout.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// FileSystemKind selects which backend Config.FileSystem names.
type FileSystemKind string

const (
	FileSystemLocal FileSystemKind = "local"
	FileSystemSSH   FileSystemKind = "ssh"
)

// LocalConfig configures the Local backing-store driver.
type LocalConfig struct {
	Path string `toml:"path"`
}

// SSHConfig configures the SFTP backing-store driver. Exactly one of
// Password or PublicKeyPath should be set.
type SSHConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	PublicKeyPath string `toml:"public_key_path"`
	RemoteRoot    string `toml:"remote_root"`
	KeepAliveSecs int    `toml:"keep_alive_secs"`
}

// Config holds all runtime configuration for filedropd.
type Config struct {
	Port         string `toml:"port"`
	DatabasePath string `toml:"database_path"`
	ServiceToken string `toml:"token"`

	FileSystem FileSystemKind `toml:"file_system"`
	Local      *LocalConfig   `toml:"local"`
	SSH        *SSHConfig     `toml:"ssh"`

	StorageLimitBytes   int64 `toml:"storage_limit_bytes"`
	MaxConcurrentUploads int  `toml:"max_concurrent_uploads"`
	MinFreeBytes        int64 `toml:"min_free_bytes"`
	UploadTimeoutSecs   int   `toml:"upload_timeout_secs"`

	// WebBaseURL / BackendBaseURL are carried for parity with the
	// original's link/QR rendering config, but filedrop renders no QR
	// code (out of scope) — these only feed the plain-text link URL
	// returned by link management.
	WebBaseURL     string `toml:"web_base_url"`
	BackendBaseURL string `toml:"backend_base_url"`
}

// Load reads and validates the TOML document at path.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:                 "5000",
		DatabasePath:         "filedrop.db",
		FileSystem:           FileSystemLocal,
		Local:                &LocalConfig{Path: "/data/files"},
		StorageLimitBytes:    10 << 30, // 10 GiB
		MaxConcurrentUploads: 64,
		MinFreeBytes:         1 << 30, // 1 GiB
		UploadTimeoutSecs:    3600,
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}

	switch cfg.FileSystem {
	case FileSystemLocal:
		if cfg.Local == nil {
			return nil, fmt.Errorf("file_system = %q requires a [local] section", cfg.FileSystem)
		}
	case FileSystemSSH:
		if cfg.SSH == nil {
			return nil, fmt.Errorf("file_system = %q requires an [ssh] section", cfg.FileSystem)
		}
	default:
		return nil, fmt.Errorf("unknown file_system %q", cfg.FileSystem)
	}

	return cfg, nil
}
