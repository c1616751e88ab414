// Package config handles configuration loading and validation for filebay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/filebay/filebay/pkg/bytesize"
)

// Duration is a time.Duration that can be unmarshaled from YAML as a Go
// duration string ("90s", "24h") or an integer number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err == nil {
		parsed, err := time.ParseDuration(str)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", str, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := unmarshal(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	return fmt.Errorf("duration must be a string like \"90s\" or an integer number of seconds")
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// AuthConfig holds configuration for password login and session tokens.
type AuthConfig struct {
	PasswordHash  string   `yaml:"password_hash"`  // bcrypt hash, generated by `filebay hash-password`
	SessionSecret string   `yaml:"session_secret"` // HMAC secret for session tokens (generated and persisted when empty)
	SessionTTL    Duration `yaml:"session_ttl"`    // Session lifetime (default: 24h)
}

// ShareConfig holds configuration for public share links.
type ShareConfig struct {
	Secret     string   `yaml:"secret"`      // HMAC secret for share tokens (defaults to the session secret)
	DefaultTTL Duration `yaml:"default_ttl"` // Share lifetime when the caller gives none (default: 24h)
	BaseURL    string   `yaml:"base_url"`    // External base URL used in issued links and QR codes
}

// SweepConfig holds intervals and retentions for the retention sweepers.
type SweepConfig struct {
	TrashInterval    Duration `yaml:"trash_interval"`    // (default: 1h)
	TrashRetention   Duration `yaml:"trash_retention"`   // (default: 720h)
	ContentInterval  Duration `yaml:"content_interval"`  // (default: 1h)
	ContentRetention Duration `yaml:"content_retention"` // (default: 72h)
	StagingInterval  Duration `yaml:"staging_interval"`  // (default: 1h)
	StagingRetention Duration `yaml:"staging_retention"` // (default: 6h)
}

// NFSConfig holds configuration for the read-only NFS export.
type NFSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // (default: ":2049")
}

// Config holds the full filebay server configuration.
type Config struct {
	Listen         string        `yaml:"listen"`
	RootDir        string        `yaml:"root_dir"` // Data directory holding both namespace roots (default: /var/lib/filebay)
	PermanentDir   string        `yaml:"permanent_dir"`
	TemporaryDir   string        `yaml:"temporary_dir"`
	MaxUploadSize  bytesize.Size `yaml:"max_upload_size"`
	MaxPreviewSize bytesize.Size `yaml:"max_preview_size"`
	ControlSocket  string        `yaml:"control_socket"`
	Auth           AuthConfig    `yaml:"auth"`
	Share          ShareConfig   `yaml:"share"`
	Sweep          SweepConfig   `yaml:"sweep"`
	NFS            NFSConfig     `yaml:"nfs"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.RootDir == "" {
		c.RootDir = "/var/lib/filebay"
	}
	// Expand home directory in the data dir
	if strings.HasPrefix(c.RootDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			c.RootDir = filepath.Join(homeDir, c.RootDir[2:])
		}
	}
	if c.PermanentDir == "" {
		c.PermanentDir = "permanent"
	}
	if c.TemporaryDir == "" {
		c.TemporaryDir = "temporary"
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = bytesize.Size(2 * bytesize.GB)
	}
	if c.MaxPreviewSize == 0 {
		c.MaxPreviewSize = bytesize.Size(10 * bytesize.MB)
	}
	if c.ControlSocket == "" {
		c.ControlSocket = "/var/run/filebay.sock"
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = Duration(24 * time.Hour)
	}
	if c.Share.Secret == "" {
		c.Share.Secret = c.Auth.SessionSecret
	}
	if c.Share.DefaultTTL == 0 {
		c.Share.DefaultTTL = Duration(24 * time.Hour)
	}
	if c.Sweep.TrashInterval == 0 {
		c.Sweep.TrashInterval = Duration(time.Hour)
	}
	if c.Sweep.TrashRetention == 0 {
		c.Sweep.TrashRetention = Duration(30 * 24 * time.Hour)
	}
	if c.Sweep.ContentInterval == 0 {
		c.Sweep.ContentInterval = Duration(time.Hour)
	}
	if c.Sweep.ContentRetention == 0 {
		c.Sweep.ContentRetention = Duration(72 * time.Hour)
	}
	if c.Sweep.StagingInterval == 0 {
		c.Sweep.StagingInterval = Duration(time.Hour)
	}
	if c.Sweep.StagingRetention == 0 {
		c.Sweep.StagingRetention = Duration(6 * time.Hour)
	}
	if c.NFS.Listen == "" {
		c.NFS.Listen = ":2049"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.RootDir == "" {
		return fmt.Errorf("root_dir is required")
	}
	if strings.ContainsAny(c.PermanentDir, `/\`) {
		return fmt.Errorf("permanent_dir must be a plain directory name")
	}
	if strings.ContainsAny(c.TemporaryDir, `/\`) {
		return fmt.Errorf("temporary_dir must be a plain directory name")
	}
	if strings.EqualFold(c.PermanentDir, c.TemporaryDir) {
		return fmt.Errorf("permanent_dir and temporary_dir must differ")
	}
	if c.MaxUploadSize < 0 {
		return fmt.Errorf("max_upload_size must not be negative")
	}
	if c.MaxPreviewSize < 0 {
		return fmt.Errorf("max_preview_size must not be negative")
	}
	if c.Auth.PasswordHash == "" {
		return fmt.Errorf("auth.password_hash is required (generate one with 'filebay hash-password')")
	}
	if c.NFS.Enabled && c.NFS.Listen == "" {
		return fmt.Errorf("nfs.listen is required when the NFS export is enabled")
	}
	return nil
}
