package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the console configuration file.
type Config struct {
	BaseDir  string `toml:"base_dir"`
	LogDir   string `toml:"log_dir"`
	LogLevel string `toml:"log_level"` // "debug", "info" (default), "warn" or "error"

	// AlertRecipient receives every alert email when set. The
	// DROPLOCK_ALERT_RECIPIENT environment variable takes precedence.
	AlertRecipient    string `toml:"alert_recipient,omitempty"`
	EmailSettingsPath string `toml:"email_settings_path"`

	// Transitions selects the state-change guard: "permissive" or "strict".
	Transitions string `toml:"transitions"`

	SessionTTL      string `toml:"session_ttl"`       // Go duration, e.g. "12h"
	StoreTimeoutSec int    `toml:"store_timeout_sec"` // per-call store timeout

	Database DatabaseConfig `toml:"database"`
	Signals  SignalsConfig  `toml:"signals"`
	Archive  ArchiveConfig  `toml:"archive"`
	MQTT     MQTTConfig     `toml:"mqtt"`
}

// DatabaseConfig selects the locker store.
// Tagged union: Type decides which other fields apply.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // type=sqlite only
}

// SignalsConfig selects where the last observed tamper/offline signals live.
type SignalsConfig struct {
	Type string `toml:"type"` // "memory" (process lifetime) or "sqlite" (persisted)
}

// ArchiveConfig configures encrypted snapshots of the store.
type ArchiveConfig struct {
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// VaultConfig selects the snapshot storage backend.
// Tagged union: Type decides which other fields apply.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"

	FSVaultRoot string `toml:"fs_vault_root,omitempty"`

	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // S3-compatible stores such as MinIO

	// Static credentials. When empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig holds the age key pair used for snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// MQTTConfig configures the device ingestion bridge.
type MQTTConfig struct {
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
	Username    string `toml:"username,omitempty"`
	Password    string `toml:"password,omitempty"`
	QoS         byte   `toml:"qos"`
}

// NewConfig returns a Config rooted at baseDir with working defaults.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:           baseDir,
		LogDir:            filepath.Join(baseDir, "log"),
		LogLevel:          "info",
		EmailSettingsPath: filepath.Join(baseDir, "email.toml"),
		Transitions:       "permissive",
		SessionTTL:        "12h",
		StoreTimeoutSec:   5,
		Database:          DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Signals:           SignalsConfig{Type: "sqlite"},
		Archive: ArchiveConfig{
			Vault: VaultConfig{Type: "filesystem", FSVaultRoot: filepath.Join(baseDir, "vault")},
			Encryption: EncryptionConfig{
				Type:           "age",
				PublicKeyPath:  filepath.Join(baseDir, "keys", "archive.pub"),
				PrivateKeyPath: filepath.Join(baseDir, "keys", "archive.key"),
			},
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "droplock-ingest",
			TopicPrefix: "droplock",
			QoS:         1,
		},
	}
}

// SessionTTLDuration parses SessionTTL, defaulting to 12h when unset.
func (c *Config) SessionTTLDuration() (time.Duration, error) {
	if c.SessionTTL == "" {
		return 12 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid session_ttl %q: %w", c.SessionTTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	return d, nil
}

// StoreTimeout is the per-call store timeout, defaulting to 5s.
func (c *Config) StoreTimeout() time.Duration {
	if c.StoreTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.StoreTimeoutSec) * time.Second
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg, err := (&Manager{}).Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file may carry MQTT credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if err := (&Manager{}).Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
